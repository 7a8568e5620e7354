package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// WhatsApp posts text messages to a WhatsApp gateway using its form API.
type WhatsApp struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	source     string
	breaker    *gobreaker.CircuitBreaker
}

// NewWhatsApp builds a sender. Consecutive provider failures open a circuit
// breaker so an outage does not tie up dispatcher workers.
func NewWhatsApp(apiURL, apiKey, source string, timeout time.Duration) *WhatsApp {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WhatsApp{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
		apiKey:     apiKey,
		source:     source,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "whatsapp",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Send delivers body to the destination phone number.
func (w *WhatsApp) Send(ctx context.Context, to, body string) error {
	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, w.post(ctx, to, body)
	})
	return err
}

func (w *WhatsApp) post(ctx context.Context, to, body string) error {
	msg := textMessage{Type: "text"}
	msg.Text.Body = body
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	form := url.Values{}
	form.Set("channel", "whatsapp")
	form.Set("source", w.source)
	form.Set("destination", to)
	form.Set("message", string(msgJSON))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if w.apiKey != "" {
		req.Header.Set("apikey", w.apiKey)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post whatsapp: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway status %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. Used when no
// gateway is configured.
type LogSender struct {
	Log zerolog.Logger
}

func (l LogSender) Send(_ context.Context, to, body string) error {
	l.Log.Info().Str("to", maskPhone(to)).Int("length", len(body)).Msg("notification (log only)")
	return nil
}

// maskPhone keeps only the last four digits of a number.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
