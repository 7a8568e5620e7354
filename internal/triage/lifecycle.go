package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"clinic-triage/internal/models"
	"clinic-triage/internal/telemetry"
)

// DefaultMaxAttempts bounds compare-and-set retries for claims and transitions.
const DefaultMaxAttempts = 5

// Controller owns status transitions and their notification side effects.
type Controller struct {
	repo        Repository
	notifier    Notifier
	messages    Messages
	maxAttempts int
	log         zerolog.Logger
}

// NewController wires a lifecycle controller. notifier and messages may be nil,
// in which case transitions are persisted without notifications.
func NewController(repo Repository, notifier Notifier, messages Messages, log zerolog.Logger) *Controller {
	return &Controller{
		repo:        repo,
		notifier:    notifier,
		messages:    messages,
		maxAttempts: DefaultMaxAttempts,
		log:         log.With().Str("component", "lifecycle").Logger(),
	}
}

// SetMaxAttempts overrides the retry bound used by Transition.
func (c *Controller) SetMaxAttempts(n int) {
	if n > 0 {
		c.maxAttempts = n
	}
}

// Transition moves entry id to target. Only the next step of
// waiting -> called -> attended is accepted.
func (c *Controller) Transition(ctx context.Context, id string, target models.Status) (models.Patient, error) {
	if !target.Valid() {
		return models.Patient{}, fmt.Errorf("target %q: %w", target, models.ErrInvalidTransition)
	}
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		p, err := c.repo.Get(ctx, id)
		if err != nil {
			return models.Patient{}, err
		}
		if !p.Status.CanTransition(target) {
			return models.Patient{}, fmt.Errorf("%s -> %s: %w", p.Status, target, models.ErrInvalidTransition)
		}
		updated, err := c.advance(ctx, p, target)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return models.Patient{}, err
		}
		lastErr = err
		c.log.Debug().Str("patient_id", id).Int("attempt", attempt).Msg("transition conflict, retrying")
	}
	return models.Patient{}, fmt.Errorf("transition %s after %d attempts: %w", id, c.maxAttempts, lastErr)
}

// advance persists p.Status -> target and, once committed, emits notifications.
func (c *Controller) advance(ctx context.Context, p models.Patient, target models.Status) (models.Patient, error) {
	from := p.Status
	updated, err := c.repo.UpdateStatus(ctx, p.ID, from, target)
	if err != nil {
		return models.Patient{}, fmt.Errorf("update status %s: %w", p.ID, err)
	}
	telemetry.Transitions.WithLabelValues(string(target)).Inc()
	c.log.Info().Str("patient_id", p.ID).Str("ticket", p.Ticket).
		Str("from", string(from)).Str("to", string(target)).Msg("status transition")

	if a, ok := c.repo.(Auditor); ok {
		if err := a.AppendAudit(ctx, p.ID, string(target), fmt.Sprintf("%s -> %s", from, target)); err != nil {
			c.log.Warn().Err(err).Str("patient_id", p.ID).Msg("append audit")
		}
	}
	c.announce(updated, target)
	return updated, nil
}

func (c *Controller) announce(p models.Patient, target models.Status) {
	if c.notifier == nil || c.messages == nil {
		return
	}
	text, ok, err := c.messages.Render(p, target)
	if err != nil {
		c.log.Error().Err(err).Str("patient_id", p.ID).Str("status", string(target)).Msg("render notification")
		return
	}
	if !ok {
		return
	}
	for _, contact := range p.Contacts {
		if contact.Phone == "" {
			continue
		}
		c.notifier.Notify(p, contact, text)
	}
}
