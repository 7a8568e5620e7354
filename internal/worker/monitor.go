package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"clinic-triage/internal/telemetry"
	"clinic-triage/internal/triage"
)

// Snapshotter is the part of the queue engine the monitor reads.
type Snapshotter interface {
	Snapshot(ctx context.Context, now time.Time) ([]triage.Ranked, error)
}

// Monitor periodically re-derives the queue, publishes depth and breach gauges
// and logs each entry once when it first exceeds its wait budget.
type Monitor struct {
	engine   Snapshotter
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger

	breached map[string]struct{}
}

// NewMonitor builds a monitor polling engine every interval.
func NewMonitor(engine Snapshotter, interval time.Duration, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		engine:   engine,
		interval: interval,
		now:      time.Now,
		log:      log.With().Str("component", "monitor").Logger(),
		breached: make(map[string]struct{}),
	}
}

// Run starts the monitor loop until context cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Tick(ctx); err != nil {
			m.log.Error().Err(err).Msg("queue snapshot failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick takes one snapshot and returns the entries that newly breached.
func (m *Monitor) Tick(ctx context.Context) ([]triage.Ranked, error) {
	ordered, err := m.engine.Snapshot(ctx, m.now())
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(ordered))
	var fresh []triage.Ranked
	for _, r := range ordered {
		if !r.Escalation.Breached {
			continue
		}
		seen[r.ID] = struct{}{}
		if _, known := m.breached[r.ID]; known {
			continue
		}
		fresh = append(fresh, r)
		m.log.Warn().
			Str("patient_id", r.ID).
			Str("ticket", r.Ticket).
			Str("category", string(r.Category)).
			Dur("waited", r.Escalation.Elapsed).
			Dur("budget", r.Escalation.Severity.MaxWait).
			Msg("wait budget breached")
	}
	// Entries that left the waiting set (called, deleted) are forgotten.
	m.breached = seen

	telemetry.QueueDepthGauge.Set(float64(len(ordered)))
	telemetry.BreachedGauge.Set(float64(len(seen)))
	return fresh, nil
}
