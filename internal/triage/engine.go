package triage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"clinic-triage/internal/models"
	"clinic-triage/internal/telemetry"
)

// Engine derives the ordered queue from the repository and performs claims.
// Nothing ordered is cached: every call re-reads and re-ranks, since overflow
// ratios move with the clock.
type Engine struct {
	catalog     *Catalog
	repo        Repository
	lifecycle   *Controller
	locker      Locker
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	log         zerolog.Logger

	// mu makes read-order-then-mark-called one critical section within the process.
	mu sync.Mutex
}

// EngineOptions tunes claim behaviour.
type EngineOptions struct {
	// Locker additionally serialises claims across processes. Optional.
	Locker      Locker
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// NewEngine creates a queue engine over repo, committing claims through lifecycle.
func NewEngine(catalog *Catalog, repo Repository, lifecycle *Controller, log zerolog.Logger, opts EngineOptions) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 5 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 100 * time.Millisecond
	}
	return &Engine{
		catalog:     catalog,
		repo:        repo,
		lifecycle:   lifecycle,
		locker:      opts.Locker,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		log:         log.With().Str("component", "engine").Logger(),
	}
}

// Catalog returns the severity catalog used for ordering.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Snapshot returns all waiting entries in service order. An empty queue yields
// an empty slice and no error.
func (e *Engine) Snapshot(ctx context.Context, now time.Time) ([]Ranked, error) {
	entries, err := e.repo.ListWaiting(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waiting: %w", err)
	}
	waiting := make([]models.Patient, 0, len(entries))
	for _, p := range entries {
		if p.Status == models.StatusWaiting {
			waiting = append(waiting, p)
		}
	}
	ordered := e.catalog.Order(waiting, now)
	for _, r := range ordered {
		if !r.Escalation.Known {
			telemetry.UnknownCategory.Inc()
			e.log.Warn().Str("patient_id", r.ID).Str("category", string(r.Category)).
				Err(models.ErrUnknownCategory).Msg("ordering with fallback severity")
		}
	}
	return ordered, nil
}

// PeekNext returns the head of the queue without changing it.
func (e *Engine) PeekNext(ctx context.Context, now time.Time) (Ranked, error) {
	ordered, err := e.Snapshot(ctx, now)
	if err != nil {
		return Ranked{}, err
	}
	if len(ordered) == 0 {
		return Ranked{}, fmt.Errorf("peek next: %w", models.ErrNotFound)
	}
	return ordered[0], nil
}

// ClaimNext selects the head of the queue and marks it called as one step.
// A claim that loses a compare-and-set is retried against a fresh snapshot.
func (e *Engine) ClaimNext(ctx context.Context, now time.Time) (models.Patient, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		p, err := e.claimOnce(ctx, now)
		if err == nil {
			telemetry.Claims.Inc()
			return p, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return models.Patient{}, err
		}
		lastErr = err
		telemetry.ClaimConflicts.Inc()
		e.log.Debug().Err(err).Int("attempt", attempt).Msg("claim conflict")
		if attempt == e.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return models.Patient{}, ctx.Err()
		case <-time.After(backoffWithJitter(e.backoffBase, e.backoffMax, attempt)):
		}
	}
	return models.Patient{}, fmt.Errorf("claim next after %d attempts: %w", e.maxAttempts, lastErr)
}

func (e *Engine) claimOnce(ctx context.Context, now time.Time) (models.Patient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx)
		if err != nil {
			return models.Patient{}, fmt.Errorf("acquire claim lock: %w", err)
		}
		defer unlock()
	}

	head, err := e.PeekNext(ctx, now)
	if err != nil {
		return models.Patient{}, err
	}
	p, err := e.lifecycle.advance(ctx, head.Patient, models.StatusCalled)
	if errors.Is(err, models.ErrNotFound) {
		// The head was removed after it was ranked; the rest of the queue may still wait.
		return models.Patient{}, fmt.Errorf("head %s removed before claim: %w", head.ID, models.ErrConflict)
	}
	return p, err
}

// backoffWithJitter returns a wait in [d/2, d) where d doubles per attempt up to max.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	wait := base << (attempt - 1)
	if wait > max || wait <= 0 {
		wait = max
	}
	half := wait / 2
	if half <= 0 {
		return wait
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}
