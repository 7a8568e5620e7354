package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"clinic-triage/internal/models"
	"clinic-triage/internal/store"
)

// recordingRepo wraps the in-memory store and records committed status
// updates in commit order. Hooks run before the update reaches the store.
type recordingRepo struct {
	*store.Memory

	mu        sync.Mutex
	committed []string
	beforeCAS func(id string, from, to models.Status) error
}

func (r *recordingRepo) UpdateStatus(ctx context.Context, id string, from, to models.Status) (models.Patient, error) {
	if r.beforeCAS != nil {
		if err := r.beforeCAS(id, from, to); err != nil {
			return models.Patient{}, err
		}
	}
	p, err := r.Memory.UpdateStatus(ctx, id, from, to)
	if err == nil {
		r.mu.Lock()
		r.committed = append(r.committed, id)
		r.mu.Unlock()
	}
	return p, err
}

func (r *recordingRepo) commits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.committed...)
}

type sentNotice struct {
	patientID string
	contact   models.Contact
	message   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (f *fakeNotifier) Notify(p models.Patient, c models.Contact, msg string) {
	f.mu.Lock()
	f.sent = append(f.sent, sentNotice{patientID: p.ID, contact: c, message: msg})
	f.mu.Unlock()
}

func (f *fakeNotifier) notices() []sentNotice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentNotice(nil), f.sent...)
}

type staticMessages struct{}

func (staticMessages) Render(p models.Patient, s models.Status) (string, bool, error) {
	if s == models.StatusWaiting {
		return "", false, nil
	}
	return string(s) + ":" + p.Ticket, true, nil
}

type failingMessages struct{}

func (failingMessages) Render(models.Patient, models.Status) (string, bool, error) {
	return "", false, errBoom
}

type fixture struct {
	repo     *recordingRepo
	notifier *fakeNotifier
	ctrl     *Controller
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := &recordingRepo{Memory: store.NewMemory()}
	notifier := &fakeNotifier{}
	ctrl := NewController(repo, notifier, staticMessages{}, zerolog.Nop())
	engine := NewEngine(DefaultCatalog(), repo, ctrl, zerolog.Nop(), EngineOptions{
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	})
	return &fixture{repo: repo, notifier: notifier, ctrl: ctrl, engine: engine}
}

func (f *fixture) add(t *testing.T, cat models.Category, sub int, waited time.Duration, contacts ...models.Contact) models.Patient {
	t.Helper()
	p, err := f.repo.CreatePatient(context.Background(), store.CreatePatientParams{
		Ticket:      NewTicket(cat, sub),
		Name:        "patient",
		Category:    cat,
		SubPriority: sub,
		Contacts:    contacts,
		ArrivalTime: baseNow.Add(-waited),
	})
	require.NoError(t, err)
	return p
}

var errBoom = errors.New("database unavailable")
