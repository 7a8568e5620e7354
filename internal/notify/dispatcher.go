package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"clinic-triage/internal/models"
	"clinic-triage/internal/telemetry"
)

// Sender performs the actual delivery to a phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Outcome is the recorded result of one delivery attempt.
type Outcome struct {
	PatientID string
	Contact   models.Contact
	Err       error
	Dropped   bool
}

type job struct {
	patientID string
	contact   models.Contact
	message   string
}

// Dispatcher queues notifications and delivers them from a fixed worker pool.
// Notify never blocks: when the buffer is full the message is dropped and logged.
type Dispatcher struct {
	sender  Sender
	jobs    chan job
	workers int
	timeout time.Duration
	log     zerolog.Logger

	// OnOutcome, when set, observes every outcome. Called from worker goroutines.
	OnOutcome func(Outcome)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher builds a dispatcher; call Start before use and Close on shutdown.
func NewDispatcher(sender Sender, workers, buffer int, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sender:  sender,
		jobs:    make(chan job, buffer),
		workers: workers,
		timeout: timeout,
		log:     log.With().Str("component", "notify").Logger(),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Notify enqueues a message for contact.
func (d *Dispatcher) Notify(p models.Patient, contact models.Contact, message string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.record(Outcome{PatientID: p.ID, Contact: contact, Dropped: true})
		return
	}
	select {
	case d.jobs <- job{patientID: p.ID, contact: contact, message: message}:
	default:
		d.record(Outcome{PatientID: p.ID, Contact: contact, Dropped: true})
	}
}

// Close stops accepting work and waits for queued messages to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sender.Send(ctx, j.contact.Phone, j.message)
		cancel()
		d.record(Outcome{PatientID: j.patientID, Contact: j.contact, Err: err})
	}
}

func (d *Dispatcher) record(o Outcome) {
	switch {
	case o.Dropped:
		telemetry.Notifications.WithLabelValues("dropped").Inc()
		d.log.Warn().Str("patient_id", o.PatientID).Str("contact", string(o.Contact.Kind)).Msg("notification dropped")
	case o.Err != nil:
		telemetry.Notifications.WithLabelValues("failed").Inc()
		d.log.Warn().Err(o.Err).Str("patient_id", o.PatientID).Str("contact", string(o.Contact.Kind)).Msg("notification failed")
	default:
		telemetry.Notifications.WithLabelValues("sent").Inc()
		d.log.Info().Str("patient_id", o.PatientID).Str("contact", string(o.Contact.Kind)).Msg("notification sent")
	}
	if d.OnOutcome != nil {
		d.OnOutcome(o)
	}
}
