package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinic-triage/internal/models"
)

// Memory is an in-process repository used for development and tests.
type Memory struct {
	mu       sync.RWMutex
	patients map[string]models.Patient
	audit    []models.AuditLog
	now      func() time.Time
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		patients: make(map[string]models.Patient),
		now:      time.Now,
	}
}

// CreatePatient registers a patient in StatusWaiting.
func (m *Memory) CreatePatient(_ context.Context, p CreatePatientParams) (models.Patient, error) {
	now := m.now().UTC()
	arrival := p.ArrivalTime
	if arrival.IsZero() {
		arrival = now
	}
	patient := models.Patient{
		ID:          uuid.New().String(),
		Ticket:      p.Ticket,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		SubPriority: p.SubPriority,
		ArrivalTime: arrival,
		Status:      models.StatusWaiting,
		Contacts:    append([]models.Contact(nil), p.Contacts...),
		UpdatedAt:   now,
	}
	m.mu.Lock()
	m.patients[patient.ID] = patient
	m.mu.Unlock()
	return clonePatient(patient), nil
}

// Get fetches a patient by id.
func (m *Memory) Get(_ context.Context, id string) (models.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return models.Patient{}, fmt.Errorf("patient %s: %w", id, models.ErrNotFound)
	}
	return clonePatient(p), nil
}

// ListPatients returns every patient ordered by arrival.
func (m *Memory) ListPatients(_ context.Context) ([]models.Patient, error) {
	return m.list(func(models.Patient) bool { return true }), nil
}

// ListWaiting returns patients in StatusWaiting.
func (m *Memory) ListWaiting(_ context.Context) ([]models.Patient, error) {
	return m.list(func(p models.Patient) bool { return p.Status == models.StatusWaiting }), nil
}

func (m *Memory) list(keep func(models.Patient) bool) []models.Patient {
	m.mu.RLock()
	out := make([]models.Patient, 0, len(m.patients))
	for _, p := range m.patients {
		if keep(p) {
			out = append(out, clonePatient(p))
		}
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b models.Patient) int {
		if c := a.ArrivalTime.Compare(b.ArrivalTime); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// UpdateStatus sets status to `to` only if it is still `from`.
func (m *Memory) UpdateStatus(_ context.Context, id string, from, to models.Status) (models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return models.Patient{}, fmt.Errorf("patient %s: %w", id, models.ErrNotFound)
	}
	if p.Status != from {
		return models.Patient{}, fmt.Errorf("patient %s is %s, expected %s: %w", id, p.Status, from, models.ErrConflict)
	}
	p.Status = to
	p.UpdatedAt = m.now().UTC()
	m.patients[id] = p
	return clonePatient(p), nil
}

// UpdatePatient applies a staff edit. Triage fields of attended patients are locked.
func (m *Memory) UpdatePatient(_ context.Context, id string, u PatientUpdate) (models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return models.Patient{}, fmt.Errorf("patient %s: %w", id, models.ErrNotFound)
	}
	if u.TouchesTriage() && !p.Editable() {
		return models.Patient{}, fmt.Errorf("patient %s: %w", id, models.ErrLocked)
	}
	u.apply(&p)
	p.UpdatedAt = m.now().UTC()
	m.patients[id] = p
	return clonePatient(p), nil
}

// DeletePatient removes a patient record.
func (m *Memory) DeletePatient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[id]; !ok {
		return fmt.Errorf("patient %s: %w", id, models.ErrNotFound)
	}
	delete(m.patients, id)
	return nil
}

// AppendAudit adds an audit row.
func (m *Memory) AppendAudit(_ context.Context, patientID, event, detail string) error {
	m.mu.Lock()
	m.audit = append(m.audit, models.AuditLog{PatientID: patientID, Event: event, Detail: detail, Recorded: m.now().UTC()})
	m.mu.Unlock()
	return nil
}

// AuditTrail returns audit rows for a patient in insertion order.
func (m *Memory) AuditTrail(_ context.Context, patientID string) ([]models.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AuditLog
	for _, a := range m.audit {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func clonePatient(p models.Patient) models.Patient {
	p.Contacts = append([]models.Contact(nil), p.Contacts...)
	return p
}

// Close is a no-op; it lets Memory stand in for the Postgres store.
func (m *Memory) Close() {}
