package models

import (
	"time"
)

// Status enumerates lifecycle states persisted for a queue entry.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusCalled   Status = "called"
	StatusAttended Status = "attended"
)

// Category is a Manchester triage classification.
type Category string

const (
	CategoryImmediate  Category = "immediate"
	CategoryVeryUrgent Category = "very-urgent"
	CategoryUrgent     Category = "urgent"
	CategoryStandard   Category = "standard"
	CategoryNonUrgent  Category = "non-urgent"
	CategoryUndefined  Category = "undefined"
)

// ContactKind identifies who a notification channel belongs to.
type ContactKind string

const (
	ContactPatient   ContactKind = "patient"
	ContactCompanion ContactKind = "companion"
)

// Contact is a single notification channel attached to an entry.
type Contact struct {
	Kind  ContactKind `json:"kind"`
	Name  string      `json:"name,omitempty"`
	Phone string      `json:"phone"`
}

// Patient is an intake record eligible for triage.
type Patient struct {
	ID          string    `json:"id"`
	Ticket      string    `json:"ticket"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	SubPriority int       `json:"sub_priority"`
	ArrivalTime time.Time `json:"arrival_time"`
	Status      Status    `json:"status"`
	Contacts    []Contact `json:"contacts"`
	State       *string   `json:"state,omitempty"`
	Location    *string   `json:"location,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// next returns the single status reachable from s.
func (s Status) next() (Status, bool) {
	switch s {
	case StatusWaiting:
		return StatusCalled, true
	case StatusCalled:
		return StatusAttended, true
	default:
		return "", false
	}
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusAttended:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to target is the next step of
// waiting -> called -> attended.
func (s Status) CanTransition(target Status) bool {
	n, ok := s.next()
	return ok && n == target
}

// Editable reports whether staff may still change category or sub-priority.
func (p Patient) Editable() bool {
	return p.Status != StatusAttended
}

// AuditLog is a simple audit event row.
type AuditLog struct {
	PatientID string    `json:"patient_id"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail"`
	Recorded  time.Time `json:"recorded_at"`
}
