package triage

import (
	"context"

	"clinic-triage/internal/models"
)

// Repository is the persistence collaborator the engine orders and claims against.
type Repository interface {
	// ListWaiting returns every entry currently in StatusWaiting.
	ListWaiting(ctx context.Context) ([]models.Patient, error)
	// Get returns the entry or models.ErrNotFound.
	Get(ctx context.Context, id string) (models.Patient, error)
	// UpdateStatus moves id from -> to only if the stored status still equals
	// from, returning models.ErrConflict otherwise.
	UpdateStatus(ctx context.Context, id string, from, to models.Status) (models.Patient, error)
}

// Auditor is implemented by repositories that keep a transition trail.
type Auditor interface {
	AppendAudit(ctx context.Context, patientID, event, detail string) error
}

// Notifier accepts a message for a contact channel. Implementations must not
// block the caller on delivery.
type Notifier interface {
	Notify(p models.Patient, contact models.Contact, message string)
}

// Messages renders the text sent when an entry reaches a status. ok is false
// when no message exists for that status.
type Messages interface {
	Render(p models.Patient, status models.Status) (text string, ok bool, err error)
}

// Locker serialises claims across processes sharing one repository.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}
