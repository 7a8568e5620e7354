package store

import (
	"time"

	"clinic-triage/internal/models"
)

// CreatePatientParams collects inputs required to register a patient.
type CreatePatientParams struct {
	Ticket      string
	Name        string
	Description string
	Category    models.Category
	SubPriority int
	Contacts    []models.Contact
	// ArrivalTime defaults to now when zero.
	ArrivalTime time.Time
}

// PatientUpdate carries a staff edit. Nil fields are left untouched; status is
// not editable here and goes through the lifecycle controller.
type PatientUpdate struct {
	Name        *string
	Description *string
	Category    *models.Category
	SubPriority *int
	Contacts    *[]models.Contact
	State       *string
	Location    *string
}

// TouchesTriage reports whether the update changes ranking inputs.
func (u PatientUpdate) TouchesTriage() bool {
	return u.Category != nil || u.SubPriority != nil
}

func (u PatientUpdate) apply(p *models.Patient) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.SubPriority != nil {
		p.SubPriority = *u.SubPriority
	}
	if u.Contacts != nil {
		p.Contacts = append([]models.Contact(nil), (*u.Contacts)...)
	}
	if u.State != nil {
		p.State = emptyToNil(*u.State)
	}
	if u.Location != nil {
		p.Location = emptyToNil(*u.Location)
	}
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
