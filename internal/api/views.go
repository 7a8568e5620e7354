package api

import (
	"net/http"
	"time"

	"clinic-triage/internal/models"
	"clinic-triage/internal/triage"
)

const (
	viewerHeader = "X-Viewer-Role"
	roleStaff    = "staff"
)

// publicPatient is what waiting-room panels and unauthenticated callers see.
type publicPatient struct {
	ID          string          `json:"id"`
	Ticket      string          `json:"ticket"`
	Name        string          `json:"name"`
	Category    models.Category `json:"category"`
	SubPriority int             `json:"sub_priority"`
	ArrivalTime time.Time       `json:"arrival_time"`
	Status      models.Status   `json:"status"`
}

// staffPatient adds clinical and contact fields.
type staffPatient struct {
	publicPatient
	Description string           `json:"description"`
	Contacts    []models.Contact `json:"contacts"`
	State       *string          `json:"state"`
	Location    *string          `json:"location"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type queueItem struct {
	Position      int     `json:"position"`
	Patient       any     `json:"patient"`
	WaitedSeconds int64   `json:"waited_seconds"`
	OverflowRatio float64 `json:"overflow_ratio"`
	Breached      bool    `json:"breached"`
}

func isStaff(r *http.Request) bool {
	return r.Header.Get(viewerHeader) == roleStaff
}

func toPublic(p models.Patient) publicPatient {
	return publicPatient{
		ID:          p.ID,
		Ticket:      p.Ticket,
		Name:        p.Name,
		Category:    p.Category,
		SubPriority: p.SubPriority,
		ArrivalTime: p.ArrivalTime,
		Status:      p.Status,
	}
}

func toStaff(p models.Patient) staffPatient {
	contacts := p.Contacts
	if contacts == nil {
		contacts = []models.Contact{}
	}
	return staffPatient{
		publicPatient: toPublic(p),
		Description:   p.Description,
		Contacts:      contacts,
		State:         p.State,
		Location:      p.Location,
		UpdatedAt:     p.UpdatedAt,
	}
}

// project picks the view for the caller's role.
func project(r *http.Request, p models.Patient) any {
	if isStaff(r) {
		return toStaff(p)
	}
	return toPublic(p)
}

func projectAll(r *http.Request, ps []models.Patient) []any {
	out := make([]any, 0, len(ps))
	for _, p := range ps {
		out = append(out, project(r, p))
	}
	return out
}

func toQueueItem(r *http.Request, pos int, rk triage.Ranked) queueItem {
	return queueItem{
		Position:      pos,
		Patient:       project(r, rk.Patient),
		WaitedSeconds: int64(rk.Escalation.Elapsed / time.Second),
		OverflowRatio: rk.Escalation.Ratio,
		Breached:      rk.Escalation.Breached,
	}
}
