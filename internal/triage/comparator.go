package triage

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"clinic-triage/internal/models"
)

// Ranked is a patient annotated with its escalation at ordering time.
type Ranked struct {
	models.Patient
	Escalation Escalation
}

// Compare orders a before b when it returns a negative number. Keys, in order:
// breached first, category rank ascending, overflow ratio descending,
// sub-priority descending, arrival ascending, id ascending.
func Compare(a, b Ranked) int {
	if a.Escalation.Breached != b.Escalation.Breached {
		if a.Escalation.Breached {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Escalation.Severity.Rank, b.Escalation.Severity.Rank); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Escalation.Ratio, a.Escalation.Ratio); c != 0 {
		return c
	}
	if c := cmp.Compare(b.SubPriority, a.SubPriority); c != 0 {
		return c
	}
	if c := a.ArrivalTime.Compare(b.ArrivalTime); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Order annotates entries with their escalation at now and sorts them. The
// input slice is not modified.
func (c *Catalog) Order(entries []models.Patient, now time.Time) []Ranked {
	out := make([]Ranked, 0, len(entries))
	for _, p := range entries {
		out = append(out, Ranked{Patient: p, Escalation: c.Escalate(p, now)})
	}
	slices.SortFunc(out, Compare)
	return out
}
