package triage

import (
	"time"

	"clinic-triage/internal/models"
)

// Escalation is the wait state of an entry at a given instant.
type Escalation struct {
	Severity Severity
	Elapsed  time.Duration
	Ratio    float64
	Breached bool
	// Known is false when Severity is the catalog fallback.
	Known bool
}

// Escalate computes elapsed wait and overflow ratio for p at now. Elapsed is
// clamped at zero so clock skew never produces a negative ratio.
func (c *Catalog) Escalate(p models.Patient, now time.Time) Escalation {
	sev, err := c.Lookup(p.Category)
	elapsed := now.Sub(p.ArrivalTime)
	if elapsed < 0 {
		elapsed = 0
	}
	ratio := float64(elapsed) / float64(sev.MaxWait)
	return Escalation{
		Severity: sev,
		Elapsed:  elapsed,
		Ratio:    ratio,
		Breached: ratio >= 1.0,
		Known:    err == nil,
	}
}

// OverflowRatio is elapsed wait divided by the category budget.
func (c *Catalog) OverflowRatio(p models.Patient, now time.Time) float64 {
	return c.Escalate(p, now).Ratio
}

// IsBreached reports whether p has waited at least its category budget.
func (c *Catalog) IsBreached(p models.Patient, now time.Time) bool {
	return c.Escalate(p, now).Breached
}
