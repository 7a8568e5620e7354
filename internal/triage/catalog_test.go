package triage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-triage/internal/models"
)

func TestCatalogDefaults(t *testing.T) {
	c := DefaultCatalog()
	want := map[models.Category]Severity{
		models.CategoryImmediate:  {models.CategoryImmediate, 0, 5 * time.Minute},
		models.CategoryVeryUrgent: {models.CategoryVeryUrgent, 1, 10 * time.Minute},
		models.CategoryUrgent:     {models.CategoryUrgent, 2, 30 * time.Minute},
		models.CategoryStandard:   {models.CategoryStandard, 3, 75 * time.Minute},
		models.CategoryNonUrgent:  {models.CategoryNonUrgent, 4, 150 * time.Minute},
	}
	for cat, sev := range want {
		got, err := c.Lookup(cat)
		require.NoError(t, err)
		assert.Equal(t, sev, got)
	}
	sevs := c.Severities()
	require.Len(t, sevs, 5)
	for i, s := range sevs {
		assert.Equal(t, i, s.Rank)
	}
}

func TestCatalogUnknownFailsClosed(t *testing.T) {
	c := DefaultCatalog()
	sev, err := c.Lookup("undefined")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnknownCategory))
	assert.Equal(t, 4, sev.Rank)
	assert.Equal(t, FallbackMaxWait, sev.MaxWait)
	assert.False(t, c.Known("undefined"))
}

func TestCatalogOverrides(t *testing.T) {
	c := NewCatalog(map[models.Category]time.Duration{
		models.CategoryUrgent:    20 * time.Minute,
		models.CategoryStandard:  0,
		models.Category("bogus"): time.Minute,
	})
	u, _ := c.Lookup(models.CategoryUrgent)
	assert.Equal(t, 20*time.Minute, u.MaxWait)
	s, _ := c.Lookup(models.CategoryStandard)
	assert.Equal(t, 75*time.Minute, s.MaxWait)
	assert.False(t, c.Known("bogus"))
}

func TestEscalate(t *testing.T) {
	c := DefaultCatalog()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	p := models.Patient{Category: models.CategoryUrgent, ArrivalTime: now.Add(-15 * time.Minute)}

	esc := c.Escalate(p, now)
	assert.Equal(t, 15*time.Minute, esc.Elapsed)
	assert.InDelta(t, 0.5, esc.Ratio, 1e-9)
	assert.False(t, esc.Breached)
	assert.True(t, esc.Known)

	// Exactly at the budget counts as breached.
	assert.True(t, c.IsBreached(p, now.Add(15*time.Minute)))
	assert.False(t, c.IsBreached(p, now.Add(15*time.Minute-time.Nanosecond)))
}

func TestEscalateClampsFutureArrival(t *testing.T) {
	c := DefaultCatalog()
	now := time.Now()
	p := models.Patient{Category: models.CategoryImmediate, ArrivalTime: now.Add(time.Minute)}
	esc := c.Escalate(p, now)
	assert.Zero(t, esc.Elapsed)
	assert.Zero(t, esc.Ratio)
}

func TestBreachIsMonotonic(t *testing.T) {
	c := DefaultCatalog()
	start := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	p := models.Patient{Category: models.CategoryVeryUrgent, ArrivalTime: start}
	breached := false
	for m := 0; m <= 30; m++ {
		b := c.IsBreached(p, start.Add(time.Duration(m)*time.Minute))
		if breached {
			assert.True(t, b, "breach reverted at minute %d", m)
		}
		assert.Equal(t, m >= 10, b, "minute %d", m)
		breached = b
	}
}

func TestNewTicket(t *testing.T) {
	seq := 0
	intn := func(n int) int { seq++; return seq % n }
	assert.Equal(t, "BCDEU3", newTicket(intn, models.CategoryUrgent, 3))
	assert.Regexp(t, `^[A-Z0-9]{4}X0$`, NewTicket("undefined", 0))
	assert.Regexp(t, `^[A-Z0-9]{4}I-1$`, NewTicket(models.CategoryImmediate, -1))
}
