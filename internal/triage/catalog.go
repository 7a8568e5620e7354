// Package triage orders waiting patients and drives their status lifecycle.
package triage

import (
	"fmt"
	"time"

	"clinic-triage/internal/models"
)

// Severity is the catalog row for a triage category.
type Severity struct {
	Category models.Category
	Rank     int
	MaxWait  time.Duration
}

// FallbackMaxWait is the budget given to entries whose category is not in the catalog.
const FallbackMaxWait = 75 * time.Minute

var defaultSeverities = []Severity{
	{Category: models.CategoryImmediate, Rank: 0, MaxWait: 5 * time.Minute},
	{Category: models.CategoryVeryUrgent, Rank: 1, MaxWait: 10 * time.Minute},
	{Category: models.CategoryUrgent, Rank: 2, MaxWait: 30 * time.Minute},
	{Category: models.CategoryStandard, Rank: 3, MaxWait: 75 * time.Minute},
	{Category: models.CategoryNonUrgent, Rank: 4, MaxWait: 150 * time.Minute},
}

// Catalog maps categories to rank and maximum tolerable wait.
type Catalog struct {
	byCategory map[models.Category]Severity
	fallback   Severity
}

// NewCatalog builds the Manchester catalog. Budgets in overrides replace the
// defaults for known categories; non-positive durations are ignored.
func NewCatalog(overrides map[models.Category]time.Duration) *Catalog {
	c := &Catalog{
		byCategory: make(map[models.Category]Severity, len(defaultSeverities)),
		fallback:   Severity{Category: models.CategoryUndefined, Rank: 4, MaxWait: FallbackMaxWait},
	}
	for _, s := range defaultSeverities {
		if d, ok := overrides[s.Category]; ok && d > 0 {
			s.MaxWait = d
		}
		c.byCategory[s.Category] = s
	}
	return c
}

// DefaultCatalog returns the catalog with the standard budgets.
func DefaultCatalog() *Catalog {
	return NewCatalog(nil)
}

// Lookup returns the severity for cat. Unknown categories fail closed: the
// fallback severity is returned together with ErrUnknownCategory.
func (c *Catalog) Lookup(cat models.Category) (Severity, error) {
	if s, ok := c.byCategory[cat]; ok {
		return s, nil
	}
	fb := c.fallback
	fb.Category = cat
	return fb, fmt.Errorf("category %q: %w", cat, models.ErrUnknownCategory)
}

// Known reports whether cat is part of the catalog.
func (c *Catalog) Known(cat models.Category) bool {
	_, ok := c.byCategory[cat]
	return ok
}

// Severities lists catalog rows ordered by rank.
func (c *Catalog) Severities() []Severity {
	out := make([]Severity, 0, len(defaultSeverities))
	for _, s := range defaultSeverities {
		out = append(out, c.byCategory[s.Category])
	}
	return out
}
