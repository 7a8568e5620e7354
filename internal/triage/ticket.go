package triage

import (
	"fmt"
	"math/rand"

	"clinic-triage/internal/models"
)

const ticketAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var categoryLetters = map[models.Category]byte{
	models.CategoryImmediate:  'I',
	models.CategoryVeryUrgent: 'V',
	models.CategoryUrgent:     'U',
	models.CategoryStandard:   'S',
	models.CategoryNonUrgent:  'N',
}

// NewTicket builds the human-facing code shown on the waiting room panel:
// four random characters, the category letter and the sub-priority.
// It carries no ranking information beyond what staff already see.
func NewTicket(cat models.Category, subPriority int) string {
	return newTicket(rand.Intn, cat, subPriority)
}

func newTicket(intn func(int) int, cat models.Category, subPriority int) string {
	letter, ok := categoryLetters[cat]
	if !ok {
		letter = 'X'
	}
	var random [4]byte
	for i := range random {
		random[i] = ticketAlphabet[intn(len(ticketAlphabet))]
	}
	return fmt.Sprintf("%s%c%d", random[:], letter, subPriority)
}
