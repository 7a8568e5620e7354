package models

import "errors"

var (
	// ErrNotFound is returned when an entry does not exist or nothing is waiting.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for status changes outside waiting -> called -> attended.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict is returned when a compare-and-set lost against a concurrent mutation.
	ErrConflict = errors.New("conflicting update")
	// ErrLocked is returned when editing triage fields of an attended entry.
	ErrLocked = errors.New("entry already attended")
	// ErrUnknownCategory marks a category missing from the severity catalog.
	ErrUnknownCategory = errors.New("unknown triage category")
)
