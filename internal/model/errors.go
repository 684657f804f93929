package model

import (
	"errors"
	"fmt"
)

// Errors that indicate a broken invariant or bad caller input. These surface
// loudly to the caller; the orchestrator never retries or swallows them.
var (
	ErrChatNotFound         = errors.New("chat not found")
	ErrJobNotFound          = errors.New("generation job not found")
	ErrInsightNotFound      = errors.New("insight not found")
	ErrInsightTypeNotFound  = errors.New("insight type not found")
	ErrTransactionNotFound  = errors.New("credit transaction not found")
	ErrNoActiveInsightTypes = errors.New("category has no active insight types")
	ErrChatNotIndexed       = errors.New("chat is not indexed")
	ErrJobAlreadyActive     = errors.New("chat already has an unresolved generation job")
	ErrInvalidTransition    = errors.New("invalid job status transition")
)

// InsufficientCreditsError is returned synchronously from an unlock attempt
// before any deduction happens. No partial charge is ever taken.
type InsufficientCreditsError struct {
	Required  int `json:"required"`
	Available int `json:"available"`
	Deficit   int `json:"deficit"`
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d (deficit %d)",
		e.Required, e.Available, e.Deficit)
}
