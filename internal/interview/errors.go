package interview

import "errors"

var (
	ErrNotFound        = errors.New("interview not found")
	ErrSessionNotFound = errors.New("interview session not found")

	// ErrCompleted is the terminal-state violation: a turn was attempted on
	// a completed or abandoned interview.
	ErrCompleted = errors.New("interview is in a terminal state")

	// ErrTurnInProgress rejects a concurrent second turn on the same
	// interview. One candidate, one active turn.
	ErrTurnInProgress = errors.New("a turn is already in progress for this interview")

	ErrInvalidTransition = errors.New("invalid interview status transition")
)
