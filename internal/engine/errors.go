package engine

import (
	"fmt"
	"time"
)

// ErrRetryLater tells the caller to retry the same turn after a delay. The
// engine never retries rate-limited turns itself; retry policy belongs to the
// transport layer.
type ErrRetryLater struct {
	After time.Duration
	Err   error
}

func (e *ErrRetryLater) Error() string {
	return fmt.Sprintf("provider rate limited, retry after %s: %v", e.After, e.Err)
}

func (e *ErrRetryLater) Unwrap() error { return e.Err }
