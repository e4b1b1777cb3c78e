package interview

import (
	"context"
	"strings"
)

// Store persists interviews, their sessions and their transcripts.
//
// Same-interview turns are mutually exclusive: BeginTurn acquires the
// interview's turn slot and fails with ErrTurnInProgress when it is taken.
// Turns on distinct interviews never contend.
type Store interface {
	CreateInterview(ctx context.Context, iv Interview) error
	GetInterview(ctx context.Context, id string) (*Interview, error)

	// UpdateStatus moves an interview along the lifecycle ladder. The
	// transition is applied only when the current status is one of from;
	// otherwise ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id string, from []Status, to Status) error

	GetSession(ctx context.Context, interviewID string) (*Session, error)
	PutSession(ctx context.Context, s Session) error

	ListMessages(ctx context.Context, interviewID string) ([]Message, error)

	// BeginTurn reserves the interview's single turn slot; EndTurn releases
	// it. EndTurn is safe to call when the slot was never acquired.
	BeginTurn(ctx context.Context, interviewID string) error
	EndTurn(ctx context.Context, interviewID string) error

	// CommitTurn atomically appends the commit's messages (assigning strictly
	// increasing sequence numbers), adds the cost delta to the interview's
	// accumulators and replaces the session snapshot. It returns the
	// messages with their assigned sequence numbers.
	CommitTurn(ctx context.Context, tc TurnCommit) ([]Message, error)

	// AddCosts adds a cost delta outside a turn (realtime audio metering).
	AddCosts(ctx context.Context, interviewID string, d CostDelta) error

	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
