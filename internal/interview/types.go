// Package interview defines the durable records of the interview domain and
// the persistence contract the engine drives them through.
package interview

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the interview lifecycle ladder:
// scheduled -> in_progress -> {completed, abandoned}.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further turns are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// RoleType selects the interviewer's role-specific question template.
type RoleType string

const (
	RoleGolang     RoleType = "golang"
	RoleJavaScript RoleType = "javascript"
	RolePython     RoleType = "python"
	RoleFullstack  RoleType = "fullstack"
)

// Interview owns the cost accumulators. All five are monotonically
// non-decreasing; only CommitTurn and AddCosts may grow them.
type Interview struct {
	ID           string   `json:"id"`
	CandidateID  string   `json:"candidate_id"`
	JobPostingID string   `json:"job_posting_id,omitempty"`
	RoleType     RoleType `json:"role_type"`
	Status       Status   `json:"status"`

	TotalTokensUsed  int64           `json:"total_tokens_used"`
	CostUSD          decimal.Decimal `json:"cost_usd"`
	SpeechTokensUsed int64           `json:"speech_tokens_used"`
	SpeechCostUSD    decimal.Decimal `json:"speech_cost_usd"`
	RealtimeCostUSD  decimal.Decimal `json:"realtime_cost_usd"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is the per-interview engine state. The three blob fields are opaque
// to everything except the memory and progression packages' serialization
// contracts. Exactly one session exists per interview and it dies with it.
type Session struct {
	InterviewID         string    `json:"interview_id"`
	DifficultyLevel     string    `json:"difficulty_level"`
	QuestionsAskedCount int       `json:"questions_asked_count"`
	ConversationMemory  []byte    `json:"conversation_memory"`
	SkillBoundaries     []byte    `json:"skill_boundaries_identified"`
	ProgressionState    []byte    `json:"progression_state"`
	LastActivityAt      time.Time `json:"last_activity_at"`
}

// MessageType tags who produced a message.
type MessageType string

const (
	MessageAIQuestion        MessageType = "ai_question"
	MessageCandidateResponse MessageType = "candidate_response"
)

// Message is one append-only transcript entry, ordered by SequenceNumber
// within its interview. Messages are never mutated or deleted except by
// cascading interview deletion.
type Message struct {
	ID                   string      `json:"id"`
	InterviewID          string      `json:"interview_id"`
	SequenceNumber       int         `json:"sequence_number"`
	Type                 MessageType `json:"message_type"`
	ContentText          string      `json:"content_text"`
	ContentAudioURL      string      `json:"content_audio_url,omitempty"`
	AudioDurationSeconds float64     `json:"audio_duration_seconds,omitempty"`
	ResponseTimeSeconds  float64     `json:"response_time_seconds,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
}

// CostDelta is one turn's worth of cost increments. Deltas are added to the
// interview's accumulators, never assigned.
type CostDelta struct {
	Tokens       int64
	Chat         decimal.Decimal
	SpeechTokens int64
	Speech       decimal.Decimal
	Realtime     decimal.Decimal
}

// IsZero reports whether the delta carries nothing.
func (d CostDelta) IsZero() bool {
	return d.Tokens == 0 && d.SpeechTokens == 0 &&
		d.Chat.IsZero() && d.Speech.IsZero() && d.Realtime.IsZero()
}

// TurnCommit is the all-or-nothing unit of one turn: message appends, cost
// increments and the session snapshot land together or not at all. Sequence
// numbers are assigned by the store at commit time.
type TurnCommit struct {
	InterviewID string
	Messages    []Message
	Costs       CostDelta
	Session     Session
}
