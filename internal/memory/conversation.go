// Package memory holds the bounded conversation history exchanged with the
// AI provider during an interview. The log is append-only except for
// pair-wise truncation of the oldest exchanges; a leading system turn is
// never truncated away.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt indicates a persisted conversation blob could not be
// reconstructed. Corrupt memory is never silently reset: resetting would lose
// the interview's audit history.
var ErrCorrupt = errors.New("conversation memory corrupt")

// serializedVersion is the current on-disk schema version. Version 0 blobs
// (written before the version field existed) share the same shape and are
// accepted as-is.
const serializedVersion = 1

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged entry in the conversation log.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the in-process working representation of a session's
// conversation memory, rehydrated from the session row on load.
type Conversation struct {
	turns           []Turn
	createdAt       time.Time
	truncationCount int
}

func New() *Conversation {
	return &Conversation{createdAt: time.Now().UTC()}
}

// SetSystem installs or replaces the leading system turn.
func (c *Conversation) SetSystem(content string) {
	if len(c.turns) > 0 && c.turns[0].Role == RoleSystem {
		c.turns[0].Content = content
		return
	}
	c.turns = append([]Turn{{Role: RoleSystem, Content: content}}, c.turns...)
}

// SaveContext appends exactly one user turn and one assistant turn.
func (c *Conversation) SaveContext(userInput, assistantOutput string) {
	c.turns = append(c.turns,
		Turn{Role: RoleUser, Content: userInput},
		Turn{Role: RoleAssistant, Content: assistantOutput},
	)
}

// Messages returns a copy of the current turn log in order.
func (c *Conversation) Messages() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// TruncateHistory drops all but the most recent keepLastN exchanges (a
// user+assistant pair each), preserving a leading system turn. The truncation
// counter advances by exactly one per call regardless of how many turns were
// dropped.
func (c *Conversation) TruncateHistory(keepLastN int) {
	c.truncationCount++

	if keepLastN < 0 {
		keepLastN = 0
	}

	var system []Turn
	body := c.turns
	if len(body) > 0 && body[0].Role == RoleSystem {
		system = body[:1]
		body = body[1:]
	}

	keep := keepLastN * 2
	if keep < len(body) {
		body = body[len(body)-keep:]
	}

	c.turns = append(append([]Turn{}, system...), body...)
}

// Clear empties the turn log. The truncation counter is deliberately left
// alone; it records lifetime truncations, not current length.
func (c *Conversation) Clear() {
	c.turns = nil
}

func (c *Conversation) TruncationCount() int { return c.truncationCount }

func (c *Conversation) MessageCount() int { return len(c.turns) }

func (c *Conversation) CreatedAt() time.Time { return c.createdAt }

type serializedMetadata struct {
	MessageCount    int       `json:"message_count"`
	CreatedAt       time.Time `json:"created_at"`
	TruncationCount int       `json:"truncation_count"`
}

type serializedConversation struct {
	Version  int                `json:"version"`
	Messages []Turn             `json:"messages"`
	Metadata serializedMetadata `json:"memory_metadata"`
}

// Serialize produces the opaque blob stored in the session row. The result
// round-trips exactly through Deserialize.
func (c *Conversation) Serialize() ([]byte, error) {
	s := serializedConversation{
		Version:  serializedVersion,
		Messages: c.Messages(),
		Metadata: serializedMetadata{
			MessageCount:    len(c.turns),
			CreatedAt:       c.createdAt,
			TruncationCount: c.truncationCount,
		},
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serialize conversation: %w", err)
	}
	return data, nil
}

// Deserialize reconstructs a Conversation from a persisted blob. Malformed
// input fails with an error wrapping ErrCorrupt.
func Deserialize(data []byte) (*Conversation, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrCorrupt)
	}

	var s serializedConversation
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.Version < 0 || s.Version > serializedVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, s.Version)
	}
	if s.Metadata.MessageCount != len(s.Messages) {
		return nil, fmt.Errorf("%w: metadata reports %d messages, blob holds %d",
			ErrCorrupt, s.Metadata.MessageCount, len(s.Messages))
	}
	for i, t := range s.Messages {
		switch t.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return nil, fmt.Errorf("%w: message %d has unknown role %q", ErrCorrupt, i, t.Role)
		}
	}

	createdAt := s.Metadata.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &Conversation{
		turns:           s.Messages,
		createdAt:       createdAt,
		truncationCount: s.Metadata.TruncationCount,
	}, nil
}
