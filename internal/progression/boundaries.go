package progression

import (
	"encoding/json"
	"fmt"
	"time"
)

// Boundary is the most recently assessed proficiency for one skill topic.
type Boundary struct {
	Level         Level     `json:"level"`
	AssessedAt    time.Time `json:"assessed_at"`
	TimesAssessed int       `json:"times_assessed"`
}

// Boundaries maps skill topics to their assessed boundary. Entries are
// upserted and never removed; a later assessment overwrites an earlier one.
type Boundaries map[string]Boundary

func NewBoundaries() Boundaries {
	return make(Boundaries)
}

// Observe records that the candidate was assessed on topic at the given tier.
func (b Boundaries) Observe(topic string, level Level, at time.Time) {
	if topic == "" {
		return
	}
	prev := b[topic]
	b[topic] = Boundary{
		Level:         level,
		AssessedAt:    at,
		TimesAssessed: prev.TimesAssessed + 1,
	}
}

type serializedBoundaries struct {
	Version int                 `json:"version"`
	Topics  map[string]Boundary `json:"topics"`
}

// Serialize produces the opaque blob stored in the session row.
func (b Boundaries) Serialize() ([]byte, error) {
	data, err := json.Marshal(serializedBoundaries{Version: serializedVersion, Topics: b})
	if err != nil {
		return nil, fmt.Errorf("serialize skill boundaries: %w", err)
	}
	return data, nil
}

// DeserializeBoundaries reconstructs Boundaries from a persisted blob.
func DeserializeBoundaries(data []byte) (Boundaries, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrCorrupt)
	}
	var s serializedBoundaries
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.Version < 0 || s.Version > serializedVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, s.Version)
	}
	for topic, bd := range s.Topics {
		if !bd.Level.valid() {
			return nil, fmt.Errorf("%w: topic %q has unknown level %q", ErrCorrupt, topic, bd.Level)
		}
	}
	if s.Topics == nil {
		s.Topics = make(map[string]Boundary)
	}
	return Boundaries(s.Topics), nil
}
