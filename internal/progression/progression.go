// Package progression decides the next question's difficulty tier from the
// running history of response quality. All of its state serializes with the
// session; nothing survives only in process memory.
package progression

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorrupt indicates a persisted progression blob could not be
// reconstructed.
var ErrCorrupt = errors.New("progression state corrupt")

const serializedVersion = 1

// Level is a difficulty tier on the linear warmup -> standard -> advanced
// ladder.
type Level string

const (
	LevelWarmup   Level = "warmup"
	LevelStandard Level = "standard"
	LevelAdvanced Level = "advanced"
)

func (l Level) valid() bool {
	switch l {
	case LevelWarmup, LevelStandard, LevelAdvanced:
		return true
	}
	return false
}

func (l Level) promote() Level {
	switch l {
	case LevelWarmup:
		return LevelStandard
	case LevelStandard:
		return LevelAdvanced
	}
	return l
}

func (l Level) demote() Level {
	switch l {
	case LevelAdvanced:
		return LevelStandard
	case LevelStandard:
		return LevelWarmup
	}
	return l
}

// Config holds the promotion/demotion tuning. The thresholds are a deliberate
// choice: promote one tier after PromoteStreak consecutive scores at or above
// PromoteThreshold, demote one tier (never below warmup) after DemoteStreak
// consecutive scores below DemoteThreshold. Tier changes reset both streaks.
type Config struct {
	PromoteStreak    int
	PromoteThreshold float64
	DemoteStreak     int
	DemoteThreshold  float64

	// Responses slower than SlowResponseSecs shade the score down by 0.05
	// before it is recorded. Latency is a weak signal only.
	SlowResponseSecs float64
}

// DefaultConfig matches the service defaults and is what tests tune against.
func DefaultConfig() Config {
	return Config{
		PromoteStreak:    2,
		PromoteThreshold: 0.75,
		DemoteStreak:     3,
		DemoteThreshold:  0.35,
		SlowResponseSecs: 180,
	}
}

// State is the machine's durable state: current tier plus the ordered score
// history and the streak counters derived from it.
type State struct {
	Level          Level     `json:"level"`
	Scores         []float64 `json:"scores"`
	StrongStreak   int       `json:"strong_streak"`
	WeakStreak     int       `json:"weak_streak"`
	QuestionsAsked int       `json:"questions_asked"`
}

func NewState() *State {
	return &State{Level: LevelWarmup}
}

// Transition reports the outcome of recording one score.
type Transition struct {
	From    Level
	To      Level
	Changed bool
}

// RecordScore appends one response-quality score and applies the ladder
// rules. Scores above 1 are assumed to be on a 0-100 scale and normalized.
func (s *State) RecordScore(cfg Config, score, responseTimeSecs float64) Transition {
	if score > 1 {
		score /= 100
	}
	if cfg.SlowResponseSecs > 0 && responseTimeSecs > cfg.SlowResponseSecs {
		score -= 0.05
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	s.Scores = append(s.Scores, score)

	if score >= cfg.PromoteThreshold {
		s.StrongStreak++
		s.WeakStreak = 0
	} else if score < cfg.DemoteThreshold {
		s.WeakStreak++
		s.StrongStreak = 0
	} else {
		s.StrongStreak = 0
		s.WeakStreak = 0
	}

	tr := Transition{From: s.Level, To: s.Level}

	if s.StrongStreak >= cfg.PromoteStreak && s.Level != LevelAdvanced {
		s.Level = s.Level.promote()
		s.StrongStreak = 0
		s.WeakStreak = 0
	} else if s.WeakStreak >= cfg.DemoteStreak && s.Level != LevelWarmup {
		s.Level = s.Level.demote()
		s.StrongStreak = 0
		s.WeakStreak = 0
	}

	tr.To = s.Level
	tr.Changed = tr.From != tr.To
	return tr
}

// NoteQuestionAsked increments the question counter. It advances on every
// generated question regardless of tier changes.
func (s *State) NoteQuestionAsked() {
	s.QuestionsAsked++
}

type serializedState struct {
	Version int   `json:"version"`
	State   State `json:"state"`
}

// Serialize produces the opaque blob stored in the session row.
func (s *State) Serialize() ([]byte, error) {
	data, err := json.Marshal(serializedState{Version: serializedVersion, State: *s})
	if err != nil {
		return nil, fmt.Errorf("serialize progression state: %w", err)
	}
	return data, nil
}

// DeserializeState reconstructs a State from a persisted blob.
func DeserializeState(data []byte) (*State, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrCorrupt)
	}
	var s serializedState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.Version < 0 || s.Version > serializedVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, s.Version)
	}
	if s.State.Level == "" {
		s.State.Level = LevelWarmup
	}
	if !s.State.Level.valid() {
		return nil, fmt.Errorf("%w: unknown level %q", ErrCorrupt, s.State.Level)
	}
	st := s.State
	return &st, nil
}
