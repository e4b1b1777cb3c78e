package progression

import (
	"errors"
	"testing"
	"time"
)

func TestPromotionAfterStrongStreak(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState()

	tr := s.RecordScore(cfg, 0.8, 10)
	if tr.Changed {
		t.Fatalf("promoted after one strong score")
	}
	tr = s.RecordScore(cfg, 0.75, 10)
	if !tr.Changed || tr.To != LevelStandard {
		t.Fatalf("transition = %+v, want warmup->standard", tr)
	}
	if s.StrongStreak != 0 {
		t.Fatalf("strong streak = %d after promotion, want 0", s.StrongStreak)
	}

	// Two more strong answers reach advanced; further strong answers stay.
	s.RecordScore(cfg, 0.9, 10)
	tr = s.RecordScore(cfg, 0.9, 10)
	if tr.To != LevelAdvanced {
		t.Fatalf("level = %s, want advanced", tr.To)
	}
	s.RecordScore(cfg, 0.95, 10)
	tr = s.RecordScore(cfg, 0.95, 10)
	if tr.Changed || tr.To != LevelAdvanced {
		t.Fatalf("advanced is the ceiling, got %+v", tr)
	}
}

func TestDemotionAfterWeakStreak(t *testing.T) {
	cfg := DefaultConfig()
	s := &State{Level: LevelStandard}

	s.RecordScore(cfg, 0.1, 10)
	s.RecordScore(cfg, 0.2, 10)
	tr := s.RecordScore(cfg, 0.3, 10)
	if !tr.Changed || tr.To != LevelWarmup {
		t.Fatalf("transition = %+v, want standard->warmup", tr)
	}

	// Warmup is the floor.
	s.RecordScore(cfg, 0, 10)
	s.RecordScore(cfg, 0, 10)
	tr = s.RecordScore(cfg, 0, 10)
	if tr.Changed || tr.To != LevelWarmup {
		t.Fatalf("demoted below warmup: %+v", tr)
	}
}

func TestMixedScoresResetStreaks(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState()

	s.RecordScore(cfg, 0.9, 10)
	s.RecordScore(cfg, 0.5, 10) // middling, resets the strong streak
	tr := s.RecordScore(cfg, 0.9, 10)
	if tr.Changed {
		t.Fatalf("promoted without consecutive strong scores: %+v", tr)
	}
}

func TestSlowResponseShadesScore(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState()

	// 0.77 on its own clears the promote threshold; minus the latency shade
	// it lands at 0.72 and the streak never starts.
	s.RecordScore(cfg, 0.77, 300)
	s.RecordScore(cfg, 0.77, 300)
	if s.Level != LevelWarmup {
		t.Fatalf("level = %s, want warmup (slow responses shaded)", s.Level)
	}
	if diff := s.Scores[0] - 0.72; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("recorded score = %v, want 0.72", s.Scores[0])
	}
}

func TestPercentScaleNormalized(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState()
	s.RecordScore(cfg, 80, 10)
	if s.Scores[0] != 0.8 {
		t.Fatalf("recorded score = %v, want 0.8", s.Scores[0])
	}
}

func TestScoreClamped(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState()
	s.RecordScore(cfg, 0.02, 500)
	if s.Scores[0] != 0 {
		t.Fatalf("recorded score = %v, want clamp to 0", s.Scores[0])
	}
}

func TestStateSerializeRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState()
	s.RecordScore(cfg, 0.8, 10)
	s.NoteQuestionAsked()
	s.NoteQuestionAsked()

	blob, err := s.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := DeserializeState(blob)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.Level != s.Level || got.StrongStreak != s.StrongStreak || got.QuestionsAsked != 2 {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, s)
	}
	if len(got.Scores) != 1 || got.Scores[0] != 0.8 {
		t.Fatalf("scores = %v", got.Scores)
	}
}

func TestDeserializeStateCorrupt(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"empty", ""},
		{"not json", "!"},
		{"bad level", `{"version":1,"state":{"level":"expert"}}`},
		{"future version", `{"version":7,"state":{"level":"warmup"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeserializeState([]byte(tt.blob))
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestDeserializeStateDefaultsEmptyLevel(t *testing.T) {
	got, err := DeserializeState([]byte(`{"version":1,"state":{}}`))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.Level != LevelWarmup {
		t.Fatalf("level = %s, want warmup", got.Level)
	}
}

func TestBoundariesObserveUpserts(t *testing.T) {
	b := NewBoundaries()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	b.Observe("channels", LevelWarmup, t0)
	b.Observe("channels", LevelStandard, t1)
	b.Observe("", LevelAdvanced, t1) // ignored

	if len(b) != 1 {
		t.Fatalf("got %d topics, want 1", len(b))
	}
	bd := b["channels"]
	if bd.Level != LevelStandard {
		t.Fatalf("level = %s, want most recent (standard)", bd.Level)
	}
	if !bd.AssessedAt.Equal(t1) {
		t.Fatalf("assessed at = %v, want %v", bd.AssessedAt, t1)
	}
	if bd.TimesAssessed != 2 {
		t.Fatalf("times assessed = %d, want 2", bd.TimesAssessed)
	}
}

func TestBoundariesSerializeRoundTrip(t *testing.T) {
	b := NewBoundaries()
	b.Observe("gil", LevelAdvanced, time.Now().UTC())

	blob, err := b.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := DeserializeBoundaries(blob)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got["gil"].Level != LevelAdvanced {
		t.Fatalf("round trip lost boundary: %+v", got)
	}

	if _, err := DeserializeBoundaries([]byte(`{"version":1,"topics":{"x":{"level":"bogus"}}}`)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("bad level error = %v, want ErrCorrupt", err)
	}
}
