package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/novahire/novahire/internal/ai"
	"github.com/novahire/novahire/internal/billing"
	"github.com/novahire/novahire/internal/cache"
	"github.com/novahire/novahire/internal/interview"
	"github.com/novahire/novahire/internal/jobs"
	"github.com/novahire/novahire/internal/memory"
	"github.com/novahire/novahire/internal/observability"
	"github.com/novahire/novahire/internal/progression"
)

type testHarness struct {
	engine   *Engine
	store    *interview.MemoryStore
	provider *ai.MockProvider
	jobs     *jobs.MemoryLookup
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	store := interview.NewMemoryStore()
	provider := ai.NewMockProvider()
	lookup := jobs.NewMemoryLookup()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	rates := billing.NewRates(0.006, 0.015, 0.06, 0.24, 0.01, 0.03)

	eng := New(store, provider, lookup, rates, metrics, zap.NewNop(), Config{
		MaxTokens:     1024,
		Temperature:   0.7,
		HistoryWindow: 20,
		TruncateKeep:  5,
		Progression:   progression.DefaultConfig(),
	}, cache.NewTTL(time.Minute))

	return &testHarness{engine: eng, store: store, provider: provider, jobs: lookup}
}

func (h *testHarness) createInterview(t *testing.T, id string, role interview.RoleType) {
	t.Helper()
	err := h.store.CreateInterview(context.Background(), interview.Interview{
		ID:          id,
		CandidateID: "cand-1",
		RoleType:    role,
		Status:      interview.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("create interview: %v", err)
	}
}

// strongAnswer builds an answer long enough and on-topic enough to clear the
// promotion threshold for whatever question was just asked.
func strongAnswer(question string) string {
	return strings.Repeat("detail ", 130) + strings.ToLower(question)
}

func TestStartInterview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)

	result, err := h.engine.StartInterview(ctx, "iv-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if result.Question.Type != interview.MessageAIQuestion || result.Question.ContentText == "" {
		t.Fatalf("opening question = %+v", result.Question)
	}
	if result.Question.SequenceNumber != 1 {
		t.Fatalf("opening sequence = %d, want 1", result.Question.SequenceNumber)
	}
	if result.Difficulty != progression.LevelWarmup {
		t.Fatalf("difficulty = %s, want warmup", result.Difficulty)
	}
	if result.QuestionsAsked != 1 {
		t.Fatalf("questions asked = %d, want 1", result.QuestionsAsked)
	}

	iv, err := h.store.GetInterview(ctx, "iv-1")
	if err != nil {
		t.Fatalf("get interview: %v", err)
	}
	if iv.Status != interview.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", iv.Status)
	}

	sess, err := h.store.GetSession(ctx, "iv-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.DifficultyLevel != string(progression.LevelWarmup) || sess.QuestionsAskedCount != 1 {
		t.Fatalf("session = %+v", sess)
	}

	// The mock sees the golang role template in the system prompt.
	if len(h.provider.Calls) != 1 || !strings.Contains(strings.ToLower(h.provider.Calls[0].System), "golang") {
		t.Fatalf("provider calls = %+v", h.provider.Calls)
	}
}

func TestStartInterviewLifecycleGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.StartInterview(ctx, "missing"); !errors.Is(err, interview.ErrNotFound) {
		t.Fatalf("missing interview error = %v, want ErrNotFound", err)
	}

	h.createInterview(t, "iv-1", interview.RoleGolang)
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.engine.StartInterview(ctx, "iv-1"); !errors.Is(err, interview.ErrInvalidTransition) {
		t.Fatalf("double start error = %v, want ErrInvalidTransition", err)
	}

	if err := h.engine.Complete(ctx, "iv-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := h.engine.StartInterview(ctx, "iv-1"); !errors.Is(err, interview.ErrCompleted) {
		t.Fatalf("start after completion error = %v, want ErrCompleted", err)
	}
}

func TestRunTurnHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: "Goroutines are scheduled by the runtime, not the OS."})
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}

	if result.Response == nil || result.Response.Type != interview.MessageCandidateResponse {
		t.Fatalf("response message = %+v", result.Response)
	}
	if result.Question.Type != interview.MessageAIQuestion {
		t.Fatalf("question message = %+v", result.Question)
	}
	if result.Response.SequenceNumber != 2 || result.Question.SequenceNumber != 3 {
		t.Fatalf("sequences = %d, %d, want 2, 3", result.Response.SequenceNumber, result.Question.SequenceNumber)
	}
	if result.QuestionsAsked != 2 {
		t.Fatalf("questions asked = %d, want 2", result.QuestionsAsked)
	}
	if result.TotalTokensUsed <= 0 {
		t.Fatalf("token accumulator = %d, want > 0", result.TotalTokensUsed)
	}

	msgs, err := h.store.ListMessages(ctx, "iv-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("transcript length = %d, want 3", len(msgs))
	}
}

func TestRunTurnRequiresInProgress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)

	if _, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: "hi"}); !errors.Is(err, interview.ErrInvalidTransition) {
		t.Fatalf("turn on scheduled error = %v, want ErrInvalidTransition", err)
	}
}

func TestRunTurnAfterTerminalStateFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.engine.Complete(ctx, "iv-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	before, _ := h.store.ListMessages(ctx, "iv-1")
	_, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: "too late"})
	if !errors.Is(err, interview.ErrCompleted) {
		t.Fatalf("turn after completion error = %v, want ErrCompleted", err)
	}
	after, _ := h.store.ListMessages(ctx, "iv-1")
	if len(after) != len(before) {
		t.Fatalf("transcript grew after terminal state: %d -> %d", len(before), len(after))
	}
}

func TestDifficultyPromotesOnStrongAnswers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)

	start, err := h.engine.StartInterview(ctx, "iv-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: strongAnswer(start.Question.ContentText)})
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if first.Difficulty != progression.LevelWarmup {
		t.Fatalf("difficulty after one strong answer = %s, want warmup", first.Difficulty)
	}

	second, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: strongAnswer(first.Question.ContentText)})
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if second.Difficulty != progression.LevelStandard {
		t.Fatalf("difficulty after two strong answers = %s, want standard", second.Difficulty)
	}

	sess, err := h.store.GetSession(ctx, "iv-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.DifficultyLevel != string(progression.LevelStandard) {
		t.Fatalf("persisted difficulty = %s, want standard", sess.DifficultyLevel)
	}
	bounds, err := progression.DeserializeBoundaries(sess.SkillBoundaries)
	if err != nil {
		t.Fatalf("deserialize boundaries: %v", err)
	}
	if len(bounds) == 0 {
		t.Fatalf("no skill boundaries recorded after on-topic answers")
	}
}

func TestContextOverflowTruncatesOnceAndRetries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	callsBefore := h.provider.CallCount()

	h.provider.EnqueueError(&ai.ErrContextLength{Err: errors.New("too long")})

	if _, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: "an answer"}); err != nil {
		t.Fatalf("turn with overflow: %v", err)
	}

	if got := h.provider.CallCount() - callsBefore; got != 2 {
		t.Fatalf("provider calls during turn = %d, want 2 (original + one retry)", got)
	}

	sess, err := h.store.GetSession(ctx, "iv-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	conv, err := memory.Deserialize(sess.ConversationMemory)
	if err != nil {
		t.Fatalf("deserialize memory: %v", err)
	}
	if conv.TruncationCount() != 1 {
		t.Fatalf("truncation count = %d, want 1", conv.TruncationCount())
	}
}

func TestContextOverflowOnRetryFailsTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.provider.EnqueueError(&ai.ErrContextLength{Err: errors.New("too long")})
	h.provider.EnqueueError(&ai.ErrContextLength{Err: errors.New("still too long")})

	_, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: "an answer"})
	var cl *ai.ErrContextLength
	if !errors.As(err, &cl) {
		t.Fatalf("error = %v, want context length", err)
	}

	// Nothing persisted: transcript and session snapshot are untouched.
	msgs, _ := h.store.ListMessages(ctx, "iv-1")
	if len(msgs) != 1 {
		t.Fatalf("transcript length = %d, want 1", len(msgs))
	}
	sess, err := h.store.GetSession(ctx, "iv-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	conv, err := memory.Deserialize(sess.ConversationMemory)
	if err != nil {
		t.Fatalf("deserialize memory: %v", err)
	}
	if conv.TruncationCount() != 0 {
		t.Fatalf("persisted truncation count = %d, want 0 (failed turn must not commit)", conv.TruncationCount())
	}

	// The interview stays live and the next turn succeeds.
	if _, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: "trying again"}); err != nil {
		t.Fatalf("turn after failure: %v", err)
	}
}

func TestRateLimitBecomesRetryLater(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.provider.EnqueueError(&ai.ErrRateLimit{RetryAfter: 7 * time.Second, Err: errors.New("429")})
	_, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: "an answer"})
	var retry *ErrRetryLater
	if !errors.As(err, &retry) {
		t.Fatalf("error = %v, want ErrRetryLater", err)
	}
	if retry.After != 7*time.Second {
		t.Fatalf("retry after = %s, want provider's 7s", retry.After)
	}

	// Without a provider hint the engine picks its own backoff.
	h.provider.EnqueueError(&ai.ErrRateLimit{Err: errors.New("429")})
	_, err = h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: "an answer"})
	if !errors.As(err, &retry) {
		t.Fatalf("error = %v, want ErrRetryLater", err)
	}
	if retry.After <= 0 {
		t.Fatalf("retry after = %s, want a positive backoff", retry.After)
	}
}

func TestConcurrentTurnRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Simulate an in-flight turn holding the slot.
	if err := h.store.BeginTurn(ctx, "iv-1"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: "hi"}); !errors.Is(err, interview.ErrTurnInProgress) {
		t.Fatalf("error = %v, want ErrTurnInProgress", err)
	}
	if err := h.store.EndTurn(ctx, "iv-1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{Text: "hi"}); err != nil {
		t.Fatalf("turn after release: %v", err)
	}
}

// slotTrackingStore records the liveness of the context each EndTurn call
// receives.
type slotTrackingStore struct {
	*interview.MemoryStore
	endTurnCtxErrs []error
}

func (s *slotTrackingStore) EndTurn(ctx context.Context, interviewID string) error {
	s.endTurnCtxErrs = append(s.endTurnCtxErrs, ctx.Err())
	return s.MemoryStore.EndTurn(ctx, interviewID)
}

// cancellingProvider cancels the turn's context mid-call, the way a client
// disconnect does, then fails the completion.
type cancellingProvider struct {
	*ai.MockProvider
	cancel context.CancelFunc
}

func (p *cancellingProvider) GenerateCompletion(ctx context.Context, req ai.Request) (*ai.Response, error) {
	p.cancel()
	return nil, &ai.ErrProviderUnavailable{Err: context.Canceled}
}

func TestCancelledTurnReleasesSlot(t *testing.T) {
	store := &slotTrackingStore{MemoryStore: interview.NewMemoryStore()}
	provider := ai.NewMockProvider()
	lookup := jobs.NewMemoryLookup()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	rates := billing.NewRates(0.006, 0.015, 0.06, 0.24, 0.01, 0.03)
	cfg := Config{
		MaxTokens:     1024,
		Temperature:   0.7,
		HistoryWindow: 20,
		TruncateKeep:  5,
		Progression:   progression.DefaultConfig(),
	}
	eng := New(store, provider, lookup, rates, metrics, zap.NewNop(), cfg, cache.NewTTL(time.Minute))

	ctx := context.Background()
	err := store.CreateInterview(ctx, interview.Interview{
		ID:          "iv-1",
		CandidateID: "cand-1",
		RoleType:    interview.RoleGolang,
		Status:      interview.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := eng.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cancelled := New(store, &cancellingProvider{MockProvider: provider, cancel: cancel}, lookup, rates, metrics, zap.NewNop(), cfg, cache.NewTTL(time.Minute))
	if _, err := cancelled.RunTurn(turnCtx, "iv-1", TurnInput{Text: "an answer"}); err == nil {
		t.Fatalf("turn with cancelled context succeeded")
	}

	// The release must run on a live context even though the turn's context
	// died mid-call.
	if n := len(store.endTurnCtxErrs); n == 0 {
		t.Fatalf("turn slot never released")
	}
	if last := store.endTurnCtxErrs[len(store.endTurnCtxErrs)-1]; last != nil {
		t.Fatalf("slot release saw a dead context: %v", last)
	}

	// The slot is free: the next turn is not rejected as concurrent.
	if _, err := eng.RunTurn(ctx, "iv-1", TurnInput{Text: "trying again"}); err != nil {
		t.Fatalf("turn after cancelled turn: %v", err)
	}
}

func TestTurnFailureLogsSequence(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store := interview.NewMemoryStore()
	provider := ai.NewMockProvider()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	rates := billing.NewRates(0.006, 0.015, 0.06, 0.24, 0.01, 0.03)
	eng := New(store, provider, jobs.NewMemoryLookup(), rates, metrics, zap.New(core), Config{
		MaxTokens:     1024,
		Temperature:   0.7,
		HistoryWindow: 20,
		TruncateKeep:  5,
		Progression:   progression.DefaultConfig(),
	}, cache.NewTTL(time.Minute))

	ctx := context.Background()
	err := store.CreateInterview(ctx, interview.Interview{
		ID:          "iv-1",
		CandidateID: "cand-1",
		RoleType:    interview.RoleGolang,
		Status:      interview.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := eng.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	provider.EnqueueError(&ai.ErrProviderUnavailable{Err: errors.New("upstream down")})
	if _, err := eng.RunTurn(ctx, "iv-1", TurnInput{Text: "an answer"}); err == nil {
		t.Fatalf("turn with provider failure succeeded")
	}

	entries := logs.FilterMessage("interview turn failed").All()
	if len(entries) != 1 {
		t.Fatalf("failure log entries = %d, want 1", len(entries))
	}
	// The opening question is sequence 1, so the failed turn would have
	// committed sequence 2.
	seq, ok := entries[0].ContextMap()["turn_sequence"].(int64)
	if !ok || seq != 2 {
		t.Fatalf("turn_sequence = %v, want 2", entries[0].ContextMap()["turn_sequence"])
	}
}

func TestSpokenResponseAccruesSpeechCost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := h.engine.RunTurn(ctx, "iv-1", TurnInput{
		Text:                 "Spoken answer about goroutines.",
		AudioURL:             "s3://bucket/answer.ogg",
		AudioDurationSeconds: 90,
	})
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if result.SpeechCostUSD.IsZero() {
		t.Fatalf("speech cost not accrued for spoken response")
	}
	if result.Response.ContentAudioURL != "s3://bucket/answer.ogg" {
		t.Fatalf("audio url = %q", result.Response.ContentAudioURL)
	}

	iv, err := h.store.GetInterview(ctx, "iv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if iv.SpeechTokensUsed <= 0 {
		t.Fatalf("speech tokens = %d, want > 0", iv.SpeechTokensUsed)
	}
}

func TestMeterRealtime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	b, err := h.engine.MeterRealtime(ctx, "iv-1", 600, 600, 1000, 1000)
	if err != nil {
		t.Fatalf("meter: %v", err)
	}
	if b.Total.StringFixed(4) != "3.0400" {
		t.Fatalf("realtime total = %s, want 3.0400", b.Total.StringFixed(4))
	}

	iv, err := h.store.GetInterview(ctx, "iv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if iv.RealtimeCostUSD.StringFixed(4) != "3.0400" {
		t.Fatalf("accumulator = %s, want 3.0400", iv.RealtimeCostUSD.StringFixed(4))
	}

	if err := h.engine.Complete(ctx, "iv-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := h.engine.MeterRealtime(ctx, "iv-1", 60, 60, 0, 0); !errors.Is(err, interview.ErrCompleted) {
		t.Fatalf("meter after completion error = %v, want ErrCompleted", err)
	}
}

func TestAbandon(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)

	if err := h.engine.Abandon(ctx, "iv-1"); err != nil {
		t.Fatalf("abandon from scheduled: %v", err)
	}
	iv, err := h.store.GetInterview(ctx, "iv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if iv.Status != interview.StatusAbandoned {
		t.Fatalf("status = %s, want abandoned", iv.Status)
	}
	if err := h.engine.Abandon(ctx, "iv-1"); !errors.Is(err, interview.ErrCompleted) {
		t.Fatalf("double abandon error = %v, want ErrCompleted", err)
	}
}

func TestJobPostingShapesPrompt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.jobs.Put(jobs.Posting{
		ID:             "job-1",
		Title:          "Backend Engineer",
		Company:        "Acme Robotics",
		RequiredSkills: []string{"goroutines", "postgres"},
	})
	err := h.store.CreateInterview(ctx, interview.Interview{
		ID:           "iv-1",
		CandidateID:  "cand-1",
		JobPostingID: "job-1",
		RoleType:     interview.RoleGolang,
		Status:       interview.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	system := h.provider.Calls[0].System
	if !strings.Contains(system, "Acme Robotics") || !strings.Contains(system, "postgres") {
		t.Fatalf("system prompt missing job context:\n%s", system)
	}
}

func TestMissingPostingIsNotFatal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	err := h.store.CreateInterview(ctx, interview.Interview{
		ID:           "iv-1",
		CandidateID:  "cand-1",
		JobPostingID: "job-gone",
		RoleType:     interview.RoleGolang,
		Status:       interview.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start with missing posting: %v", err)
	}
}

func TestExplainLastQuestionCaches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createInterview(t, "iv-1", interview.RoleGolang)
	if _, err := h.engine.StartInterview(ctx, "iv-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	callsAfterStart := h.provider.CallCount()

	first, err := h.engine.ExplainLastQuestion(ctx, "iv-1")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if first == "" {
		t.Fatalf("empty explanation")
	}
	if h.provider.CallCount() != callsAfterStart+1 {
		t.Fatalf("explain did not call the provider exactly once")
	}

	second, err := h.engine.ExplainLastQuestion(ctx, "iv-1")
	if err != nil {
		t.Fatalf("cached explain: %v", err)
	}
	if second != first {
		t.Fatalf("cached explanation differs")
	}
	if h.provider.CallCount() != callsAfterStart+1 {
		t.Fatalf("cache miss on second explain")
	}
}
