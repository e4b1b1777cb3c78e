// Package engine orchestrates interview turns: it is the single place where
// prompts are built, the AI provider is called, costs are metered and the
// session's memory and difficulty progression advance.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/novahire/novahire/internal/ai"
	"github.com/novahire/novahire/internal/billing"
	"github.com/novahire/novahire/internal/cache"
	"github.com/novahire/novahire/internal/interview"
	"github.com/novahire/novahire/internal/jobs"
	"github.com/novahire/novahire/internal/logger"
	"github.com/novahire/novahire/internal/memory"
	"github.com/novahire/novahire/internal/observability"
	"github.com/novahire/novahire/internal/progression"
	"github.com/novahire/novahire/internal/reliability"
)

// openingUserTurn is the synthetic user message that asks the provider for
// the first question. It is stored in conversation memory so history stays
// pair-wise.
const openingUserTurn = "Please begin the interview with your first question."

// Config tunes one engine instance.
type Config struct {
	MaxTokens     int
	Temperature   float64
	HistoryWindow int
	TruncateKeep  int
	Progression   progression.Config
}

// Engine drives interviews against a Store and an AI provider. It holds no
// mutable interview state of its own: everything durable lives in the
// session row, so any number of engines can serve distinct interviews.
type Engine struct {
	store        interview.Store
	provider     ai.Provider
	jobs         jobs.Lookup
	rates        billing.Rates
	metrics      *observability.Metrics
	log          *zap.Logger
	cfg          Config
	explanations *cache.TTL
}

func New(
	store interview.Store,
	provider ai.Provider,
	jobsLookup jobs.Lookup,
	rates billing.Rates,
	metrics *observability.Metrics,
	log *zap.Logger,
	cfg Config,
	explanations *cache.TTL,
) *Engine {
	return &Engine{
		store:        store,
		provider:     provider,
		jobs:         jobsLookup,
		rates:        rates,
		metrics:      metrics,
		log:          log,
		cfg:          cfg,
		explanations: explanations,
	}
}

// TurnInput is one candidate response. Audio fields are optional; when the
// response arrived as speech they feed the speech billing dimension.
type TurnInput struct {
	Text                 string
	AudioURL             string
	AudioDurationSeconds float64
}

// TurnResult is what a completed turn returns to the caller.
type TurnResult struct {
	Question interview.Message
	Response *interview.Message

	Difficulty     progression.Level
	QuestionsAsked int

	TotalTokensUsed int64
	CostUSD         decimal.Decimal
	SpeechCostUSD   decimal.Decimal
	RealtimeCostUSD decimal.Decimal
}

// StartInterview moves a scheduled interview to in_progress, seeds its
// session and generates the opening question.
func (e *Engine) StartInterview(ctx context.Context, interviewID string) (*TurnResult, error) {
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status.Terminal() {
		return nil, interview.ErrCompleted
	}

	if err := e.store.UpdateStatus(ctx, interviewID,
		[]interview.Status{interview.StatusScheduled}, interview.StatusInProgress); err != nil {
		return nil, err
	}
	e.metrics.ActiveInterviews.Inc()

	posting := e.lookupPosting(ctx, iv)
	system := buildSystemPrompt(iv.RoleType, progression.LevelWarmup, posting)

	conv := memory.New()
	conv.SetSystem(system)
	prog := progression.NewState()
	bounds := progression.NewBoundaries()

	seed, err := buildSessionSnapshot(interviewID, conv, prog, bounds)
	if err != nil {
		return nil, err
	}
	if err := e.store.PutSession(ctx, *seed); err != nil {
		return nil, err
	}

	if err := e.store.BeginTurn(ctx, interviewID); err != nil {
		return nil, err
	}
	defer e.releaseTurn(ctx, interviewID)

	resp, err := e.generate(ctx, conv, system, openingUserTurn)
	if err != nil {
		e.recordTurnFailure(ctx, interviewID, err)
		return nil, err
	}

	chatCost, err := e.chatCost(resp)
	if err != nil {
		return nil, err
	}

	conv.SaveContext(openingUserTurn, resp.Text)
	prog.NoteQuestionAsked()

	snapshot, err := buildSessionSnapshot(interviewID, conv, prog, bounds)
	if err != nil {
		return nil, err
	}

	committed, err := e.store.CommitTurn(ctx, interview.TurnCommit{
		InterviewID: interviewID,
		Messages: []interview.Message{
			{Type: interview.MessageAIQuestion, ContentText: resp.Text},
		},
		Costs:   interview.CostDelta{Tokens: int64(resp.Usage.TotalTokens), Chat: chatCost},
		Session: *snapshot,
	})
	if err != nil {
		return nil, err
	}

	e.noteTurnCommitted(chatCost, decimal.Zero)
	return e.buildResult(ctx, interviewID, committed[0], nil, prog)
}

// RunTurn processes one candidate response and produces the next question.
// The message appends, cost increments and session snapshot commit as one
// unit; a failure anywhere before the commit leaves the interview untouched
// and in_progress.
func (e *Engine) RunTurn(ctx context.Context, interviewID string, input TurnInput) (*TurnResult, error) {
	started := time.Now()

	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.Status.Terminal() {
		return nil, interview.ErrCompleted
	}
	if iv.Status != interview.StatusInProgress {
		return nil, interview.ErrInvalidTransition
	}

	if err := e.store.BeginTurn(ctx, interviewID); err != nil {
		return nil, err
	}
	defer e.releaseTurn(ctx, interviewID)

	e.log.Debug("candidate response received",
		zap.String("interview_id", interviewID),
		zap.String("text", logger.TruncateForLog(input.Text, 120)))

	sess, err := e.store.GetSession(ctx, interviewID)
	if err != nil {
		return nil, err
	}

	conv, err := memory.Deserialize(sess.ConversationMemory)
	if err != nil {
		e.recordTurnFailure(ctx, interviewID, err)
		return nil, err
	}
	prog, err := progression.DeserializeState(sess.ProgressionState)
	if err != nil {
		e.recordTurnFailure(ctx, interviewID, err)
		return nil, err
	}
	bounds, err := progression.DeserializeBoundaries(sess.SkillBoundaries)
	if err != nil {
		e.recordTurnFailure(ctx, interviewID, err)
		return nil, err
	}

	posting := e.lookupPosting(ctx, iv)
	lastQuestion := lastAssistantTurn(conv)
	responseTime := time.Since(sess.LastActivityAt).Seconds()
	if responseTime < 0 {
		responseTime = 0
	}

	topics := topicsInQuestion(lastQuestion, iv.RoleType, posting)
	score := scoreResponse(input.Text, lastQuestion, topics)
	tr := prog.RecordScore(e.cfg.Progression, score, responseTime)
	now := time.Now().UTC()
	for _, topic := range topics {
		bounds.Observe(topic, tr.From, now)
	}

	system := buildSystemPrompt(iv.RoleType, tr.To, posting)
	conv.SetSystem(system)

	resp, err := e.generate(ctx, conv, system, input.Text)
	if err != nil {
		e.recordTurnFailure(ctx, interviewID, err)
		return nil, err
	}

	chatCost, err := e.chatCost(resp)
	if err != nil {
		e.recordTurnFailure(ctx, interviewID, err)
		return nil, err
	}

	costs := interview.CostDelta{Tokens: int64(resp.Usage.TotalTokens), Chat: chatCost}
	if input.AudioDurationSeconds > 0 {
		// Spoken response: the answer was transcribed and the question will
		// be spoken back, so the speech dimension accrues both legs.
		costs.Speech = e.rates.TotalSpeechCost(input.AudioDurationSeconds, resp.Text)
		costs.SpeechTokens = int64(e.provider.CountTokens(input.Text) + e.provider.CountTokens(resp.Text))
	}

	conv.SaveContext(input.Text, resp.Text)
	prog.NoteQuestionAsked()

	snapshot, err := buildSessionSnapshot(interviewID, conv, prog, bounds)
	if err != nil {
		return nil, err
	}

	committed, err := e.store.CommitTurn(ctx, interview.TurnCommit{
		InterviewID: interviewID,
		Messages: []interview.Message{
			{
				Type:                 interview.MessageCandidateResponse,
				ContentText:          input.Text,
				ContentAudioURL:      input.AudioURL,
				AudioDurationSeconds: input.AudioDurationSeconds,
				ResponseTimeSeconds:  responseTime,
			},
			{Type: interview.MessageAIQuestion, ContentText: resp.Text},
		},
		Costs:   costs,
		Session: *snapshot,
	})
	if err != nil {
		return nil, err
	}

	e.noteTurnCommitted(chatCost, costs.Speech)
	e.metrics.ObserveTurnLatency(time.Since(started))

	response := committed[0]
	return e.buildResult(ctx, interviewID, committed[1], &response, prog)
}

// Complete records the external wrap-up signal. The engine refuses turns
// afterwards but never triggers completion itself.
func (e *Engine) Complete(ctx context.Context, interviewID string) error {
	return e.finish(ctx, interviewID, interview.StatusCompleted)
}

// Abandon marks an interview abandoned mid-flight.
func (e *Engine) Abandon(ctx context.Context, interviewID string) error {
	return e.finish(ctx, interviewID, interview.StatusAbandoned)
}

func (e *Engine) finish(ctx context.Context, interviewID string, to interview.Status) error {
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return err
	}
	if iv.Status.Terminal() {
		return interview.ErrCompleted
	}
	if err := e.store.UpdateStatus(ctx, interviewID,
		[]interview.Status{interview.StatusScheduled, interview.StatusInProgress}, to); err != nil {
		return err
	}
	if iv.Status == interview.StatusInProgress {
		e.metrics.ActiveInterviews.Dec()
	}
	return nil
}

// MeterRealtime funnels realtime audio usage into the interview's
// accumulators. All cost mutation goes through the store's add operation, so
// the monotonic invariant holds no matter the entry point.
func (e *Engine) MeterRealtime(ctx context.Context, interviewID string, inputAudioSecs, outputAudioSecs float64, inputTextTokens, outputTextTokens int) (billing.RealtimeBreakdown, error) {
	iv, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return billing.RealtimeBreakdown{}, err
	}
	if iv.Status.Terminal() {
		return billing.RealtimeBreakdown{}, interview.ErrCompleted
	}

	b := e.rates.RealtimeCost(inputAudioSecs, outputAudioSecs, inputTextTokens, outputTextTokens)
	if err := e.store.AddCosts(ctx, interviewID, interview.CostDelta{Realtime: b.Total}); err != nil {
		return billing.RealtimeBreakdown{}, err
	}
	if f, _ := b.Total.Float64(); f > 0 {
		e.metrics.CostAccrued.WithLabelValues("realtime").Add(f)
	}
	return b, nil
}

// generate calls the provider with the bounded history. A context-length
// failure triggers exactly one truncation of the conversation followed by
// one retry; a rate limit becomes ErrRetryLater with a server-chosen backoff.
func (e *Engine) generate(ctx context.Context, conv *memory.Conversation, system, userInput string) (*ai.Response, error) {
	req := ai.Request{
		System:      system,
		Messages:    append(e.boundedHistory(conv), ai.Message{Role: ai.RoleUser, Content: userInput}),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}

	resp, err := e.provider.GenerateCompletion(ctx, req)
	if err != nil {
		var cl *ai.ErrContextLength
		if errors.As(err, &cl) {
			conv.TruncateHistory(e.cfg.TruncateKeep)
			req.Messages = append(e.boundedHistory(conv), ai.Message{Role: ai.RoleUser, Content: userInput})
			resp, err = e.provider.GenerateCompletion(ctx, req)
		}
	}
	if err != nil {
		var rl *ai.ErrRateLimit
		if errors.As(err, &rl) {
			after := rl.RetryAfter
			if after <= 0 {
				after = reliability.ExponentialBackoff(1, 2*time.Second, 30*time.Second)
			}
			return nil, &ErrRetryLater{After: after, Err: err}
		}
		return nil, err
	}
	return resp, nil
}

// boundedHistory converts the most recent HistoryWindow exchanges to
// provider messages, dropping the system turn (it travels separately).
func (e *Engine) boundedHistory(conv *memory.Conversation) []ai.Message {
	turns := conv.Messages()
	if len(turns) > 0 && turns[0].Role == memory.RoleSystem {
		turns = turns[1:]
	}
	if window := e.cfg.HistoryWindow * 2; window > 0 && len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	out := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		role := ai.RoleUser
		if t.Role == memory.RoleAssistant {
			role = ai.RoleAssistant
		}
		out = append(out, ai.Message{Role: role, Content: t.Content})
	}
	return out
}

// chatCost prices a completion, preferring the model the provider actually
// reported and falling back to the configured model ID.
func (e *Engine) chatCost(resp *ai.Response) (decimal.Decimal, error) {
	cost, err := billing.ChatCost(resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if err == nil {
		return cost, nil
	}
	var unknown *billing.ErrUnknownModel
	if errors.As(err, &unknown) && resp.Model != e.provider.ModelID() {
		return billing.ChatCost(e.provider.ModelID(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return decimal.Decimal{}, err
}

func (e *Engine) lookupPosting(ctx context.Context, iv *interview.Interview) *jobs.Posting {
	if iv.JobPostingID == "" || e.jobs == nil {
		return nil
	}
	posting, err := e.jobs.GetPosting(ctx, iv.JobPostingID)
	if err != nil {
		// A missing posting only costs us prompt context; keep interviewing.
		e.log.Warn("job posting lookup failed",
			zap.String("interview_id", iv.ID),
			zap.String("job_posting_id", iv.JobPostingID),
			zap.Error(err))
		return nil
	}
	return posting
}

func (e *Engine) buildResult(ctx context.Context, interviewID string, question interview.Message, response *interview.Message, prog *progression.State) (*TurnResult, error) {
	updated, err := e.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	return &TurnResult{
		Question:        question,
		Response:        response,
		Difficulty:      prog.Level,
		QuestionsAsked:  prog.QuestionsAsked,
		TotalTokensUsed: updated.TotalTokensUsed,
		CostUSD:         updated.CostUSD,
		SpeechCostUSD:   updated.SpeechCostUSD,
		RealtimeCostUSD: updated.RealtimeCostUSD,
	}, nil
}

func (e *Engine) noteTurnCommitted(chat, speech decimal.Decimal) {
	e.metrics.TurnEvents.WithLabelValues("committed").Inc()
	if f, _ := chat.Float64(); f > 0 {
		e.metrics.CostAccrued.WithLabelValues("chat").Add(f)
	}
	if f, _ := speech.Float64(); f > 0 {
		e.metrics.CostAccrued.WithLabelValues("speech").Add(f)
	}
}

// releaseTurn frees the interview's turn slot. It deliberately detaches from
// the request context: a cancelled turn must still release the slot, or the
// interview would reject every subsequent turn.
func (e *Engine) releaseTurn(ctx context.Context, interviewID string) {
	if err := e.store.EndTurn(context.WithoutCancel(ctx), interviewID); err != nil {
		e.log.Warn("turn slot release failed",
			zap.String("interview_id", interviewID),
			zap.Error(err))
	}
}

func (e *Engine) recordTurnFailure(ctx context.Context, interviewID string, err error) {
	e.metrics.TurnEvents.WithLabelValues("failed").Inc()
	e.metrics.ProviderErrors.WithLabelValues(errorCode(err)).Inc()
	e.log.Error("interview turn failed",
		zap.String("interview_id", interviewID),
		zap.Int("turn_sequence", e.nextSequence(ctx, interviewID)),
		zap.Error(err))
}

// nextSequence reports the sequence number the failed turn would have
// committed first. Best effort; 0 means the transcript could not be read.
func (e *Engine) nextSequence(ctx context.Context, interviewID string) int {
	msgs, err := e.store.ListMessages(context.WithoutCancel(ctx), interviewID)
	if err != nil {
		return 0
	}
	if len(msgs) == 0 {
		return 1
	}
	return msgs[len(msgs)-1].SequenceNumber + 1
}

func errorCode(err error) string {
	var (
		rl      *ai.ErrRateLimit
		cl      *ai.ErrContextLength
		un      *ai.ErrProviderUnavailable
		retry   *ErrRetryLater
		unknown *billing.ErrUnknownModel
	)
	switch {
	case errors.As(err, &retry), errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &cl):
		return "context_length"
	case errors.As(err, &un):
		return "unavailable"
	case errors.As(err, &unknown):
		return "unknown_model"
	case errors.Is(err, memory.ErrCorrupt), errors.Is(err, progression.ErrCorrupt):
		return "state_corrupt"
	default:
		return "other"
	}
}

func buildSessionSnapshot(interviewID string, conv *memory.Conversation, prog *progression.State, bounds progression.Boundaries) (*interview.Session, error) {
	memBlob, err := conv.Serialize()
	if err != nil {
		return nil, err
	}
	progBlob, err := prog.Serialize()
	if err != nil {
		return nil, err
	}
	boundsBlob, err := bounds.Serialize()
	if err != nil {
		return nil, err
	}
	return &interview.Session{
		InterviewID:         interviewID,
		DifficultyLevel:     string(prog.Level),
		QuestionsAskedCount: prog.QuestionsAsked,
		ConversationMemory:  memBlob,
		SkillBoundaries:     boundsBlob,
		ProgressionState:    progBlob,
		LastActivityAt:      time.Now().UTC(),
	}, nil
}

func lastAssistantTurn(conv *memory.Conversation) string {
	turns := conv.Messages()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == memory.RoleAssistant {
			return turns[i].Content
		}
	}
	return ""
}
