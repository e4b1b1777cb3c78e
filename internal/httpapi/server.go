package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/novahire/novahire/internal/config"
	"github.com/novahire/novahire/internal/engine"
	"github.com/novahire/novahire/internal/interview"
	"github.com/novahire/novahire/internal/jobs"
	"github.com/novahire/novahire/internal/memory"
	"github.com/novahire/novahire/internal/observability"
	"github.com/novahire/novahire/internal/progression"
)

type Server struct {
	cfg      config.Config
	store    interview.Store
	engine   *engine.Engine
	metrics  *observability.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, store interview.Store, eng *engine.Engine, metrics *observability.Metrics, log *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		engine:  eng,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections unless explicitly
				// opened up; other sites must not drive a candidate's
				// interview session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/interviews", s.handleCreateInterview)
	r.Get("/v1/interviews/{id}", s.handleGetInterview)
	r.Post("/v1/interviews/{id}/start", s.handleStartInterview)
	r.Post("/v1/interviews/{id}/turns", s.handleRunTurn)
	r.Post("/v1/interviews/{id}/complete", s.handleCompleteInterview)
	r.Post("/v1/interviews/{id}/abandon", s.handleAbandonInterview)
	r.Get("/v1/interviews/{id}/messages", s.handleListMessages)
	r.Get("/v1/interviews/{id}/explanation", s.handleExplanation)
	r.Get("/v1/interviews/{id}/realtime", s.handleRealtime)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type createInterviewRequest struct {
	CandidateID  string `json:"candidate_id"`
	RoleType     string `json:"role_type"`
	JobPostingID string `json:"job_posting_id,omitempty"`
}

func (s *Server) handleCreateInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.CandidateID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "candidate_id is required")
		return
	}
	role := interview.RoleType(strings.ToLower(strings.TrimSpace(req.RoleType)))
	switch role {
	case interview.RoleGolang, interview.RoleJavaScript, interview.RolePython, interview.RoleFullstack:
	case "":
		role = interview.RoleFullstack
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown role_type %q", req.RoleType))
		return
	}

	iv := interview.Interview{
		ID:           uuid.NewString(),
		CandidateID:  req.CandidateID,
		JobPostingID: strings.TrimSpace(req.JobPostingID),
		RoleType:     role,
		Status:       interview.StatusScheduled,
	}
	if err := s.store.CreateInterview(r.Context(), iv); err != nil {
		s.respondMapped(w, err)
		return
	}

	created, err := s.store.GetInterview(r.Context(), iv.ID)
	if err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, interviewJSON(created))
}

func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	iv, err := s.store.GetInterview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, interviewJSON(iv))
}

func (s *Server) handleStartInterview(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.StartInterview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, turnResultJSON(result))
}

type runTurnRequest struct {
	Text                 string  `json:"text"`
	AudioURL             string  `json:"audio_url,omitempty"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds,omitempty"`
}

func (s *Server) handleRunTurn(w http.ResponseWriter, r *http.Request) {
	var req runTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	result, err := s.engine.RunTurn(r.Context(), chi.URLParam(r, "id"), engine.TurnInput{
		Text:                 req.Text,
		AudioURL:             req.AudioURL,
		AudioDurationSeconds: req.AudioDurationSeconds,
	})
	if err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, turnResultJSON(result))
}

func (s *Server) handleCompleteInterview(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Complete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": string(interview.StatusCompleted)})
}

func (s *Server) handleAbandonInterview(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Abandon(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": string(interview.StatusAbandoned)})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleExplanation(w http.ResponseWriter, r *http.Request) {
	text, err := s.engine.ExplainLastQuestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"explanation": text})
}

// respondMapped translates domain errors to the HTTP taxonomy: 404 for
// missing records, 400 for terminal-state and lifecycle violations, 409 for
// a concurrent turn, 429 with Retry-After for provider rate limiting, 500
// for corrupt session state and 502 for other provider failures.
func (s *Server) respondMapped(w http.ResponseWriter, err error) {
	var retry *engine.ErrRetryLater
	switch {
	case errors.Is(err, interview.ErrNotFound),
		errors.Is(err, interview.ErrSessionNotFound),
		errors.Is(err, jobs.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, interview.ErrCompleted):
		respondError(w, http.StatusBadRequest, "terminal_state", err.Error())
	case errors.Is(err, interview.ErrInvalidTransition):
		respondError(w, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, interview.ErrTurnInProgress):
		respondError(w, http.StatusConflict, "turn_in_progress", err.Error())
	case errors.As(err, &retry):
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retry.After/time.Second)+1))
		respondError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, memory.ErrCorrupt), errors.Is(err, progression.ErrCorrupt):
		respondError(w, http.StatusInternalServerError, "state_corrupt", err.Error())
	default:
		respondError(w, http.StatusBadGateway, "provider_error", err.Error())
	}
}

func interviewJSON(iv *interview.Interview) map[string]any {
	return map[string]any{
		"id":                 iv.ID,
		"candidate_id":       iv.CandidateID,
		"job_posting_id":     iv.JobPostingID,
		"role_type":          string(iv.RoleType),
		"status":             string(iv.Status),
		"total_tokens_used":  iv.TotalTokensUsed,
		"cost_usd":           iv.CostUSD.StringFixed(4),
		"speech_tokens_used": iv.SpeechTokensUsed,
		"speech_cost_usd":    iv.SpeechCostUSD.StringFixed(4),
		"realtime_cost_usd":  iv.RealtimeCostUSD.StringFixed(4),
		"created_at":         iv.CreatedAt,
		"updated_at":         iv.UpdatedAt,
	}
}

func turnResultJSON(result *engine.TurnResult) map[string]any {
	out := map[string]any{
		"question":          result.Question,
		"difficulty_level":  string(result.Difficulty),
		"questions_asked":   result.QuestionsAsked,
		"total_tokens_used": result.TotalTokensUsed,
		"cost_usd":          result.CostUSD.StringFixed(4),
		"speech_cost_usd":   result.SpeechCostUSD.StringFixed(4),
		"realtime_cost_usd": result.RealtimeCostUSD.StringFixed(4),
	}
	if result.Response != nil {
		out["response"] = *result.Response
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
