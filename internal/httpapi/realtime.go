package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/novahire/novahire/internal/engine"
	"github.com/novahire/novahire/internal/interview"
	"github.com/novahire/novahire/internal/memory"
	"github.com/novahire/novahire/internal/progression"
)

// Realtime relay protocol. The client drives the session over one socket:
// "turn" carries a candidate answer and yields a "question" frame, and
// "audio_usage" reports realtime audio consumption for metering, yielding
// "usage_recorded". Failures come back as "error" frames and keep the
// socket open except for unknown-interview and terminal-state failures.
type realtimeInbound struct {
	Type                 string  `json:"type"`
	Text                 string  `json:"text,omitempty"`
	AudioURL             string  `json:"audio_url,omitempty"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds,omitempty"`
	InputAudioSeconds    float64 `json:"input_audio_seconds,omitempty"`
	OutputAudioSeconds   float64 `json:"output_audio_seconds,omitempty"`
	InputTextTokens      int     `json:"input_text_tokens,omitempty"`
	OutputTextTokens     int     `json:"output_text_tokens,omitempty"`
}

type realtimeOutbound struct {
	Type            string `json:"type"`
	Question        string `json:"question,omitempty"`
	Difficulty      string `json:"difficulty_level,omitempty"`
	QuestionsAsked  int    `json:"questions_asked,omitempty"`
	CostUSD         string `json:"cost_usd,omitempty"`
	RealtimeCostUSD string `json:"realtime_cost_usd,omitempty"`
	Code            string `json:"code,omitempty"`
	Error           string `json:"error,omitempty"`
	RetryAfterMS    int64  `json:"retry_after_ms,omitempty"`
}

const (
	realtimeWriteWait = 10 * time.Second
	realtimeReadLimit = 1 << 20
)

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	interviewID := chi.URLParam(r, "id")

	if _, err := s.store.GetInterview(r.Context(), interviewID); err != nil {
		s.respondMapped(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("realtime upgrade failed", zap.String("interview_id", interviewID), zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(realtimeReadLimit)

	log := s.log.With(zap.String("interview_id", interviewID))
	log.Info("realtime session opened")
	defer log.Info("realtime session closed")

	for {
		var in realtimeInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("realtime read failed", zap.Error(err))
			}
			return
		}

		switch in.Type {
		case "turn":
			result, err := s.engine.RunTurn(r.Context(), interviewID, engine.TurnInput{
				Text:                 in.Text,
				AudioURL:             in.AudioURL,
				AudioDurationSeconds: in.AudioDurationSeconds,
			})
			if err != nil {
				if !s.writeRealtimeError(conn, err) {
					return
				}
				continue
			}
			if err := s.writeRealtime(conn, realtimeOutbound{
				Type:           "question",
				Question:       result.Question.ContentText,
				Difficulty:     string(result.Difficulty),
				QuestionsAsked: result.QuestionsAsked,
				CostUSD:        result.CostUSD.StringFixed(4),
			}); err != nil {
				return
			}

		case "audio_usage":
			breakdown, err := s.engine.MeterRealtime(r.Context(), interviewID,
				in.InputAudioSeconds, in.OutputAudioSeconds,
				in.InputTextTokens, in.OutputTextTokens)
			if err != nil {
				if !s.writeRealtimeError(conn, err) {
					return
				}
				continue
			}
			if err := s.writeRealtime(conn, realtimeOutbound{
				Type:            "usage_recorded",
				RealtimeCostUSD: breakdown.Total.StringFixed(4),
			}); err != nil {
				return
			}

		default:
			if err := s.writeRealtime(conn, realtimeOutbound{
				Type:  "error",
				Code:  "invalid_request",
				Error: "unknown message type",
			}); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeRealtime(conn *websocket.Conn, out realtimeOutbound) error {
	_ = conn.SetWriteDeadline(time.Now().Add(realtimeWriteWait))
	return conn.WriteJSON(out)
}

// writeRealtimeError reports a failed operation on the socket. It returns
// false when the session should end: either the write failed or the error
// means no further frames can succeed.
func (s *Server) writeRealtimeError(conn *websocket.Conn, err error) bool {
	out := realtimeOutbound{Type: "error", Code: realtimeErrorCode(err), Error: err.Error()}
	var retry *engine.ErrRetryLater
	if errors.As(err, &retry) {
		out.RetryAfterMS = retry.After.Milliseconds()
	}
	if werr := s.writeRealtime(conn, out); werr != nil {
		return false
	}
	return out.Code != "not_found" && out.Code != "terminal_state"
}

func realtimeErrorCode(err error) string {
	var retry *engine.ErrRetryLater
	switch {
	case errors.Is(err, interview.ErrNotFound), errors.Is(err, interview.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, interview.ErrCompleted):
		return "terminal_state"
	case errors.Is(err, interview.ErrTurnInProgress):
		return "turn_in_progress"
	case errors.As(err, &retry):
		return "rate_limited"
	case errors.Is(err, memory.ErrCorrupt), errors.Is(err, progression.ErrCorrupt):
		return "state_corrupt"
	default:
		return "provider_error"
	}
}
