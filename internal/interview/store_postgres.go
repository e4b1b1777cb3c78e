package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists the interview domain in PostgreSQL. The session row
// doubles as the same-interview turn lock: BeginTurn flips turn_active under
// a conditional update, and CommitTurn takes the row lock for the duration of
// its transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the underlying connection pool so sibling repositories can
// share it.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS interviews (
			id TEXT PRIMARY KEY,
			candidate_id TEXT NOT NULL,
			job_posting_id TEXT NOT NULL DEFAULT '',
			role_type TEXT NOT NULL,
			status TEXT NOT NULL,
			total_tokens_used BIGINT NOT NULL DEFAULT 0,
			cost_usd NUMERIC(12,4) NOT NULL DEFAULT 0,
			speech_tokens_used BIGINT NOT NULL DEFAULT 0,
			speech_cost_usd NUMERIC(12,4) NOT NULL DEFAULT 0,
			realtime_cost_usd NUMERIC(12,4) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS interview_sessions (
			interview_id TEXT PRIMARY KEY REFERENCES interviews(id) ON DELETE CASCADE,
			difficulty_level TEXT NOT NULL,
			questions_asked_count INTEGER NOT NULL DEFAULT 0,
			conversation_memory JSONB NOT NULL,
			skill_boundaries JSONB NOT NULL,
			progression_state JSONB NOT NULL,
			turn_active BOOLEAN NOT NULL DEFAULT FALSE,
			last_activity_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS interview_messages (
			id TEXT PRIMARY KEY,
			interview_id TEXT NOT NULL REFERENCES interviews(id) ON DELETE CASCADE,
			sequence_number INTEGER NOT NULL,
			message_type TEXT NOT NULL,
			content_text TEXT NOT NULL,
			content_audio_url TEXT NOT NULL DEFAULT '',
			audio_duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			response_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (interview_id, sequence_number)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interview_messages_seq ON interview_messages (interview_id, sequence_number);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init interview schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateInterview(ctx context.Context, iv Interview) error {
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = now
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO interviews (
			id, candidate_id, job_posting_id, role_type, status,
			total_tokens_used, cost_usd, speech_tokens_used, speech_cost_usd, realtime_cost_usd,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		iv.ID,
		iv.CandidateID,
		iv.JobPostingID,
		string(iv.RoleType),
		string(iv.Status),
		iv.TotalTokensUsed,
		iv.CostUSD.StringFixed(4),
		iv.SpeechTokensUsed,
		iv.SpeechCostUSD.StringFixed(4),
		iv.RealtimeCostUSD.StringFixed(4),
		iv.CreatedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}
	return nil
}

const interviewColumns = `id, candidate_id, job_posting_id, role_type, status,
	total_tokens_used, cost_usd::text, speech_tokens_used, speech_cost_usd::text, realtime_cost_usd::text,
	created_at, updated_at`

func (s *PostgresStore) GetInterview(ctx context.Context, id string) (*Interview, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE id=$1`, id)
	return scanInterview(row)
}

func scanInterview(row pgx.Row) (*Interview, error) {
	var (
		iv                        Interview
		roleType, status          string
		costStr, speech, realtime string
	)
	err := row.Scan(
		&iv.ID, &iv.CandidateID, &iv.JobPostingID, &roleType, &status,
		&iv.TotalTokensUsed, &costStr, &iv.SpeechTokensUsed, &speech, &realtime,
		&iv.CreatedAt, &iv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan interview: %w", err)
	}

	iv.RoleType = RoleType(roleType)
	iv.Status = Status(status)
	if iv.CostUSD, err = decimal.NewFromString(costStr); err != nil {
		return nil, fmt.Errorf("parse cost_usd: %w", err)
	}
	if iv.SpeechCostUSD, err = decimal.NewFromString(speech); err != nil {
		return nil, fmt.Errorf("parse speech_cost_usd: %w", err)
	}
	if iv.RealtimeCostUSD, err = decimal.NewFromString(realtime); err != nil {
		return nil, fmt.Errorf("parse realtime_cost_usd: %w", err)
	}
	return &iv, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from []Status, to Status) error {
	fromStrs := make([]string, len(from))
	for i, f := range from {
		fromStrs[i] = string(f)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE interviews SET status=$2, updated_at=now() WHERE id=$1 AND status = ANY($3)`,
		id, string(to), fromStrs)
	if err != nil {
		return fmt.Errorf("update interview status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetInterview(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, interviewID string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT interview_id, difficulty_level, questions_asked_count,
			conversation_memory, skill_boundaries, progression_state, last_activity_at
		 FROM interview_sessions WHERE interview_id=$1`,
		interviewID,
	).Scan(
		&sess.InterviewID, &sess.DifficultyLevel, &sess.QuestionsAskedCount,
		&sess.ConversationMemory, &sess.SkillBoundaries, &sess.ProgressionState, &sess.LastActivityAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) PutSession(ctx context.Context, sess Session) error {
	if sess.LastActivityAt.IsZero() {
		sess.LastActivityAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, upsertSessionSQL,
		sess.InterviewID,
		sess.DifficultyLevel,
		sess.QuestionsAskedCount,
		sess.ConversationMemory,
		sess.SkillBoundaries,
		sess.ProgressionState,
		sess.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

const upsertSessionSQL = `INSERT INTO interview_sessions (
		interview_id, difficulty_level, questions_asked_count,
		conversation_memory, skill_boundaries, progression_state, last_activity_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (interview_id) DO UPDATE SET
		difficulty_level=EXCLUDED.difficulty_level,
		questions_asked_count=EXCLUDED.questions_asked_count,
		conversation_memory=EXCLUDED.conversation_memory,
		skill_boundaries=EXCLUDED.skill_boundaries,
		progression_state=EXCLUDED.progression_state,
		last_activity_at=EXCLUDED.last_activity_at`

func (s *PostgresStore) ListMessages(ctx context.Context, interviewID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, interview_id, sequence_number, message_type, content_text,
			content_audio_url, audio_duration_seconds, response_time_seconds, created_at
		 FROM interview_messages WHERE interview_id=$1 ORDER BY sequence_number`,
		interviewID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var msgType string
		if err := rows.Scan(&m.ID, &m.InterviewID, &m.SequenceNumber, &msgType, &m.ContentText,
			&m.ContentAudioURL, &m.AudioDurationSeconds, &m.ResponseTimeSeconds, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = MessageType(msgType)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) BeginTurn(ctx context.Context, interviewID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE interview_sessions SET turn_active=TRUE WHERE interview_id=$1 AND turn_active=FALSE`,
		interviewID)
	if err != nil {
		return fmt.Errorf("begin turn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetSession(ctx, interviewID); err != nil {
			return err
		}
		return ErrTurnInProgress
	}
	return nil
}

func (s *PostgresStore) EndTurn(ctx context.Context, interviewID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE interview_sessions SET turn_active=FALSE WHERE interview_id=$1`,
		interviewID)
	if err != nil {
		return fmt.Errorf("end turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) CommitTurn(ctx context.Context, tc TurnCommit) ([]Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The session row lock serializes commits and protects the MAX(seq) read.
	var locked string
	err = tx.QueryRow(ctx,
		`SELECT interview_id FROM interview_sessions WHERE interview_id=$1 FOR UPDATE`,
		tc.InterviewID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock session row: %w", err)
	}

	var nextSeq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM interview_messages WHERE interview_id=$1`,
		tc.InterviewID).Scan(&nextSeq); err != nil {
		return nil, fmt.Errorf("next sequence number: %w", err)
	}

	now := time.Now().UTC()
	committed := make([]Message, 0, len(tc.Messages))
	for _, msg := range tc.Messages {
		msg.ID = uuid.NewString()
		msg.InterviewID = tc.InterviewID
		msg.SequenceNumber = nextSeq
		nextSeq++
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO interview_messages (
				id, interview_id, sequence_number, message_type, content_text,
				content_audio_url, audio_duration_seconds, response_time_seconds, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			msg.ID, msg.InterviewID, msg.SequenceNumber, string(msg.Type), msg.ContentText,
			msg.ContentAudioURL, msg.AudioDurationSeconds, msg.ResponseTimeSeconds, msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("insert message: %w", err)
		}
		committed = append(committed, msg)
	}

	if err := addCostsTx(ctx, tx, tc.InterviewID, tc.Costs); err != nil {
		return nil, err
	}

	sess := tc.Session
	sess.InterviewID = tc.InterviewID
	if sess.LastActivityAt.IsZero() {
		sess.LastActivityAt = now
	}
	if _, err := tx.Exec(ctx, upsertSessionSQL,
		sess.InterviewID,
		sess.DifficultyLevel,
		sess.QuestionsAskedCount,
		sess.ConversationMemory,
		sess.SkillBoundaries,
		sess.ProgressionState,
		sess.LastActivityAt,
	); err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit turn: %w", err)
	}
	return committed, nil
}

func (s *PostgresStore) AddCosts(ctx context.Context, interviewID string, d CostDelta) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := addCostsTx(ctx, tx, interviewID, d); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit costs: %w", err)
	}
	return nil
}

// addCostsTx increments the interview's accumulators. Always +=, never an
// overwrite, so the monotonic invariant holds no matter who calls.
func addCostsTx(ctx context.Context, tx pgx.Tx, interviewID string, d CostDelta) error {
	tag, err := tx.Exec(ctx,
		`UPDATE interviews SET
			total_tokens_used = total_tokens_used + $2,
			cost_usd = cost_usd + $3::numeric,
			speech_tokens_used = speech_tokens_used + $4,
			speech_cost_usd = speech_cost_usd + $5::numeric,
			realtime_cost_usd = realtime_cost_usd + $6::numeric,
			updated_at = now()
		 WHERE id=$1`,
		interviewID,
		d.Tokens,
		d.Chat.StringFixed(4),
		d.SpeechTokens,
		d.Speech.StringFixed(4),
		d.Realtime.StringFixed(4),
	)
	if err != nil {
		return fmt.Errorf("add costs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
