package interview

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process store for tests and local development.
type MemoryStore struct {
	mu         sync.RWMutex
	interviews map[string]*Interview
	sessions   map[string]*Session
	messages   map[string][]Message
	nextSeq    map[string]int
	activeTurn map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interviews: make(map[string]*Interview),
		sessions:   make(map[string]*Session),
		messages:   make(map[string][]Message),
		nextSeq:    make(map[string]int),
		activeTurn: make(map[string]bool),
	}
}

func (s *MemoryStore) CreateInterview(_ context.Context, iv Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = now
	}
	iv.UpdatedAt = now
	s.interviews[iv.ID] = cloneInterview(&iv)
	s.nextSeq[iv.ID] = 1
	return nil
}

func (s *MemoryStore) GetInterview(_ context.Context, id string) (*Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interviews[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInterview(iv), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, from []Status, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, ok := s.interviews[id]
	if !ok {
		return ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if iv.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidTransition
	}
	iv.Status = to
	iv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, interviewID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[interviewID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) PutSession(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interviews[sess.InterviewID]; !ok {
		return ErrNotFound
	}
	if sess.LastActivityAt.IsZero() {
		sess.LastActivityAt = time.Now().UTC()
	}
	s.sessions[sess.InterviewID] = cloneSession(&sess)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, interviewID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.interviews[interviewID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Message, len(s.messages[interviewID]))
	copy(out, s.messages[interviewID])
	return out, nil
}

func (s *MemoryStore) BeginTurn(_ context.Context, interviewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interviews[interviewID]; !ok {
		return ErrNotFound
	}
	if s.activeTurn[interviewID] {
		return ErrTurnInProgress
	}
	s.activeTurn[interviewID] = true
	return nil
}

func (s *MemoryStore) EndTurn(_ context.Context, interviewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeTurn, interviewID)
	return nil
}

func (s *MemoryStore) CommitTurn(_ context.Context, tc TurnCommit) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, ok := s.interviews[tc.InterviewID]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	committed := make([]Message, 0, len(tc.Messages))
	for _, msg := range tc.Messages {
		msg.ID = uuid.NewString()
		msg.InterviewID = tc.InterviewID
		msg.SequenceNumber = s.nextSeq[tc.InterviewID]
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		s.nextSeq[tc.InterviewID]++
		committed = append(committed, msg)
	}
	s.messages[tc.InterviewID] = append(s.messages[tc.InterviewID], committed...)

	applyCosts(iv, tc.Costs)
	iv.UpdatedAt = now

	sess := tc.Session
	sess.InterviewID = tc.InterviewID
	if sess.LastActivityAt.IsZero() {
		sess.LastActivityAt = now
	}
	s.sessions[tc.InterviewID] = cloneSession(&sess)

	return committed, nil
}

func (s *MemoryStore) AddCosts(_ context.Context, interviewID string, d CostDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.interviews[interviewID]
	if !ok {
		return ErrNotFound
	}
	applyCosts(iv, d)
	iv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func applyCosts(iv *Interview, d CostDelta) {
	iv.TotalTokensUsed += d.Tokens
	iv.CostUSD = iv.CostUSD.Add(d.Chat)
	iv.SpeechTokensUsed += d.SpeechTokens
	iv.SpeechCostUSD = iv.SpeechCostUSD.Add(d.Speech)
	iv.RealtimeCostUSD = iv.RealtimeCostUSD.Add(d.Realtime)
}

func cloneInterview(iv *Interview) *Interview {
	c := *iv
	return &c
}

func cloneSession(sess *Session) *Session {
	c := *sess
	c.ConversationMemory = append([]byte(nil), sess.ConversationMemory...)
	c.SkillBoundaries = append([]byte(nil), sess.SkillBoundaries...)
	c.ProgressionState = append([]byte(nil), sess.ProgressionState...)
	return &c
}
