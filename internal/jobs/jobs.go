// Package jobs exposes read-only job posting lookups. The engine only needs
// enough of a posting to build prompt context.
package jobs

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("job posting not found")

// Posting is the slice of a job posting the interviewer cares about.
type Posting struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Company        string   `json:"company"`
	RequiredSkills []string `json:"required_skills"`
}

// Lookup fetches postings by id.
type Lookup interface {
	GetPosting(ctx context.Context, id string) (*Posting, error)
}

// MemoryLookup is an in-process posting catalog for tests and local
// development.
type MemoryLookup struct {
	mu       sync.RWMutex
	postings map[string]Posting
}

func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{postings: make(map[string]Posting)}
}

func (l *MemoryLookup) Put(p Posting) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.postings[p.ID] = p
}

func (l *MemoryLookup) GetPosting(_ context.Context, id string) (*Posting, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.postings[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := p
	out.RequiredSkills = append([]string(nil), p.RequiredSkills...)
	return &out, nil
}
