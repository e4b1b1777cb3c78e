package ai

import (
	"context"
	"strings"
	"sync"
)

// mockBanks holds canned interview questions per role keyword. The mock
// detects the role from the system prompt and cycles through the matching
// bank, so runs are deterministic and repeatable.
var mockBanks = map[string][]string{
	"golang": {
		"Can you walk me through how goroutines differ from OS threads?",
		"How would you detect and fix a data race in a Go service?",
		"Explain how a buffered channel behaves when it is full.",
		"What does the context package give you in a long-running server?",
	},
	"javascript": {
		"Can you explain how the event loop schedules callbacks?",
		"What is a closure and when have you relied on one?",
		"How do promises differ from async/await in error handling?",
		"Describe how prototypal inheritance works.",
	},
	"python": {
		"What is the GIL and how does it affect threading?",
		"Explain the difference between a list comprehension and a generator.",
		"How does Python's garbage collector handle reference cycles?",
		"When would you reach for a dataclass over a plain class?",
	},
}

var mockDefaultBank = []string{
	"Tell me about a technical challenge you solved recently.",
	"How do you approach debugging an unfamiliar codebase?",
	"Describe a time you had to make a tradeoff between speed and quality.",
}

// MockProvider is a deterministic Provider for tests and local development.
// It cycles through canned, role-specific questions and records every call.
type MockProvider struct {
	mu      sync.Mutex
	cursors map[string]int
	errs    []error

	Calls []Request
}

func NewMockProvider() *MockProvider {
	return &MockProvider{cursors: make(map[string]int)}
}

// EnqueueError makes the next GenerateCompletion call fail with err. Queued
// errors are consumed FIFO before any canned response is produced.
func (m *MockProvider) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

func (m *MockProvider) GenerateCompletion(ctx context.Context, req Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}

	key, bank := bankFor(req.System)
	text := bank[m.cursors[key]%len(bank)]
	m.cursors[key]++

	inTokens := estimateTokens(req.System)
	for _, msg := range req.Messages {
		inTokens += estimateTokens(msg.Content)
	}

	return &Response{
		Text: text,
		Usage: Usage{
			InputTokens:  inTokens,
			OutputTokens: estimateTokens(text),
			TotalTokens:  inTokens + estimateTokens(text),
		},
		Model: "mock",
	}, nil
}

func (m *MockProvider) CountTokens(text string) int {
	return estimateTokens(text)
}

func (m *MockProvider) ModelID() string { return "mock" }

// CallCount returns the number of GenerateCompletion calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func bankFor(system string) (string, []string) {
	lowered := strings.ToLower(system)
	for _, key := range []string{"golang", "javascript", "python"} {
		if strings.Contains(lowered, key) {
			return key, mockBanks[key]
		}
	}
	return "default", mockDefaultBank
}
