// Package ai abstracts the completion provider that drives interview
// questions. The engine is provider-agnostic: a real LLM-backed client and a
// deterministic mock both satisfy Provider.
package ai

import "context"

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in the conversation history.
type Message struct {
	Role    Role
	Content string
}

// Request describes what to send to the provider.
type Request struct {
	// System is the system prompt: interviewer instructions, role template
	// and optional job context.
	System string

	// Messages is the bounded conversation history, oldest first.
	Messages []Message

	MaxTokens   int
	Temperature float64
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response holds the provider's output.
type Response struct {
	Text  string
	Usage Usage

	// Model is the actual model that served the request.
	Model string
}

// Provider is the completion abstraction consumed by the engine.
type Provider interface {
	GenerateCompletion(ctx context.Context, req Request) (*Response, error)

	// CountTokens estimates the token count of a text. Estimates are fine;
	// exact counts come back in Usage.
	CountTokens(text string) int

	ModelID() string
}

// estimateTokens is the shared fallback token estimate: roughly one token
// per four characters of English text.
func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
