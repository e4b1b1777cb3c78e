package engine

import (
	"context"
	"fmt"

	"github.com/novahire/novahire/internal/ai"
	"github.com/novahire/novahire/internal/interview"
)

// ExplainLastQuestion returns a short explanation of what the interview's
// most recent question assesses. Explanations are cached per interview with
// a TTL; the cache is best-effort and rebuildable, so a miss just costs one
// provider call.
func (e *Engine) ExplainLastQuestion(ctx context.Context, interviewID string) (string, error) {
	if e.explanations != nil {
		if cached, ok := e.explanations.Get(interviewID); ok {
			return cached, nil
		}
	}

	msgs, err := e.store.ListMessages(ctx, interviewID)
	if err != nil {
		return "", err
	}

	var question string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == interview.MessageAIQuestion {
			question = msgs[i].ContentText
			break
		}
	}
	if question == "" {
		return "", fmt.Errorf("interview %s has no questions yet", interviewID)
	}

	resp, err := e.provider.GenerateCompletion(ctx, ai.Request{
		System:      "You explain interview questions. In two sentences, say what the question assesses and what a strong answer covers.",
		Messages:    []ai.Message{{Role: ai.RoleUser, Content: question}},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}

	if e.explanations != nil {
		e.explanations.Set(interviewID, resp.Text)
	}
	return resp.Text, nil
}
