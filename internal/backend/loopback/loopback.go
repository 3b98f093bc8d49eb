// Package loopback provides a model-free engine that fabricates deterministic
// completions. It keeps the full request path exercisable without model
// weights, both in tests and when graceaid runs with backend=loopback.
package loopback

import (
	"context"
	"strings"

	"github.com/max-7189/GraceAi/internal/backend"
)

// Ensure Engine implements the generation interface.
var _ backend.Engine = (*Engine)(nil)

// Engine echoes the last user turn of the prompt back to the caller.
type Engine struct{}

// New creates a loopback Engine.
func New() *Engine {
	return &Engine{}
}

func reply(prompt string) string {
	// The prompt arrives fully rendered; recover the last user turn by its
	// opening tag and end-of-turn marker.
	text := prompt
	if idx := strings.LastIndex(text, "<|user|>"); idx >= 0 {
		text = text[idx+len("<|user|>"):]
	}
	if idx := strings.Index(text, "</s>"); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "[loopback]"
	}
	return "[loopback] " + text
}

func usageFor(prompt, completion string) backend.Usage {
	u := backend.Usage{
		PromptTokens:     len(prompt) / 4,
		CompletionTokens: len(completion) / 4,
	}
	if u.PromptTokens == 0 {
		u.PromptTokens = 1
	}
	if u.CompletionTokens == 0 {
		u.CompletionTokens = 1
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}

// Complete fabricates a deterministic completion.
func (e *Engine) Complete(ctx context.Context, params backend.Params) (backend.Result, error) {
	text := reply(params.Prompt)
	return backend.Result{
		Text:         text,
		FinishReason: backend.FinishStop,
		Usage:        usageFor(params.Prompt, text),
	}, nil
}

// CompleteStream fabricates a stream that yields the reply word by word.
func (e *Engine) CompleteStream(ctx context.Context, params backend.Params) (<-chan backend.StreamEvent, error) {
	text := reply(params.Prompt)
	words := strings.SplitAfter(text, " ")

	ch := make(chan backend.StreamEvent)
	go func() {
		defer close(ch)
		for _, word := range words {
			select {
			case ch <- backend.StreamEvent{Text: word}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- backend.StreamEvent{FinishReason: backend.FinishStop}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
