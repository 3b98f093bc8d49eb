// Package backend defines the narrow generation interface between the HTTP
// façade and the inference runtime.
package backend

import "context"

// Params carries one generation call's prompt and sampling configuration.
type Params struct {
	Prompt      string
	Temperature float64
	TopP        float64
	MaxTokens   int
	// Stop lists literal substrings at which generation halts.
	Stop []string
}

// Result is the outcome of a non-streaming generation call.
type Result struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// Usage reports token counts for one generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamEvent is one unit of a streaming generation. Text may be empty. A
// non-empty FinishReason or a non-nil Err marks the terminal event; the
// producer closes the channel afterwards.
type StreamEvent struct {
	Text         string
	FinishReason string
	Err          error
}

// Terminal reports whether no further events follow this one.
func (e StreamEvent) Terminal() bool {
	return e.FinishReason != "" || e.Err != nil
}

// Engine is the boundary to the inference runtime. Implementations perform no
// retries; failures surface with their original message. The channel returned
// by CompleteStream is single-consumer and non-restartable: reading it may
// block while the runtime computes the next token batch, and it is closed by
// the producer once a terminal event was delivered or ctx is cancelled.
type Engine interface {
	Complete(ctx context.Context, params Params) (Result, error)
	CompleteStream(ctx context.Context, params Params) (<-chan StreamEvent, error)
}

// Recognised finish reasons.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)
