package openai

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Default sampling parameters applied when a request leaves them unset.
const (
	DefaultTemperature = 0.7
	DefaultTopP        = 0.95
	DefaultMaxTokens   = 2048
)

// ChatCompletionRequest captures the subset of OpenAI's request the façade supports.
type ChatCompletionRequest struct {
	Messages             []ChatMessage `json:"messages"`
	Temperature          *float64      `json:"temperature,omitempty"`
	TopP                 *float64      `json:"top_p,omitempty"`
	MaxTokens            *int          `json:"max_tokens,omitempty"`
	Stream               bool          `json:"stream,omitempty"`
	EnableChainOfThought bool          `json:"enable_chain_of_thought,omitempty"`
}

// ApplyDefaults fills unset optional sampling fields with the documented defaults.
func (r *ChatCompletionRequest) ApplyDefaults() {
	if r.Temperature == nil {
		v := DefaultTemperature
		r.Temperature = &v
	}
	if r.TopP == nil {
		v := DefaultTopP
		r.TopP = &v
	}
	if r.MaxTokens == nil {
		v := DefaultMaxTokens
		r.MaxTokens = &v
	}
}

// ChatMessage follows OpenAI's role/content schema (plain text only).
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse mirrors the OpenAI schema with a single choice.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   UsageBreakdown         `json:"usage"`
}

// ChatCompletionChoice contains the generated message.
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// UsageBreakdown provides token accounting for one completion.
type UsageBreakdown struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewCompletionResponse builds a non-streaming response around the assistant message.
func NewCompletionResponse(id, model, content, finishReason string, usage UsageBreakdown) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatCompletionChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: content},
			FinishReason: finishReason,
		}},
		Usage: usage,
	}
}

// CompletionID derives a stable id from the prompt text. Identical prompts map
// to identical ids, which keeps every chunk of one stream correlated without
// any shared counter.
func CompletionID(prompt string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	return fmt.Sprintf("chatcmpl-%08x", h.Sum32())
}
