package openai

// ChatCompletionChunk represents one unit of an SSE streaming response.
type ChatCompletionChunk struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
}

// ChatCompletionChunkChoice represents a choice in a streaming chunk.
type ChatCompletionChunkChoice struct {
	Index        int              `json:"index"`
	Delta        ChatMessageDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason"`
}

// ChatMessageDelta carries the incremental content of a stream chunk. The
// role is only set on the first chunk of a stream.
type ChatMessageDelta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// NewChunk builds a chunk correlated with the stream's completion id.
func NewChunk(id, model string, created int64, delta ChatMessageDelta, finishReason *string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChatCompletionChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
		}},
	}
}

// StreamError is the inline error payload emitted when generation fails after
// the stream already started.
type StreamError struct {
	Error StreamErrorDetail `json:"error"`
}

// StreamErrorDetail mirrors the OpenAI error object shape.
type StreamErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewStreamError wraps a backend failure as an internal_error chunk payload.
func NewStreamError(message string) StreamError {
	return StreamError{Error: StreamErrorDetail{Message: message, Type: "internal_error"}}
}
