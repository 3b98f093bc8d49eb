// Package ledger records per-completion token usage. Counts only; pricing and
// cost accounting live elsewhere.
package ledger

import (
	"context"
	"time"
)

// Entry is one completion's usage record.
type Entry struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"request_id"`
	CompletionID     string    `json:"completion_id"`
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	Streamed         bool      `json:"streamed"`
	CreatedAt        time.Time `json:"created_at"`
}

// Summary aggregates usage across recorded completions.
type Summary struct {
	Requests         int64 `json:"requests"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Store defines persistence behaviour for usage records.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Summary(ctx context.Context) (Summary, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}
