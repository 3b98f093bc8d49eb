package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/max-7189/GraceAi/internal/ledger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndSummary(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []ledger.Entry{
		{RequestID: "req-1", CompletionID: "chatcmpl-00000001", Model: "test.gguf", PromptTokens: 10, CompletionTokens: 5},
		{RequestID: "req-2", CompletionID: "chatcmpl-00000002", Model: "test.gguf", PromptTokens: 7, CompletionTokens: 3, Streamed: true},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.Requests != 2 {
		t.Errorf("Requests = %d, want 2", summary.Requests)
	}
	if summary.PromptTokens != 17 || summary.CompletionTokens != 8 {
		t.Errorf("token sums = %d/%d, want 17/8", summary.PromptTokens, summary.CompletionTokens)
	}
	if summary.TotalTokens != 25 {
		t.Errorf("TotalTokens = %d, want 25", summary.TotalTokens)
	}
}

func TestRecordRequiresCompletionID(t *testing.T) {
	store := openTestStore(t)
	if err := store.Record(context.Background(), ledger.Entry{Model: "test.gguf"}); err == nil {
		t.Error("Record() should reject entries without a completion id")
	}
}

func TestListRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := ledger.Entry{
			RequestID:        "req",
			CompletionID:     "chatcmpl-0000000" + string(rune('1'+i)),
			Model:            "test.gguf",
			PromptTokens:     int64(i),
			CompletionTokens: 1,
		}
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := store.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	// Newest first.
	if entries[0].PromptTokens != 4 {
		t.Errorf("first entry prompt_tokens = %d, want 4", entries[0].PromptTokens)
	}
	if !entries[0].CreatedAt.After(entries[2].CreatedAt) && !entries[0].CreatedAt.Equal(entries[2].CreatedAt) {
		t.Errorf("entries not ordered by recency: %v vs %v", entries[0].CreatedAt, entries[2].CreatedAt)
	}
}
