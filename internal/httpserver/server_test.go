package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/max-7189/GraceAi/internal/backend"
	"github.com/max-7189/GraceAi/internal/backend/loopback"
	"github.com/max-7189/GraceAi/internal/ledger"
	"github.com/max-7189/GraceAi/internal/openai"
	"github.com/max-7189/GraceAi/internal/prompt"
)

const testModel = "deepseek-7b.gguf"

func newTestServer(t *testing.T, engine backend.Engine, store ledger.Store) *httptest.Server {
	t.Helper()
	srv := New(engine, prompt.DeepSeek(), testModel, store, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postChat(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, loopback.New(), nil)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
		Model  string `json:"model"`
	}
	decodeJSON(t, resp, &body)
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Model != testModel {
		t.Errorf("model = %q, want %q", body.Model, testModel)
	}
}

func TestChatCompletionNonStreaming(t *testing.T) {
	ts := newTestServer(t, loopback.New(), nil)

	resp := postChat(t, ts, `{"messages":[{"role":"user","content":"hello there"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body openai.ChatCompletionResponse
	decodeJSON(t, resp, &body)

	if !strings.HasPrefix(body.ID, "chatcmpl-") {
		t.Errorf("id = %q, want chatcmpl- prefix", body.ID)
	}
	if body.Object != "chat.completion" {
		t.Errorf("object = %q", body.Object)
	}
	if body.Model != testModel {
		t.Errorf("model = %q, want %q", body.Model, testModel)
	}
	if len(body.Choices) != 1 {
		t.Fatalf("choices = %d, want 1", len(body.Choices))
	}
	choice := body.Choices[0]
	if choice.Message.Role != "assistant" {
		t.Errorf("role = %q, want assistant", choice.Message.Role)
	}
	if choice.Message.Content != "[loopback] hello there" {
		t.Errorf("content = %q", choice.Message.Content)
	}
	if choice.FinishReason != "stop" {
		t.Errorf("finish_reason = %q, want stop", choice.FinishReason)
	}
	if got := body.Usage.PromptTokens + body.Usage.CompletionTokens; got != body.Usage.TotalTokens {
		t.Errorf("usage does not add up: %+v", body.Usage)
	}
}

func TestChatCompletionMissingMessages(t *testing.T) {
	ts := newTestServer(t, loopback.New(), nil)

	resp := postChat(t, ts, `{"stream":false}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body struct {
		Detail string `json:"detail"`
	}
	decodeJSON(t, resp, &body)
	if body.Detail != "messages required" {
		t.Errorf("detail = %q", body.Detail)
	}
}

func TestChatCompletionEmptyMessagesProceeds(t *testing.T) {
	ts := newTestServer(t, loopback.New(), nil)

	resp := postChat(t, ts, `{"messages":[]}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: empty history is a valid conversation", resp.StatusCode)
	}
}

func TestChatCompletionInvalidBody(t *testing.T) {
	ts := newTestServer(t, loopback.New(), nil)

	resp := postChat(t, ts, `{"messages":`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatCompletionEngineError(t *testing.T) {
	engine := &failingEngine{err: errors.New("model exploded")}
	ts := newTestServer(t, engine, nil)

	resp := postChat(t, ts, `{"messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var body struct {
		Detail string `json:"detail"`
	}
	decodeJSON(t, resp, &body)
	if body.Detail != "model exploded" {
		t.Errorf("detail = %q, want original message", body.Detail)
	}
}

// sseChunks splits an SSE body into its data payloads in order.
func sseChunks(t *testing.T, body string) []string {
	t.Helper()
	var chunks []string
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("unexpected SSE block %q", block)
		}
		chunks = append(chunks, strings.TrimPrefix(block, "data: "))
	}
	return chunks
}

func readStream(t *testing.T, resp *http.Response) []string {
	t.Helper()
	defer resp.Body.Close()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return sseChunks(t, sb.String())
}

func TestChatCompletionStreaming(t *testing.T) {
	ts := newTestServer(t, loopback.New(), nil)

	resp := postChat(t, ts, `{"stream":true,"messages":[{"role":"user","content":"tell me a story"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content-type = %q", ct)
	}
	if v := resp.Header.Get("X-Accel-Buffering"); v != "no" {
		t.Errorf("x-accel-buffering = %q, want no", v)
	}

	chunks := readStream(t, resp)
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks, want at least start, end, [DONE]", len(chunks))
	}
	if chunks[len(chunks)-1] != "[DONE]" {
		t.Fatalf("last chunk = %q, want [DONE]", chunks[len(chunks)-1])
	}

	var text strings.Builder
	var sawStart, sawEnd bool
	for i, raw := range chunks[:len(chunks)-1] {
		var chunk openai.ChatCompletionChunk
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if chunk.Object != "chat.completion.chunk" {
			t.Errorf("chunk %d object = %q", i, chunk.Object)
		}
		if len(chunk.Choices) != 1 {
			t.Fatalf("chunk %d choices = %d", i, len(chunk.Choices))
		}
		choice := chunk.Choices[0]
		switch {
		case i == 0:
			if choice.Delta.Role != "assistant" {
				t.Errorf("start chunk role = %q", choice.Delta.Role)
			}
			if choice.Delta.Content == nil || *choice.Delta.Content != "" {
				t.Errorf("start chunk content = %v, want empty string", choice.Delta.Content)
			}
			sawStart = true
		case choice.FinishReason != nil:
			if *choice.FinishReason != "stop" {
				t.Errorf("finish_reason = %q", *choice.FinishReason)
			}
			if choice.Delta.Content != nil || choice.Delta.Role != "" {
				t.Errorf("end chunk delta not empty: %s", raw)
			}
			sawEnd = true
		default:
			if sawEnd {
				t.Errorf("delta after end chunk: %s", raw)
			}
			if choice.Delta.Content != nil {
				text.WriteString(*choice.Delta.Content)
			}
		}
	}
	if !sawStart || !sawEnd {
		t.Fatalf("missing start or end chunk (start=%v end=%v)", sawStart, sawEnd)
	}
	if got := text.String(); got != "[loopback] tell me a story" {
		t.Errorf("concatenated deltas = %q", got)
	}
}

func TestChatCompletionStreamingMidStreamError(t *testing.T) {
	engine := &failingEngine{
		err:    errors.New("decode failure"),
		deltas: []string{"partial "},
	}
	ts := newTestServer(t, engine, nil)

	resp := postChat(t, ts, `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: headers commit before generation fails", resp.StatusCode)
	}
	chunks := readStream(t, resp)

	if chunks[len(chunks)-1] != "[DONE]" {
		t.Fatalf("last chunk = %q, want [DONE] even after an error", chunks[len(chunks)-1])
	}
	errChunk := chunks[len(chunks)-2]
	var streamErr openai.StreamError
	if err := json.Unmarshal([]byte(errChunk), &streamErr); err != nil {
		t.Fatalf("parse error chunk %q: %v", errChunk, err)
	}
	if streamErr.Error.Message != "decode failure" {
		t.Errorf("error message = %q", streamErr.Error.Message)
	}
	if streamErr.Error.Type != "internal_error" {
		t.Errorf("error type = %q", streamErr.Error.Type)
	}

	// The start chunk still precedes the error.
	var first openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(chunks[0]), &first); err != nil {
		t.Fatalf("parse first chunk: %v", err)
	}
	if first.Choices[0].Delta.Role != "assistant" {
		t.Errorf("first chunk is not the start chunk: %s", chunks[0])
	}
}

func TestChatCompletionRecordsUsage(t *testing.T) {
	store := &memStore{}
	ts := newTestServer(t, loopback.New(), store)

	resp := postChat(t, ts, `{"messages":[{"role":"user","content":"count me"}]}`)
	resp.Body.Close()
	resp = postChat(t, ts, `{"stream":true,"messages":[{"role":"user","content":"count me too"}]}`)
	readStream(t, resp)

	entries := store.snapshot()
	if len(entries) != 2 {
		t.Fatalf("recorded %d entries, want 2", len(entries))
	}
	if entries[0].Streamed || !entries[1].Streamed {
		t.Errorf("streamed flags wrong: %v %v", entries[0].Streamed, entries[1].Streamed)
	}
	for i, e := range entries {
		if e.Model != testModel {
			t.Errorf("entry %d model = %q", i, e.Model)
		}
		if e.RequestID == "" || e.CompletionID == "" || e.PromptTokens == 0 {
			t.Errorf("entry %d incomplete: %+v", i, e)
		}
	}
}

func TestModels(t *testing.T) {
	ts := newTestServer(t, loopback.New(), nil)

	resp, err := http.Get(ts.URL + "/v1/models")
	if err != nil {
		t.Fatalf("get models: %v", err)
	}
	var body openai.ModelsResponse
	decodeJSON(t, resp, &body)
	if len(body.Data) != 1 || body.Data[0].ID != testModel {
		t.Errorf("models = %+v", body.Data)
	}
}

func TestUsageEndpoint(t *testing.T) {
	store := &memStore{}
	ts := newTestServer(t, loopback.New(), store)

	resp := postChat(t, ts, `{"messages":[{"role":"user","content":"hi"}]}`)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/v1/usage?limit=10")
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	var body struct {
		Summary ledger.Summary `json:"summary"`
		Recent  []ledger.Entry `json:"recent"`
	}
	decodeJSON(t, resp, &body)
	if body.Summary.Requests != 1 {
		t.Errorf("requests = %d, want 1", body.Summary.Requests)
	}
	if len(body.Recent) != 1 {
		t.Errorf("recent = %d entries, want 1", len(body.Recent))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, loopback.New(), nil)

	resp := postChat(t, ts, `{"messages":[{"role":"user","content":"hi"}]}`)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	var sb strings.Builder
	if _, err := io.Copy(&sb, resp.Body); err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		`graceai_requests_total{route="/v1/chat/completions"} 1`,
		"graceai_completions_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestUsageEndpointDisabled(t *testing.T) {
	ts := newTestServer(t, loopback.New(), nil)

	resp, err := http.Get(ts.URL + "/v1/usage")
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no ledger is configured", resp.StatusCode)
	}
}

// failingEngine fails Complete outright and, for streams, emits the configured
// deltas then an error event.
type failingEngine struct {
	err    error
	deltas []string
}

func (e *failingEngine) Complete(ctx context.Context, params backend.Params) (backend.Result, error) {
	return backend.Result{}, e.err
}

func (e *failingEngine) CompleteStream(ctx context.Context, params backend.Params) (<-chan backend.StreamEvent, error) {
	ch := make(chan backend.StreamEvent, len(e.deltas)+1)
	for _, d := range e.deltas {
		ch <- backend.StreamEvent{Text: d}
	}
	ch <- backend.StreamEvent{Err: e.err}
	close(ch)
	return ch, nil
}

// memStore is an in-memory ledger for handler tests.
type memStore struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (m *memStore) Record(ctx context.Context, entry ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memStore) Summary(ctx context.Context) (ledger.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s ledger.Summary
	for _, e := range m.entries {
		s.Requests++
		s.PromptTokens += e.PromptTokens
		s.CompletionTokens += e.CompletionTokens
	}
	s.TotalTokens = s.PromptTokens + s.CompletionTokens
	return s, nil
}

func (m *memStore) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	if limit < n {
		n = limit
	}
	out := make([]ledger.Entry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) snapshot() []ledger.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Entry(nil), m.entries...)
}
