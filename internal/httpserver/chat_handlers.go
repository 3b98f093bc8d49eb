package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/max-7189/GraceAi/internal/backend"
	"github.com/max-7189/GraceAi/internal/ledger"
	"github.com/max-7189/GraceAi/internal/openai"
)

// HandleChatCompletions validates the request, renders the prompt and
// dispatches to the streaming or non-streaming path.
func (s *Server) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	// An absent messages field is a malformed request; an explicit empty list
	// is a valid (if odd) conversation and proceeds.
	if req.Messages == nil {
		s.respondError(w, http.StatusBadRequest, errors.New("messages required"))
		return
	}
	req.ApplyDefaults()

	promptText := s.template.Build(req.Messages, req.EnableChainOfThought)
	params := backend.Params{
		Prompt:      promptText,
		Temperature: *req.Temperature,
		TopP:        *req.TopP,
		MaxTokens:   *req.MaxTokens,
		Stop:        s.template.StopSequences(),
	}
	id := openai.CompletionID(promptText)
	reqID := uuid.New().String()

	if req.Stream {
		s.streamCompletion(w, r, reqID, id, params)
		return
	}
	s.completeOnce(w, r, reqID, id, params)
}

// completeOnce runs a blocking generation and returns the assembled response.
func (s *Server) completeOnce(w http.ResponseWriter, r *http.Request, reqID, id string, params backend.Params) {
	start := time.Now()
	result, err := s.engine.Complete(r.Context(), params)
	if err != nil {
		s.logf("request %s completion %s failed: %v", reqID, id, err)
		s.metrics.RecordBackendError()
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	content := strings.TrimSpace(result.Text)
	usage := openai.UsageBreakdown{
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
	}
	s.metrics.RecordGeneration(false, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	s.recordUsage(reqID, id, result.Usage, false)
	s.logf("request %s completion %s done in %s (%d tokens)", reqID, id, time.Since(start).Round(time.Millisecond), usage.TotalTokens)
	s.respondJSON(w, http.StatusOK, openai.NewCompletionResponse(id, s.modelName, content, result.FinishReason, usage))
}

// streamCompletion frames the generation as server-sent events. Once the start
// chunk is written the HTTP status is committed; any later failure is reported
// as an inline error chunk followed by the [DONE] sentinel.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, reqID, id string, params backend.Params) {
	events, err := s.engine.CompleteStream(r.Context(), params)
	if err != nil {
		s.logf("request %s stream %s failed to start: %v", reqID, id, err)
		s.metrics.RecordBackendError()
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable buffering in reverse proxies so deltas reach the client as they
	// are generated.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	framer := newStreamFramer(w, id, s.modelName, time.Now().Unix())
	if err := framer.Start(); err != nil {
		s.logf("stream %s: client gone before start: %v", id, err)
		return
	}

	var completionChars int
	for event := range events {
		select {
		case <-r.Context().Done():
			// Client disconnected: stop pulling and write nothing further.
			s.logf("stream %s: client disconnected", id)
			return
		default:
		}

		if event.Err != nil {
			s.logf("stream %s failed: %v", id, event.Err)
			s.metrics.RecordBackendError()
			if err := framer.Fail(event.Err); err != nil {
				return
			}
			break
		}
		if event.Text != "" {
			completionChars += len(event.Text)
			if err := framer.Delta(event.Text); err != nil {
				s.logf("stream %s: write failed: %v", id, err)
				return
			}
		}
		if event.FinishReason != "" {
			if err := framer.End(event.FinishReason); err != nil {
				return
			}
			break
		}
	}
	if !framer.Terminated() {
		// Producer closed the channel without a terminal event; treat it as a
		// backend failure rather than silently ending the turn.
		if err := framer.Fail(errors.New("generation ended unexpectedly")); err != nil {
			return
		}
	}
	if err := framer.Done(); err != nil {
		return
	}

	promptTokens := estimateTokens(len(params.Prompt))
	completionTokens := estimateTokens(completionChars)
	s.metrics.RecordGeneration(true, promptTokens, completionTokens)
	s.recordUsage(reqID, id, backend.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, true)
}

// estimateTokens approximates a token count from a character count. Streaming
// backends report no totals, so the ledger carries the same rough four
// characters per token heuristic for both sides of the exchange.
func estimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	n := chars / 4
	if n < 1 {
		n = 1
	}
	return n
}

func (s *Server) recordUsage(reqID, id string, usage backend.Usage, streamed bool) {
	if s.usage == nil {
		return
	}
	entry := ledger.Entry{
		RequestID:        reqID,
		CompletionID:     id,
		Model:            s.modelName,
		PromptTokens:     int64(usage.PromptTokens),
		CompletionTokens: int64(usage.CompletionTokens),
		Streamed:         streamed,
		CreatedAt:        time.Now().UTC(),
	}
	// Recording runs off the request context: a disconnecting client must not
	// lose the usage row.
	if err := s.usage.Record(context.Background(), entry); err != nil {
		s.logf("record usage for %s: %v", id, err)
	}
}
