// Package llamacpp talks to a llama.cpp server ("llama-server") over its
// native /completion API.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/max-7189/GraceAi/internal/backend"
)

// Ensure Client implements the generation interface.
var _ backend.Engine = (*Client)(nil)

// Client sends generation requests to a llama.cpp server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// timeout bounds non-streaming calls only; streams are bounded by the
	// request context.
	timeout time.Duration
}

// Config holds configuration for the llama.cpp client.
type Config struct {
	BaseURL        string // e.g. http://127.0.0.1:8808
	RequestTimeout time.Duration
}

// New creates a Client instance.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("llamacpp: base url required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    timeout,
	}, nil
}

// completionPayload is the native llama.cpp /completion request body.
type completionPayload struct {
	Prompt      string   `json:"prompt"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	NPredict    int      `json:"n_predict"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
	CachePrompt bool     `json:"cache_prompt"`
}

// completionResponse covers both the final non-streaming body and each
// streamed fragment.
type completionResponse struct {
	Content         string `json:"content"`
	Stop            bool   `json:"stop"`
	StoppedEOS      bool   `json:"stopped_eos"`
	StoppedWord     bool   `json:"stopped_word"`
	StoppedLimit    bool   `json:"stopped_limit"`
	TokensEvaluated int    `json:"tokens_evaluated"`
	TokensPredicted int    `json:"tokens_predicted"`
}

func (r completionResponse) finishReason() string {
	if r.StoppedLimit {
		return backend.FinishLength
	}
	return backend.FinishStop
}

func payloadFor(params backend.Params, stream bool) completionPayload {
	return completionPayload{
		Prompt:      params.Prompt,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		NPredict:    params.MaxTokens,
		Stop:        params.Stop,
		Stream:      stream,
		CachePrompt: true,
	}
}

func (c *Client) newRequest(ctx context.Context, payload completionPayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llamacpp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Errorf("llamacpp: %s", errResp.Error.Message)
	}
	return fmt.Errorf("llamacpp: http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

// Complete runs one blocking generation and returns the full result.
func (c *Client) Complete(ctx context.Context, params backend.Params) (backend.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, payloadFor(params, false))
	if err != nil {
		return backend.Result{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return backend.Result{}, fmt.Errorf("llamacpp: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return backend.Result{}, statusError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return backend.Result{}, fmt.Errorf("llamacpp: read response: %w", err)
	}
	var cr completionResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return backend.Result{}, fmt.Errorf("llamacpp: unmarshal response: %w", err)
	}

	usage := backend.Usage{
		PromptTokens:     cr.TokensEvaluated,
		CompletionTokens: cr.TokensPredicted,
		TotalTokens:      cr.TokensEvaluated + cr.TokensPredicted,
	}
	return backend.Result{Text: cr.Content, FinishReason: cr.finishReason(), Usage: usage}, nil
}

// CompleteStream starts a streaming generation. Each SSE data line from the
// runtime maps to exactly one StreamEvent; the terminal event carries the
// finish reason.
func (c *Client) CompleteStream(ctx context.Context, params backend.Params) (<-chan backend.StreamEvent, error) {
	req, err := c.newRequest(ctx, payloadFor(params, true))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	ch := make(chan backend.StreamEvent, 10)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		// emit delivers an event unless the consumer's context ended.
		emit := func(ev backend.StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		buf := make([]byte, 8192)
		leftover := ""
		for {
			select {
			case <-ctx.Done():
				emit(backend.StreamEvent{Err: ctx.Err()})
				return
			default:
			}

			n, err := resp.Body.Read(buf)
			if n > 0 {
				data := leftover + string(buf[:n])
				lines := strings.Split(data, "\n")
				leftover = lines[len(lines)-1]
				for _, line := range lines[:len(lines)-1] {
					line = strings.TrimSpace(line)
					if !strings.HasPrefix(line, "data:") {
						continue
					}
					payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
					if payload == "" {
						continue
					}
					var cr completionResponse
					if perr := json.Unmarshal([]byte(payload), &cr); perr != nil {
						emit(backend.StreamEvent{Err: fmt.Errorf("llamacpp: parse stream: %w", perr)})
						return
					}
					if cr.Stop {
						// Terminal fragment; any trailing content rides along.
						emit(backend.StreamEvent{Text: cr.Content, FinishReason: cr.finishReason()})
						return
					}
					if !emit(backend.StreamEvent{Text: cr.Content}) {
						return
					}
				}
			}
			if err != nil {
				if err == io.EOF {
					return
				}
				emit(backend.StreamEvent{Err: fmt.Errorf("llamacpp: read stream: %w", err)})
				return
			}
		}
	}()
	return ch, nil
}

// Health probes the runtime's /health endpoint. It returns nil once the model
// finished loading.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("llamacpp: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llamacpp: health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llamacpp: health: http %d", resp.StatusCode)
	}
	return nil
}
