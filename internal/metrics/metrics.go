// Package metrics tracks request and generation counters for the daemon.
// Manual tracking, no client library; the exposition format is small enough
// to emit by hand.
package metrics

import (
	"sync"
	"time"
)

// Collector accumulates counters since process start.
type Collector struct {
	mu sync.RWMutex

	startTime time.Time

	// HTTP metrics by route.
	requests   map[string]int64
	durationMS map[string]int64
	errors     map[string]int64
	inFlight   map[string]int64

	// Generation metrics.
	completions         int64
	streamedCompletions int64
	promptTokens        int64
	completionTokens    int64
	backendErrors       int64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		startTime:  time.Now(),
		requests:   make(map[string]int64),
		durationMS: make(map[string]int64),
		errors:     make(map[string]int64),
		inFlight:   make(map[string]int64),
	}
}

// RecordRequest records one finished HTTP request. Responses with a 4xx or
// 5xx status count as errors.
func (c *Collector) RecordRequest(route string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests[route]++
	c.durationMS[route] += duration.Milliseconds()
	if status >= 400 {
		c.errors[route]++
	}
}

// RecordInFlight adjusts the in-flight gauge for a route.
func (c *Collector) RecordInFlight(route string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[route] += delta
}

// RecordGeneration records one successful completion's token usage.
func (c *Collector) RecordGeneration(streamed bool, promptTokens, completionTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions++
	if streamed {
		c.streamedCompletions++
	}
	c.promptTokens += int64(promptTokens)
	c.completionTokens += int64(completionTokens)
}

// RecordBackendError records a generation that failed inside the engine.
func (c *Collector) RecordBackendError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backendErrors++
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds       int64
	Requests            map[string]int64
	DurationMS          map[string]int64
	Errors              map[string]int64
	InFlight            map[string]int64
	Completions         int64
	StreamedCompletions int64
	PromptTokens        int64
	CompletionTokens    int64
	BackendErrors       int64
}

// GetSnapshot copies the current counters.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		UptimeSeconds:       int64(time.Since(c.startTime).Seconds()),
		Requests:            copyMap(c.requests),
		DurationMS:          copyMap(c.durationMS),
		Errors:              copyMap(c.errors),
		InFlight:            copyMap(c.inFlight),
		Completions:         c.completions,
		StreamedCompletions: c.streamedCompletions,
		PromptTokens:        c.promptTokens,
		CompletionTokens:    c.completionTokens,
		BackendErrors:       c.backendErrors,
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
