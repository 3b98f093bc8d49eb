// Package httpserver exposes the OpenAI-compatible HTTP façade over the local
// inference engine.
package httpserver

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/max-7189/GraceAi/internal/backend"
	"github.com/max-7189/GraceAi/internal/httpserver/protocol"
	"github.com/max-7189/GraceAi/internal/ledger"
	"github.com/max-7189/GraceAi/internal/metrics"
	"github.com/max-7189/GraceAi/internal/prompt"
)

// Server routes chat completion requests to the generation engine.
type Server struct {
	engine    backend.Engine
	template  prompt.Template
	modelName string
	usage     ledger.Store
	logger    *log.Logger
	metrics   *metrics.Collector
}

// New constructs a Server. The usage store and logger may be nil.
func New(engine backend.Engine, template prompt.Template, modelName string, usage ledger.Store, logger *log.Logger) *Server {
	return &Server{
		engine:    engine,
		template:  template,
		modelName: modelName,
		usage:     usage,
		logger:    logger,
		metrics:   metrics.NewCollector(),
	}
}

func (s *Server) endpoints() []protocol.Endpoint {
	return []protocol.Endpoint{
		newHealthEndpoint(s),
		newChatEndpoint(s),
		newModelsEndpoint(s),
		newUsageEndpoint(s),
		newMetricsEndpoint(s),
	}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	for _, ep := range s.endpoints() {
		for _, route := range ep.Routes() {
			r.Method(route.Method, route.Path, s.instrument(route.Path, route.Handler))
		}
	}
	return r
}

// instrument wraps a route handler with request counting.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.RecordInFlight(route, 1)
		defer s.metrics.RecordInFlight(route, -1)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metrics.RecordRequest(route, sw.status, time.Since(start))
	})
}

// statusWriter captures the response status while keeping the Flusher the
// streaming path depends on.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// errorBody is the non-streaming error payload.
type errorBody struct {
	Detail string `json:"detail"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && s.logger != nil {
		s.logger.Printf("write response failed: %v", err)
	}
}

// respondError reports the failure with its original message; this is a local
// developer-facing service, nothing is sanitised away.
func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respondJSON(w, status, errorBody{Detail: err.Error()})
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
