package httpserver

import (
	"net/http"

	"github.com/max-7189/GraceAi/internal/httpserver/protocol"
)

type healthEndpoint struct {
	server *Server
}

func newHealthEndpoint(server *Server) protocol.Endpoint {
	return &healthEndpoint{server: server}
}

func (e *healthEndpoint) Name() string { return "health" }

func (e *healthEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		protocol.Get("/health", e.server.HandleHealth),
	}
}

type healthBody struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// HandleHealth reports liveness. It deliberately does not probe the backend:
// a loaded model busy with a long generation must still answer health checks.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, healthBody{Status: "ok", Model: s.modelName})
}
