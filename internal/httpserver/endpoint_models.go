package httpserver

import (
	"net/http"
	"time"

	"github.com/max-7189/GraceAi/internal/httpserver/protocol"
	"github.com/max-7189/GraceAi/internal/openai"
)

type modelsEndpoint struct {
	server *Server
	// Listing timestamps are fixed at startup; the model never changes while
	// the process lives.
	created int64
}

func newModelsEndpoint(server *Server) protocol.Endpoint {
	return &modelsEndpoint{server: server, created: time.Now().Unix()}
}

func (e *modelsEndpoint) Name() string { return "models" }

func (e *modelsEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		protocol.Get("/v1/models", e.handleModels),
	}
}

func (e *modelsEndpoint) handleModels(w http.ResponseWriter, r *http.Request) {
	model := openai.NewModel(e.server.modelName, "local", e.created)
	e.server.respondJSON(w, http.StatusOK, openai.NewModelsResponse(model))
}
