package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/max-7189/GraceAi/internal/httpserver/protocol"
	"github.com/max-7189/GraceAi/internal/ledger"
)

type usageEndpoint struct {
	server *Server
}

func newUsageEndpoint(server *Server) protocol.Endpoint {
	return &usageEndpoint{server: server}
}

func (e *usageEndpoint) Name() string { return "usage" }

func (e *usageEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		protocol.Get("/v1/usage", e.handleUsage),
	}
}

type usageBody struct {
	Summary ledger.Summary `json:"summary"`
	Recent  []ledger.Entry `json:"recent,omitempty"`
}

func (e *usageEndpoint) handleUsage(w http.ResponseWriter, r *http.Request) {
	s := e.server
	if s.usage == nil {
		s.respondError(w, http.StatusNotFound, errors.New("usage ledger disabled"))
		return
	}

	summary, err := s.usage.Summary(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	body := usageBody{Summary: summary}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.respondError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		body.Recent, err = s.usage.ListRecent(r.Context(), limit)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, body)
}
