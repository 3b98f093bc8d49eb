package httpserver

import (
	"net/http"

	"github.com/max-7189/GraceAi/internal/httpserver/protocol"
	"github.com/max-7189/GraceAi/internal/metrics"
)

type metricsEndpoint struct {
	server *Server
}

func newMetricsEndpoint(server *Server) protocol.Endpoint {
	return &metricsEndpoint{server: server}
}

func (e *metricsEndpoint) Name() string { return "metrics" }

func (e *metricsEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		protocol.Get("/metrics", e.handleMetrics),
	}
}

func (e *metricsEndpoint) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(metrics.FormatPrometheus(e.server.metrics.GetSnapshot())))
}
