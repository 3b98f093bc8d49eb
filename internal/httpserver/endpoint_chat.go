package httpserver

import (
	"github.com/max-7189/GraceAi/internal/httpserver/protocol"
)

type chatEndpoint struct {
	server *Server
}

func newChatEndpoint(server *Server) protocol.Endpoint {
	return &chatEndpoint{server: server}
}

func (e *chatEndpoint) Name() string { return "chat" }

func (e *chatEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		protocol.Post("/v1/chat/completions", e.server.HandleChatCompletions),
	}
}
