// Package testutil holds shared test helpers.
package testutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
)

// IPv4Server is an HTTP test server pinned to the IPv4 loopback. httptest's
// default server may bind ::1, which breaks clients configured with plain
// 127.0.0.1 base URLs.
type IPv4Server struct {
	URL string

	server    *http.Server
	transport *http.Transport
}

// NewIPv4Server starts a server for handler on 127.0.0.1 and registers its
// shutdown with t.Cleanup.
func NewIPv4Server(t *testing.T, handler http.Handler) *IPv4Server {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp4 loopback unavailable: %v", err)
	}
	s := &IPv4Server{
		URL:       "http://" + l.Addr().String(),
		server:    &http.Server{Handler: handler},
		transport: &http.Transport{},
	}
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("test server: %v", err)
		}
	}()
	t.Cleanup(s.Close)
	return s
}

// Client returns a client that will not hold idle connections past Close.
func (s *IPv4Server) Client() *http.Client {
	return &http.Client{Transport: s.transport}
}

// Close stops the server.
func (s *IPv4Server) Close() {
	_ = s.server.Shutdown(context.Background())
	s.transport.CloseIdleConnections()
}
