// Package protocol defines how endpoint groups register their routes on the
// server's router.
package protocol

import "net/http"

// EndpointRoute binds one HTTP method and path to a handler.
type EndpointRoute struct {
	Method  string
	Path    string
	Handler http.Handler
}

// Endpoint is a named group of related routes. The server mounts every route
// of every endpoint it is constructed with; endpoints stay unaware of each
// other and of the router in use.
type Endpoint interface {
	Name() string
	Routes() []EndpointRoute
}

// Get builds a GET route.
func Get(path string, handler http.HandlerFunc) EndpointRoute {
	return EndpointRoute{Method: http.MethodGet, Path: path, Handler: handler}
}

// Post builds a POST route.
func Post(path string, handler http.HandlerFunc) EndpointRoute {
	return EndpointRoute{Method: http.MethodPost, Path: path, Handler: handler}
}
