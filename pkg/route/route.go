// Package route carries the per-request data a filter pipeline runs against.
// A Route is built once per incoming request and travels in the request's
// context.Context for the lifetime of that invocation.
package route

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Route is read-only request metadata for one in-flight request.
type Route struct {
	id  string
	req *http.Request
}

// New builds a Route for r with a fresh request ID. An incoming X-Request-Id
// header is honoured.
func New(r *http.Request) *Route {
	id := r.Header.Get("X-Request-Id")
	if id == "" {
		id = uuid.NewString()
	}
	return &Route{id: id, req: r}
}

func (rt *Route) ID() string     { return rt.id }
func (rt *Route) Method() string { return rt.req.Method }

// FullPath returns the request path including the raw query, if any.
func (rt *Route) FullPath() string {
	return rt.req.URL.RequestURI()
}

// Version returns the protocol version, e.g. "HTTP/1.1".
func (rt *Route) Version() string { return rt.req.Proto }

func (rt *Route) RemoteAddr() string { return rt.req.RemoteAddr }

// Param returns a path wildcard matched by the ServeMux pattern.
func (rt *Route) Param(name string) string { return rt.req.PathValue(name) }

func (rt *Route) Header(key string) string { return rt.req.Header.Get(key) }

// Query returns the first value of a URL query parameter.
func (rt *Route) Query(name string) string { return rt.req.URL.Query().Get(name) }

// Body returns the request body. It may only be consumed once.
func (rt *Route) Body() io.Reader {
	if rt.req.Body == nil {
		return http.NoBody
	}
	return rt.req.Body
}

type ctxKey struct{}

// With returns a copy of ctx carrying rt.
func With(ctx context.Context, rt *Route) context.Context {
	return context.WithValue(ctx, ctxKey{}, rt)
}

// From returns the Route installed in ctx, if any.
func From(ctx context.Context) (*Route, bool) {
	rt, ok := ctx.Value(ctxKey{}).(*Route)
	return rt, ok && rt != nil
}
