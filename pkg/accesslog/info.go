package accesslog

import (
	"context"
	"time"

	"github.com/warpdrive/filterlog/pkg/route"
)

// Info describes one completed invocation of a decorated filter. It is built
// fresh for every invocation and must not be retained after the observer
// returns.
type Info struct {
	ctx    context.Context
	start  time.Time
	status int
}

// Start is the instant the decorated filter was entered.
func (i Info) Start() time.Time { return i.start }

// Elapsed is the time since Start, measured on the monotonic clock.
func (i Info) Elapsed() time.Duration { return time.Since(i.start) }

// Status is the HTTP status the invocation resolved to.
func (i Info) Status() int { return i.status }

// Context is the context the invocation ran with.
func (i Info) Context() context.Context { return i.ctx }

// Route returns the request the invocation served, if the pipeline
// installed one.
func (i Info) Route() (*route.Route, bool) {
	return route.From(i.ctx)
}

// Method is the request method, empty without a route.
func (i Info) Method() string {
	if rt, ok := i.Route(); ok {
		return rt.Method()
	}
	return ""
}

// Path is the full request path, query included.
func (i Info) Path() string {
	if rt, ok := i.Route(); ok {
		return rt.FullPath()
	}
	return ""
}

// Version is the request protocol, such as "HTTP/1.1".
func (i Info) Version() string {
	if rt, ok := i.Route(); ok {
		return rt.Version()
	}
	return ""
}

// RemoteAddr is the client's network address as reported by net/http.
func (i Info) RemoteAddr() string {
	if rt, ok := i.Route(); ok {
		return rt.RemoteAddr()
	}
	return ""
}

// RequestID is the X-Request-Id the request carried, or the one generated
// for it.
func (i Info) RequestID() string {
	if rt, ok := i.Route(); ok {
		return rt.ID()
	}
	return ""
}
