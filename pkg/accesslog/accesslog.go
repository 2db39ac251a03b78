// Package accesslog decorates filters so each invocation is timed, classified
// by status code and reported to an observer.
//
//	api := accesslog.New("example::api")
//	h := filter.Handler(accesslog.Decorate(api, routes))
//
// The decorated filter extracts a Logged wrapping the rendered response and
// rejects with reject.Combined[E, reject.Never], so decorated filters nest and
// compose like any other filter. The observer runs exactly once per completed
// invocation, after the inner filter and before the outcome is returned. A
// cancelled invocation is forwarded without calling the observer. Observer
// panics are not recovered.
package accesslog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warpdrive/filterlog/pkg/filter"
	"github.com/warpdrive/filterlog/pkg/reject"
	"github.com/warpdrive/filterlog/pkg/reply"
)

// Observer receives the Info of every completed invocation. It is shared by
// all concurrent invocations of a decorated filter and must be safe for
// concurrent use.
type Observer func(Info)

// Decorator wraps filters with an Observer. The zero value observes nothing.
type Decorator struct {
	observer Observer
}

// New returns a Decorator that writes one access line per invocation through
// slog.Default(), tagged with target=name.
func New(name string) Decorator {
	return Decorator{observer: Default(name)}
}

// Custom returns a Decorator that reports to obs.
func Custom(obs Observer) Decorator {
	return Decorator{observer: obs}
}

// Default returns the observer used by New.
func Default(name string) Observer {
	return func(info Info) {
		attrs := []slog.Attr{slog.String("target", name)}
		if id := info.RequestID(); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		slog.Default().LogAttrs(context.Background(), slog.LevelInfo, Format(info), attrs...)
	}
}

// Format renders info in the default access line format:
//
//	"GET /path?q HTTP/1.1" 200 1.52ms
func Format(info Info) string {
	return fmt.Sprintf("%q %d %s",
		info.Method()+" "+info.Path()+" "+info.Version(),
		info.Status(),
		info.Elapsed(),
	)
}

// Multi fans each Info out to every non-nil observer in order.
func Multi(observers ...Observer) Observer {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			filtered = append(filtered, obs)
		}
	}
	return func(info Info) {
		for _, obs := range filtered {
			obs(info)
		}
	}
}

// Logged is the extracted value of a decorated filter: the inner reply,
// already rendered.
type Logged struct {
	resp *reply.Response
}

// IntoResponse returns the wrapped response unchanged.
func (l Logged) IntoResponse() *reply.Response { return l.resp }

// Classify returns the status code of a completed outcome. ok is false for a
// cancelled one. Extracted replies are rendered to read their status.
func Classify[T reply.Reply, E reject.Rejection](o filter.Outcome[T, E]) (status int, ok bool) {
	_, status, ok = classify(o)
	return status, ok
}

// classify is Classify that also returns the rendered response of an
// extracted outcome, so the reply is rendered once. resp is nil otherwise.
func classify[T reply.Reply, E reject.Rejection](o filter.Outcome[T, E]) (resp *reply.Response, status int, ok bool) {
	if v, extracted := o.Value(); extracted {
		resp = v.IntoResponse()
		return resp, resp.StatusCode(), true
	}
	if rej, rejected := o.Rejection(); rejected {
		return nil, rej.Status(), true
	}
	return nil, 0, false
}

// Decorate wraps inner so every completed invocation is reported to d's
// observer.
func Decorate[T reply.Reply, E reject.Rejection](d Decorator, inner filter.Filter[T, E]) filter.Filter[Logged, reject.Combined[E, reject.Never]] {
	obs := d.observer
	return func(ctx context.Context) filter.Outcome[Logged, reject.Combined[E, reject.Never]] {
		start := time.Now()
		o := inner(ctx)
		resp, status, ok := classify(o)
		if !ok {
			return filter.Cancelled[Logged, reject.Combined[E, reject.Never]](o.Err())
		}

		var out filter.Outcome[Logged, reject.Combined[E, reject.Never]]
		if rej, rejected := o.Rejection(); rejected {
			out = filter.Rejected[Logged](reject.First[E, reject.Never](rej))
		} else {
			out = filter.Extracted[Logged, reject.Combined[E, reject.Never]](Logged{resp: resp})
		}

		if obs != nil {
			obs(Info{ctx: ctx, start: start, status: status})
		}
		return out
	}
}
