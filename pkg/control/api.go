package control

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/warpdrive/filterlog/pkg/accesslog"
	"github.com/warpdrive/filterlog/pkg/backend"
	"github.com/warpdrive/filterlog/pkg/filter"
	"github.com/warpdrive/filterlog/pkg/kv"
	"github.com/warpdrive/filterlog/pkg/reject"
	"github.com/warpdrive/filterlog/pkg/reply"
	"github.com/warpdrive/filterlog/pkg/route"
)

// Route targets, used as the access-log name and the metrics target label.
const (
	TargetPing     = "filterlog::ping"
	TargetKV       = "filterlog::kv"
	TargetBackends = "filterlog::backends"
	TargetFiles    = "filterlog::files"
)

// RegisterAPIRoutes registers all API routes on the given mux.
func (s *Server) RegisterAPIRoutes(mux *http.ServeMux) {
	mount(mux, "/api/v1/ping", s.decorator(TargetPing), ping())
	mount(mux, "GET /api/v1/kv", s.decorator(TargetKV), s.listKeys())
	mount(mux, "GET /api/v1/kv/{key}", s.decorator(TargetKV), s.getValue())
	mount(mux, "PUT /api/v1/kv/{key}", s.decorator(TargetKV), s.putValue())
	mount(mux, "DELETE /api/v1/kv/{key}", s.decorator(TargetKV), s.deleteValue())
	mount(mux, "GET /api/v1/backends", s.decorator(TargetBackends), s.listBackends())
	mount(mux, "GET /files/{backend}/{path...}", s.decorator(TargetFiles), s.files())
}

func mount[T reply.Reply, E reject.Rejection](mux *http.ServeMux, pattern string, d accesslog.Decorator, f filter.Filter[T, E]) {
	mux.Handle(pattern, filter.Handler(accesslog.Decorate(d, f)))
}

// GET|HEAD /api/v1/ping
func ping() filter.Filter[*reply.Response, reject.Combined[*reject.Error, *reject.Error]] {
	return filter.Map(
		filter.Or(filter.Method(http.MethodGet), filter.Method(http.MethodHead)),
		func(struct{}) *reply.Response { return reply.Text("pong\n") },
	)
}

// GET /api/v1/kv?prefix=<p>
func (s *Server) listKeys() filter.Filter[*reply.Response, reject.Combined[reject.Never, *reject.Error]] {
	return filter.AndThen(filter.Query("prefix"), func(ctx context.Context, prefix string) filter.Outcome[*reply.Response, *reject.Error] {
		keys, err := s.store.Keys(ctx, prefix)
		if keys == nil {
			keys = []string{}
		}
		return result(ctx, err, func() *reply.Response {
			return reply.JSON(map[string]any{"keys": keys})
		})
	})
}

// GET /api/v1/kv/{key}
func (s *Server) getValue() filter.Filter[*reply.Response, reject.Combined[reject.Never, *reject.Error]] {
	return filter.AndThen(filter.Param("key"), func(ctx context.Context, key string) filter.Outcome[*reply.Response, *reject.Error] {
		val, err := s.store.Get(ctx, key)
		return result(ctx, err, func() *reply.Response {
			return reply.Bytes("application/octet-stream", val)
		})
	})
}

// PUT /api/v1/kv/{key}
func (s *Server) putValue() filter.Filter[*reply.Response, reject.Combined[reject.Combined[reject.Never, *reject.Error], *reject.Error]] {
	keyed := filter.And(filter.Param("key"), filter.Body(s.cfg.MaxBody))
	return filter.AndThen(keyed, func(ctx context.Context, p filter.Pair[string, []byte]) filter.Outcome[*reply.Response, *reject.Error] {
		err := s.store.Put(ctx, p.First, p.Second)
		return result(ctx, err, func() *reply.Response {
			return &reply.Response{Status: http.StatusNoContent}
		})
	})
}

// DELETE /api/v1/kv/{key}
func (s *Server) deleteValue() filter.Filter[*reply.Response, reject.Combined[reject.Never, *reject.Error]] {
	return filter.AndThen(filter.Param("key"), func(ctx context.Context, key string) filter.Outcome[*reply.Response, *reject.Error] {
		err := s.store.Delete(ctx, key)
		return result(ctx, err, func() *reply.Response {
			return &reply.Response{Status: http.StatusNoContent}
		})
	})
}

// GET /api/v1/backends?summary=true
func (s *Server) listBackends() filter.Filter[*reply.Response, reject.Combined[reject.Never, *reject.Error]] {
	return filter.AndThen(filter.Query("summary"), func(ctx context.Context, summary string) filter.Outcome[*reply.Response, *reject.Error] {
		walk, _ := strconv.ParseBool(summary)
		stats, err := s.backendStats(ctx, walk)
		return result(ctx, err, func() *reply.Response { return reply.JSON(stats) })
	})
}

type fileRequest = filter.Pair[string, string]

// GET /files/{backend}/{path...}
//
// Objects are served whole or by a single byte range; directories are
// listed as JSON.
func (s *Server) files() filter.Filter[*reply.Response, reject.Combined[reject.Combined[reject.Combined[reject.Never, reject.Never], *reject.Error], reject.Combined[reject.Combined[reject.Never, reject.Never], *reject.Error]]] {
	target := func() filter.Filter[fileRequest, reject.Combined[reject.Never, reject.Never]] {
		return filter.And(filter.Param("backend"), filter.Param("path"))
	}
	return filter.Or(
		filter.AndThen(target(), s.serveObject),
		filter.AndThen(target(), s.serveListing),
	)
}

func (s *Server) serveObject(ctx context.Context, req fileRequest) filter.Outcome[*reply.Response, *reject.Error] {
	b, err := s.backends.Get(req.First)
	if err != nil {
		return result[*reply.Response](ctx, err, nil)
	}
	var rangeHeader string
	if rt, ok := route.From(ctx); ok {
		rangeHeader = rt.Header("Range")
	}

	obj, err := backend.Fetch(ctx, b, req.Second, rangeHeader)
	return result(ctx, err, func() *reply.Response {
		resp := reply.Bytes(contentType(req.Second), obj.Body)
		resp.Header.Set("Accept-Ranges", "bytes")
		if !obj.ModTime.IsZero() {
			resp.Header.Set("Last-Modified", obj.ModTime.UTC().Format(http.TimeFormat))
		}
		if obj.ETag != "" {
			resp.Header.Set("ETag", strconv.Quote(obj.ETag))
		}
		if obj.Range != nil {
			resp.Status = http.StatusPartialContent
			resp.Header.Set("Content-Range", obj.Range.ContentRange(obj.Size))
		}
		return resp
	})
}

func (s *Server) serveListing(ctx context.Context, req fileRequest) filter.Outcome[*reply.Response, *reject.Error] {
	b, err := s.backends.Get(req.First)
	if err != nil {
		return result[*reply.Response](ctx, err, nil)
	}
	entries, err := b.List(ctx, req.Second)
	if entries == nil {
		entries = []backend.Entry{}
	}
	return result(ctx, err, func() *reply.Response {
		return reply.JSON(map[string]any{
			"backend": req.First,
			"path":    req.Second,
			"entries": entries,
		})
	})
}

// result maps a store or backend error onto an outcome. Cancellation of ctx
// takes precedence over err; a nil err extracts ok().
func result[T any](ctx context.Context, err error, ok func() T) filter.Outcome[T, *reject.Error] {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return filter.Cancelled[T, *reject.Error](ctxErr)
	}
	switch {
	case err == nil:
		return filter.Extracted[T, *reject.Error](ok())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return filter.Cancelled[T, *reject.Error](err)
	case errors.Is(err, kv.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		return filter.Rejected[T](reject.NotFound())
	case errors.Is(err, backend.ErrUnsatisfiable):
		return filter.Rejected[T](reject.Custom(http.StatusRequestedRangeNotSatisfiable, "range not satisfiable", err))
	case errors.Is(err, kv.ErrEmptyKey):
		return filter.Rejected[T](reject.BadRequest(err))
	default:
		return filter.Rejected[T](reject.Internal(err))
	}
}

var contentTypes = map[string]string{
	".json": "application/json",
	".txt":  "text/plain; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".csv":  "text/csv",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
}

func contentType(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		if ct, ok := contentTypes[strings.ToLower(path[i:])]; ok {
			return ct
		}
	}
	return "application/octet-stream"
}
