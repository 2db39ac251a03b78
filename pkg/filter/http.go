package filter

import (
	"log/slog"
	"net/http"

	"github.com/warpdrive/filterlog/pkg/reject"
	"github.com/warpdrive/filterlog/pkg/reply"
	"github.com/warpdrive/filterlog/pkg/route"
)

// Handler serves f over net/http. Each request gets its own Route in the
// request context; the extracted reply or the rendered rejection is written
// back. Nothing is written for a cancelled invocation.
func Handler[T reply.Reply, E reject.Rejection](f Filter[T, E]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt := route.New(r)
		ctx := route.With(r.Context(), rt)
		w.Header().Set("X-Request-Id", rt.ID())

		o := f(ctx)
		if v, ok := o.Value(); ok {
			reply.Write(w, v)
			return
		}
		if rej, ok := o.Rejection(); ok {
			reply.Write(w, reject.Render(rej))
			return
		}
		slog.Debug("request cancelled",
			"component", "filter", "request_id", rt.ID(),
			"path", rt.FullPath(), "error", o.Err(),
		)
	})
}
