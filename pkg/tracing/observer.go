// Package tracing reports decorated filter invocations as OpenTelemetry spans.
package tracing

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warpdrive/filterlog/pkg/accesslog"
)

// Observer returns an access observer that records one server span per
// completed invocation. The span covers Info.Start to the moment the
// observer runs and is parented by whatever span the invocation's context
// carries.
func Observer(tracer trace.Tracer, target string) accesslog.Observer {
	return func(info accesslog.Info) {
		start := info.Start()
		end := start.Add(info.Elapsed())
		status := info.Status()

		attrs := []attribute.KeyValue{
			attribute.String("filterlog.target", target),
			attribute.Int("http.response.status_code", status),
		}
		if rt, ok := info.Route(); ok {
			attrs = append(attrs,
				attribute.String("http.request.method", rt.Method()),
				attribute.String("url.path", rt.FullPath()),
				attribute.String("network.protocol.version", strings.TrimPrefix(rt.Version(), "HTTP/")),
				attribute.String("client.address", rt.RemoteAddr()),
				attribute.String("request.id", rt.ID()),
			)
		}

		_, span := tracer.Start(info.Context(), spanName(info.Method(), target),
			trace.WithTimestamp(start),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		setSpanStatus(span, status)
		span.End(trace.WithTimestamp(end))
	}
}

func spanName(method, target string) string {
	if method == "" {
		return target
	}
	return method + " " + target
}

// setSpanStatus marks server errors only; 4xx outcomes are the client's
// problem and leave the span unset.
func setSpanStatus(span trace.Span, status int) {
	switch {
	case status >= 500:
		span.SetStatus(codes.Error, http.StatusText(status))
	case status >= 100 && status < 400:
		span.SetStatus(codes.Ok, "")
	}
}
