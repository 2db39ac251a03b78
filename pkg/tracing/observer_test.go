package tracing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/warpdrive/filterlog/pkg/accesslog"
	"github.com/warpdrive/filterlog/pkg/filter"
	"github.com/warpdrive/filterlog/pkg/reject"
	"github.com/warpdrive/filterlog/pkg/reply"
	"github.com/warpdrive/filterlog/pkg/route"
	"github.com/warpdrive/filterlog/pkg/tracing"
)

func newTracer() (*tracetest.InMemoryExporter, trace.Tracer) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return exporter, provider.Tracer("test")
}

func requestCtx(method, target string) context.Context {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Request-Id", "req-7")
	return route.With(context.Background(), route.New(req))
}

func slowReply(d time.Duration) filter.Filter[*reply.Response, reject.Never] {
	return func(ctx context.Context) filter.Outcome[*reply.Response, reject.Never] {
		time.Sleep(d)
		return filter.Extracted[*reply.Response, reject.Never](reply.Text("ok"))
	}
}

func failWith(rej *reject.Error) filter.Filter[*reply.Response, *reject.Error] {
	return func(ctx context.Context) filter.Outcome[*reply.Response, *reject.Error] {
		return filter.Rejected[*reply.Response](rej)
	}
}

func Test_Observer_RecordsSuccessSpan(t *testing.T) {
	exporter, tracer := newTracer()
	f := accesslog.Decorate(accesslog.Custom(tracing.Observer(tracer, "api")), slowReply(10*time.Millisecond))

	f(requestCtx(http.MethodGet, "/things?limit=2"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1, "Expected exactly one span")

	span := spans[0]
	assert.Equal(t, "GET api", span.Name)
	assert.Equal(t, trace.SpanKindServer, span.SpanKind)
	assert.Equal(t, codes.Ok, span.Status.Code)
	assert.GreaterOrEqual(t, span.EndTime.Sub(span.StartTime), 10*time.Millisecond)

	assertSpanHasAttribute(t, span, "http.request.method", attribute.StringValue("GET"))
	assertSpanHasAttribute(t, span, "url.path", attribute.StringValue("/things?limit=2"))
	assertSpanHasAttribute(t, span, "network.protocol.version", attribute.StringValue("1.1"))
	assertSpanHasAttribute(t, span, "client.address", attribute.StringValue("192.0.2.1:1234"))
	assertSpanHasAttribute(t, span, "request.id", attribute.StringValue("req-7"))
	assertSpanHasAttribute(t, span, "http.response.status_code", attribute.IntValue(200))
}

func Test_Observer_ServerErrorMarksSpan(t *testing.T) {
	exporter, tracer := newTracer()
	f := accesslog.Decorate(accesslog.Custom(tracing.Observer(tracer, "api")), failWith(reject.Internal(errors.New("db gone"))))

	f(requestCtx(http.MethodPost, "/things"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assertSpanHasAttribute(t, spans[0], "http.response.status_code", attribute.IntValue(500))
}

func Test_Observer_ClientErrorLeavesStatusUnset(t *testing.T) {
	exporter, tracer := newTracer()
	f := accesslog.Decorate(accesslog.Custom(tracing.Observer(tracer, "api")), failWith(reject.NotFound()))

	f(requestCtx(http.MethodGet, "/nope"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
}

func Test_Observer_ParentedByContextSpan(t *testing.T) {
	exporter, tracer := newTracer()
	ctx, parent := tracer.Start(requestCtx(http.MethodGet, "/"), "parent")
	f := accesslog.Decorate(accesslog.Custom(tracing.Observer(tracer, "api")), slowReply(0))

	f(ctx)
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	child := spans[0]
	assert.Equal(t, parent.SpanContext().TraceID(), child.SpanContext.TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), child.Parent.SpanID())
}

func Test_Observer_WithoutRoute(t *testing.T) {
	exporter, tracer := newTracer()
	f := accesslog.Decorate(accesslog.Custom(tracing.Observer(tracer, "background")), slowReply(0))

	f(context.Background())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "background", spans[0].Name)
}

func assertSpanHasAttribute(t *testing.T, span tracetest.SpanStub, key string, want attribute.Value) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			assert.Equal(t, want, attr.Value, "attribute %s", key)
			return
		}
	}
	t.Errorf("span %q has no attribute %q", span.Name, key)
}
