package accesslog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/warpdrive/filterlog/pkg/filter"
	"github.com/warpdrive/filterlog/pkg/reject"
	"github.com/warpdrive/filterlog/pkg/reply"
	"github.com/warpdrive/filterlog/pkg/route"
)

// recorder is a concurrency-safe observer that keeps a snapshot of every
// Info it sees.
type recorder struct {
	mu      sync.Mutex
	records []record
}

type record struct {
	start   time.Time
	seen    time.Time
	elapsed time.Duration
	status  int
	method  string
	path    string
}

func (r *recorder) observe(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record{
		start:   info.Start(),
		seen:    time.Now(),
		elapsed: info.Elapsed(),
		status:  info.Status(),
		method:  info.Method(),
		path:    info.Path(),
	})
}

func (r *recorder) snapshot() []record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]record, len(r.records))
	copy(out, r.records)
	return out
}

func routeCtx(method, target string) context.Context {
	return route.With(context.Background(), route.New(httptest.NewRequest(method, target, nil)))
}

func replyAfter(d time.Duration, status int) filter.Filter[*reply.Response, reject.Never] {
	return func(ctx context.Context) filter.Outcome[*reply.Response, reject.Never] {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return filter.Cancelled[*reply.Response, reject.Never](ctx.Err())
		}
		return filter.Extracted[*reply.Response, reject.Never](reply.WithStatus(reply.Text("ok"), status))
	}
}

func rejectWith(rej *reject.Error) filter.Filter[*reply.Response, *reject.Error] {
	return func(ctx context.Context) filter.Outcome[*reply.Response, *reject.Error] {
		return filter.Rejected[*reply.Response](rej)
	}
}

func TestDecorateSuccess(t *testing.T) {
	const delay = 20 * time.Millisecond
	rec := &recorder{}
	f := Decorate(Custom(rec.observe), replyAfter(delay, http.StatusOK))

	o := f(routeCtx(http.MethodGet, "/hello"))
	v, ok := o.Value()
	if !ok {
		t.Fatal("expected extracted outcome")
	}
	if got := v.IntoResponse().StatusCode(); got != http.StatusOK {
		t.Errorf("forwarded status = %d", got)
	}
	if string(v.IntoResponse().Body) != "ok" {
		t.Errorf("forwarded body = %q", v.IntoResponse().Body)
	}

	records := rec.snapshot()
	if len(records) != 1 {
		t.Fatalf("observer called %d times, want 1", len(records))
	}
	if records[0].status != http.StatusOK {
		t.Errorf("status = %d, want 200", records[0].status)
	}
	if records[0].elapsed < delay {
		t.Errorf("elapsed = %v, want >= %v", records[0].elapsed, delay)
	}
}

func TestDecorateRejection(t *testing.T) {
	rec := &recorder{}
	orig := reject.NotFound()
	f := Decorate(Custom(rec.observe), rejectWith(orig))

	o := f(routeCtx(http.MethodGet, "/missing"))
	rej, ok := o.Rejection()
	if !ok {
		t.Fatal("expected rejected outcome")
	}
	got, first := rej.First()
	if !first || got != orig {
		t.Errorf("forwarded rejection = %v, want the original value", got)
	}
	if _, second := rej.Second(); second {
		t.Error("decorator produced its own rejection")
	}
	var target *reject.Error
	if !errors.As(rej, &target) || target != orig {
		t.Error("errors.As should reach the original rejection")
	}

	records := rec.snapshot()
	if len(records) != 1 {
		t.Fatalf("observer called %d times, want 1", len(records))
	}
	if records[0].status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", records[0].status)
	}
}

func TestStatusMatchesDirectClassification(t *testing.T) {
	replies := []int{http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusAccepted}
	for _, status := range replies {
		t.Run(fmt.Sprintf("reply_%d", status), func(t *testing.T) {
			rec := &recorder{}
			inner := replyAfter(0, status)
			want, _ := Classify(inner(routeCtx(http.MethodGet, "/")))
			Decorate(Custom(rec.observe), inner)(routeCtx(http.MethodGet, "/"))
			if got := rec.snapshot()[0].status; got != want {
				t.Errorf("observed %d, direct %d", got, want)
			}
		})
	}

	rejections := []*reject.Error{
		reject.NotFound(), reject.MethodNotAllowed(), reject.BadRequest(errors.New("x")),
		reject.Internal(errors.New("y")), reject.Custom(http.StatusTeapot, "teapot"),
	}
	for _, rej := range rejections {
		t.Run(fmt.Sprintf("reject_%d", rej.Status()), func(t *testing.T) {
			rec := &recorder{}
			Decorate(Custom(rec.observe), rejectWith(rej))(routeCtx(http.MethodGet, "/"))
			if got := rec.snapshot()[0].status; got != rej.Status() {
				t.Errorf("observed %d, direct %d", got, rej.Status())
			}
		})
	}
}

func TestStartPrecedesInner(t *testing.T) {
	rec := &recorder{}
	var entered time.Time
	inner := filter.Filter[*reply.Response, reject.Never](func(ctx context.Context) filter.Outcome[*reply.Response, reject.Never] {
		entered = time.Now()
		return filter.Extracted[*reply.Response, reject.Never](reply.Text("ok"))
	})
	Decorate(Custom(rec.observe), inner)(routeCtx(http.MethodGet, "/"))

	r := rec.snapshot()[0]
	if entered.Before(r.start) {
		t.Errorf("inner entered at %v before start %v", entered, r.start)
	}
	if r.elapsed < 0 {
		t.Errorf("negative elapsed %v", r.elapsed)
	}
	if r.seen.Before(entered) {
		t.Error("observer ran before the inner filter")
	}
}

func TestCancelledInvocationIsNotObserved(t *testing.T) {
	rec := &recorder{}
	f := Decorate(Custom(rec.observe), replyAfter(time.Second, http.StatusOK))

	ctx, cancel := context.WithCancel(routeCtx(http.MethodGet, "/slow"))
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	o := f(ctx)
	if !o.IsCancelled() {
		t.Fatal("expected cancelled outcome")
	}
	if !errors.Is(o.Err(), context.Canceled) {
		t.Errorf("Err() = %v", o.Err())
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("observer called %d times for a cancelled invocation", n)
	}
}

func TestConcurrentInvocationsKeepTheirOwnRoute(t *testing.T) {
	rec := &recorder{}
	f := Decorate(Custom(rec.observe), replyAfter(5*time.Millisecond, http.StatusOK))

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			method := http.MethodGet
			if i%2 == 1 {
				method = http.MethodPost
			}
			f(routeCtx(method, fmt.Sprintf("/item/%d", i)))
		}(i)
	}
	wg.Wait()

	records := rec.snapshot()
	if len(records) != n {
		t.Fatalf("observer called %d times, want %d", len(records), n)
	}
	seen := make(map[string]string, n)
	for _, r := range records {
		seen[r.path] = r.method
	}
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("/item/%d", i)
		want := http.MethodGet
		if i%2 == 1 {
			want = http.MethodPost
		}
		if got, ok := seen[path]; !ok || got != want {
			t.Errorf("%s observed with method %q, want %q", path, got, want)
		}
	}
}

func TestChainedDecorators(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
		stats []int
	)
	observe := func(name string) Observer {
		return func(info Info) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			stats = append(stats, info.Status())
		}
	}

	inner := Decorate(Custom(observe("inner")), rejectWith(reject.NotFound()))
	outer := Decorate(Custom(observe("outer")), inner)

	o := outer(routeCtx(http.MethodGet, "/nested"))
	rej, ok := o.Rejection()
	if !ok || rej.Status() != http.StatusNotFound {
		t.Fatalf("outer outcome = %v, %v", rej, ok)
	}
	if strings.Join(order, ",") != "inner,outer" {
		t.Errorf("observer order = %v", order)
	}
	if len(stats) != 2 || stats[0] != stats[1] {
		t.Errorf("statuses = %v, want two equal entries", stats)
	}

	order, stats = nil, nil
	okInner := Decorate(Custom(observe("inner")), replyAfter(0, http.StatusAccepted))
	v, ok := Decorate(Custom(observe("outer")), okInner)(routeCtx(http.MethodGet, "/")).Value()
	if !ok || v.IntoResponse().StatusCode() != http.StatusAccepted {
		t.Fatal("expected 202 to pass through both decorators")
	}
	if strings.Join(order, ",") != "inner,outer" || stats[0] != http.StatusAccepted || stats[1] != http.StatusAccepted {
		t.Errorf("order = %v, statuses = %v", order, stats)
	}
}

func TestObserverPanicPropagates(t *testing.T) {
	f := Decorate(Custom(func(Info) { panic("observer bug") }), replyAfter(0, http.StatusOK))
	defer func() {
		if r := recover(); r != "observer bug" {
			t.Errorf("recovered %v, want observer panic", r)
		}
	}()
	f(routeCtx(http.MethodGet, "/"))
	t.Fatal("expected panic")
}

func TestZeroDecoratorPassesThrough(t *testing.T) {
	v, ok := Decorate(Decorator{}, replyAfter(0, http.StatusOK))(routeCtx(http.MethodGet, "/")).Value()
	if !ok || v.IntoResponse().StatusCode() != http.StatusOK {
		t.Error("zero Decorator should forward the reply")
	}
}

func TestClassify(t *testing.T) {
	if s, ok := Classify(filter.Extracted[*reply.Response, *reject.Error](&reply.Response{})); !ok || s != http.StatusOK {
		t.Errorf("unset status classified as %d, %v", s, ok)
	}
	if s, ok := Classify(filter.Rejected[*reply.Response](reject.MethodNotAllowed())); !ok || s != http.StatusMethodNotAllowed {
		t.Errorf("rejection classified as %d, %v", s, ok)
	}
	if _, ok := Classify(filter.Cancelled[*reply.Response, *reject.Error](context.Canceled)); ok {
		t.Error("cancelled outcome should not classify")
	}
}

// countingReply renders a fresh response on every call and counts them.
type countingReply struct {
	status  int
	renders *int
}

func (c countingReply) IntoResponse() *reply.Response {
	*c.renders++
	return reply.WithStatus(reply.Text("counted"), c.status)
}

func TestDecorateRendersOnce(t *testing.T) {
	renders := 0
	inner := func(ctx context.Context) filter.Outcome[countingReply, reject.Never] {
		return filter.Extracted[countingReply, reject.Never](countingReply{status: http.StatusCreated, renders: &renders})
	}

	rec := &recorder{}
	v, ok := Decorate(Custom(rec.observe), inner)(routeCtx(http.MethodPost, "/items")).Value()
	if !ok {
		t.Fatal("decorated filter did not extract")
	}
	if renders != 1 {
		t.Errorf("reply rendered %d times, want 1", renders)
	}
	got := rec.snapshot()
	if len(got) != 1 || got[0].status != http.StatusCreated || v.IntoResponse().StatusCode() != http.StatusCreated {
		t.Errorf("observed %+v, forwarded %d", got, v.IntoResponse().StatusCode())
	}
	if string(v.IntoResponse().Body) != "counted" {
		t.Errorf("forwarded body = %q", v.IntoResponse().Body)
	}
}

func TestMulti(t *testing.T) {
	var calls []string
	obs := Multi(
		func(Info) { calls = append(calls, "a") },
		nil,
		func(Info) { calls = append(calls, "b") },
	)
	Decorate(Custom(obs), replyAfter(0, http.StatusOK))(routeCtx(http.MethodGet, "/"))
	if strings.Join(calls, ",") != "a,b" {
		t.Errorf("calls = %v", calls)
	}
}

func TestInfoRequestFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/kv/a?x=1", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	req.Header.Set("X-Request-Id", "abc-123")

	var method, path, version, remote, id string
	obs := func(info Info) {
		method, path, version = info.Method(), info.Path(), info.Version()
		remote, id = info.RemoteAddr(), info.RequestID()
	}
	Decorate(Custom(obs), replyAfter(0, http.StatusOK))(route.With(context.Background(), route.New(req)))

	if method != http.MethodPut || path != "/kv/a?x=1" || version != "HTTP/1.1" {
		t.Errorf("request line = %q %q %q", method, path, version)
	}
	if remote != "10.0.0.7:5123" {
		t.Errorf("RemoteAddr = %q", remote)
	}
	if id != "abc-123" {
		t.Errorf("RequestID = %q", id)
	}
}

func TestInfoWithoutRoute(t *testing.T) {
	rec := &recorder{}
	Decorate(Custom(rec.observe), replyAfter(0, http.StatusOK))(context.Background())
	r := rec.snapshot()[0]
	if r.method != "" || r.path != "" {
		t.Errorf("expected empty request fields, got %q %q", r.method, r.path)
	}
}

func TestDefaultObserverWritesAccessLine(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/kv/alpha?x=1", nil)
	req.Header.Set("X-Request-Id", "req-42")
	ctx := route.With(context.Background(), route.New(req))

	Decorate(New("example::api"), rejectWith(reject.NotFound()))(ctx)

	line := buf.String()
	for _, want := range []string{
		`GET /api/v1/kv/alpha?x=1 HTTP/1.1`,
		" 404 ",
		"target=example::api",
		"request_id=req-42",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
	if strings.Count(line, "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", line)
	}
}

func TestFormat(t *testing.T) {
	info := Info{
		ctx:    routeCtx(http.MethodPut, "/x"),
		start:  time.Now(),
		status: http.StatusCreated,
	}
	got := Format(info)
	if !strings.HasPrefix(got, `"PUT /x HTTP/1.1" 201 `) {
		t.Errorf("Format = %q", got)
	}
}
