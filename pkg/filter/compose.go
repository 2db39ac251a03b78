package filter

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/warpdrive/filterlog/pkg/reject"
	"github.com/warpdrive/filterlog/pkg/route"
)

// Any matches every request.
func Any() Filter[struct{}, reject.Never] {
	return func(ctx context.Context) Outcome[struct{}, reject.Never] {
		if err := ctx.Err(); err != nil {
			return Cancelled[struct{}, reject.Never](err)
		}
		return Extracted[struct{}, reject.Never](struct{}{})
	}
}

// Map transforms the extracted value of f.
func Map[T, U any, E reject.Rejection](f Filter[T, E], fn func(T) U) Filter[U, E] {
	return func(ctx context.Context) Outcome[U, E] {
		o := f(ctx)
		if o.IsCancelled() {
			return Cancelled[U, E](o.Err())
		}
		if rej, ok := o.Rejection(); ok {
			return Rejected[U](rej)
		}
		v, _ := o.Value()
		return Extracted[U, E](fn(v))
	}
}

// AndThen runs fn with the value extracted by f. The resulting rejection
// type combines the rejections of both steps.
func AndThen[T, U any, E1, E2 reject.Rejection](f Filter[T, E1], fn func(context.Context, T) Outcome[U, E2]) Filter[U, reject.Combined[E1, E2]] {
	return func(ctx context.Context) Outcome[U, reject.Combined[E1, E2]] {
		o := f(ctx)
		if o.IsCancelled() {
			return Cancelled[U, reject.Combined[E1, E2]](o.Err())
		}
		if rej, ok := o.Rejection(); ok {
			return Rejected[U](reject.First[E1, E2](rej))
		}
		if err := ctx.Err(); err != nil {
			return Cancelled[U, reject.Combined[E1, E2]](err)
		}
		v, _ := o.Value()
		next := fn(ctx, v)
		if next.IsCancelled() {
			return Cancelled[U, reject.Combined[E1, E2]](next.Err())
		}
		if rej, ok := next.Rejection(); ok {
			return Rejected[U](reject.Second[E1](rej))
		}
		u, _ := next.Value()
		return Extracted[U, reject.Combined[E1, E2]](u)
	}
}

// Or tries a, then b if a rejected. When both reject, a 404 from one side
// loses to any other status from the other; otherwise b's rejection wins.
func Or[T any, E1, E2 reject.Rejection](a Filter[T, E1], b Filter[T, E2]) Filter[T, reject.Combined[E1, E2]] {
	return func(ctx context.Context) Outcome[T, reject.Combined[E1, E2]] {
		first := a(ctx)
		if first.IsCancelled() {
			return Cancelled[T, reject.Combined[E1, E2]](first.Err())
		}
		rejA, ok := first.Rejection()
		if !ok {
			v, _ := first.Value()
			return Extracted[T, reject.Combined[E1, E2]](v)
		}
		if err := ctx.Err(); err != nil {
			return Cancelled[T, reject.Combined[E1, E2]](err)
		}
		second := b(ctx)
		if second.IsCancelled() {
			return Cancelled[T, reject.Combined[E1, E2]](second.Err())
		}
		rejB, ok := second.Rejection()
		if !ok {
			v, _ := second.Value()
			return Extracted[T, reject.Combined[E1, E2]](v)
		}
		if rejB.Status() == http.StatusNotFound && rejA.Status() != http.StatusNotFound {
			return Rejected[T](reject.First[E1, E2](rejA))
		}
		return Rejected[T](reject.Second[E1](rejB))
	}
}

// Pair holds the values extracted by And.
type Pair[A, B any] struct {
	First  A
	Second B
}

// And runs a then b and extracts both values. b only runs when a extracted.
func And[A, B any, E1, E2 reject.Rejection](a Filter[A, E1], b Filter[B, E2]) Filter[Pair[A, B], reject.Combined[E1, E2]] {
	return AndThen(a, func(ctx context.Context, va A) Outcome[Pair[A, B], E2] {
		o := b(ctx)
		if o.IsCancelled() {
			return Cancelled[Pair[A, B], E2](o.Err())
		}
		if rej, ok := o.Rejection(); ok {
			return Rejected[Pair[A, B]](rej)
		}
		vb, _ := o.Value()
		return Extracted[Pair[A, B], E2](Pair[A, B]{First: va, Second: vb})
	})
}

// Lift widens the rejection type of f to the Rejection interface so stages
// with different concrete rejections can share one signature.
func Lift[T any, E reject.Rejection](f Filter[T, E]) Filter[T, reject.Rejection] {
	return func(ctx context.Context) Outcome[T, reject.Rejection] {
		o := f(ctx)
		if o.IsCancelled() {
			return Cancelled[T, reject.Rejection](o.Err())
		}
		if rej, ok := o.Rejection(); ok {
			return Rejected[T, reject.Rejection](rej)
		}
		v, _ := o.Value()
		return Extracted[T, reject.Rejection](v)
	}
}

// Method matches requests with the given HTTP method and rejects others
// with 405.
func Method(method string) Filter[struct{}, *reject.Error] {
	return func(ctx context.Context) Outcome[struct{}, *reject.Error] {
		rt, ok := route.From(ctx)
		if !ok || rt.Method() != method {
			return Rejected[struct{}](reject.MethodNotAllowed())
		}
		return Extracted[struct{}, *reject.Error](struct{}{})
	}
}

// Param extracts a path wildcard. A missing route or wildcard yields "".
func Param(name string) Filter[string, reject.Never] {
	return func(ctx context.Context) Outcome[string, reject.Never] {
		rt, ok := route.From(ctx)
		if !ok {
			return Extracted[string, reject.Never]("")
		}
		return Extracted[string, reject.Never](rt.Param(name))
	}
}

// Query extracts a URL query parameter. A missing route or parameter
// yields "".
func Query(name string) Filter[string, reject.Never] {
	return func(ctx context.Context) Outcome[string, reject.Never] {
		rt, ok := route.From(ctx)
		if !ok {
			return Extracted[string, reject.Never]("")
		}
		return Extracted[string, reject.Never](rt.Query(name))
	}
}

// Body reads the whole request body, rejecting with 413 when it exceeds
// limit bytes. A limit <= 0 disables the check.
func Body(limit int64) Filter[[]byte, *reject.Error] {
	return func(ctx context.Context) Outcome[[]byte, *reject.Error] {
		rt, ok := route.From(ctx)
		if !ok {
			return Rejected[[]byte](reject.Internal(fmt.Errorf("filter.Body: no route in context")))
		}
		r := rt.Body()
		if limit > 0 {
			r = io.LimitReader(r, limit+1)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Cancelled[[]byte, *reject.Error](ctxErr)
			}
			return Rejected[[]byte](reject.BadRequest(fmt.Errorf("filter.Body: %w", err)))
		}
		if limit > 0 && int64(len(data)) > limit {
			return Rejected[[]byte](reject.PayloadTooLarge())
		}
		return Extracted[[]byte, *reject.Error](data)
	}
}
