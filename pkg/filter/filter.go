// Package filter is a small composable request pipeline. A Filter runs
// against the Route installed in its context and either extracts a value,
// rejects the request, or reports that the invocation was cancelled.
package filter

import (
	"context"

	"github.com/warpdrive/filterlog/pkg/reject"
)

type state uint8

const (
	extracted state = iota
	rejected
	cancelled
)

// Outcome is the result of one filter invocation. Exactly one of the three
// states is set.
type Outcome[T any, E reject.Rejection] struct {
	value     T
	rejection E
	err       error
	state     state
}

// Extracted returns a successful outcome.
func Extracted[T any, E reject.Rejection](v T) Outcome[T, E] {
	return Outcome[T, E]{value: v, state: extracted}
}

// Rejected returns a rejected outcome.
func Rejected[T any, E reject.Rejection](e E) Outcome[T, E] {
	return Outcome[T, E]{rejection: e, state: rejected}
}

// Cancelled returns an outcome for an invocation abandoned before it
// completed. err is usually ctx.Err().
func Cancelled[T any, E reject.Rejection](err error) Outcome[T, E] {
	if err == nil {
		err = context.Canceled
	}
	return Outcome[T, E]{err: err, state: cancelled}
}

func (o Outcome[T, E]) Value() (T, bool)     { return o.value, o.state == extracted }
func (o Outcome[T, E]) Rejection() (E, bool) { return o.rejection, o.state == rejected }
func (o Outcome[T, E]) IsCancelled() bool    { return o.state == cancelled }

// Err returns the cancellation cause, or nil if the invocation completed.
func (o Outcome[T, E]) Err() error {
	if o.state != cancelled {
		return nil
	}
	return o.err
}

// Filter is one stage of the pipeline.
type Filter[T any, E reject.Rejection] func(ctx context.Context) Outcome[T, E]
