// Package consensus reconciles answers to the same query from independent providers.
//
// Results are compared structurally through a caller supplied key function that
// normalizes formatting differences. Any disagreement yields an inconsistent outcome
// carrying every provider's answer; there is no majority vote.
package consensus

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Result is one provider's answer: a value or an error.
type Result[T any] struct {
	Provider string
	Value    T
	Err      error
}

// Outcome is the reconciliation of a set of results.
type Outcome[T any] struct {
	// Consistent is true when every provider returned the same normalized result.
	Consistent bool
	// Agreed holds the shared result when Consistent. Its Provider is empty.
	Agreed Result[T]
	// Results holds every provider's result, in input order.
	Results []Result[T]
}

// InconsistentError is returned by Outcome.Unwrap when providers disagree.
type InconsistentError struct {
	Providers []string
	Answers   []string
}

func (e *InconsistentError) Error() string {
	parts := make([]string, len(e.Providers))
	for i := range e.Providers {
		parts[i] = fmt.Sprintf("%s=%s", e.Providers[i], e.Answers[i])
	}
	return "inconsistent provider results: " + strings.Join(parts, ", ")
}

// KeyFunc maps a value to its normalized comparison key.
type KeyFunc[T any] func(T) (string, error)

// Reconcile compares results by key. Two errors agree when their messages match.
// An empty result set is inconsistent.
func Reconcile[T any](results []Result[T], key KeyFunc[T]) Outcome[T] {
	out := Outcome[T]{Results: results}
	if len(results) == 0 {
		return out
	}

	first := resultKey(results[0], key)
	for _, r := range results[1:] {
		if resultKey(r, key) != first {
			return out
		}
	}

	out.Consistent = true
	out.Agreed = Result[T]{Value: results[0].Value, Err: results[0].Err}
	return out
}

// Unwrap returns the agreed value, the agreed provider error, or an *InconsistentError.
func (o Outcome[T]) Unwrap() (T, error) {
	if o.Consistent {
		return o.Agreed.Value, o.Agreed.Err
	}
	var zero T
	e := &InconsistentError{
		Providers: make([]string, len(o.Results)),
		Answers:   make([]string, len(o.Results)),
	}
	for i, r := range o.Results {
		e.Providers[i] = r.Provider
		if r.Err != nil {
			e.Answers[i] = "error(" + r.Err.Error() + ")"
		} else {
			e.Answers[i] = fmt.Sprintf("%v", r.Value)
		}
	}
	return zero, e
}

func resultKey[T any](r Result[T], key KeyFunc[T]) string {
	if r.Err != nil {
		return "err:" + r.Err.Error()
	}
	k, err := key(r.Value)
	if err != nil {
		return "err:normalize:" + err.Error()
	}
	return "ok:" + k
}

// Gather runs call once per provider concurrently and collects every result.
// A failing provider does not cancel the others: its error is part of the answer set.
func Gather[T any](
	ctx context.Context,
	providers []string,
	call func(ctx context.Context, provider string) (T, error),
) []Result[T] {
	results := make([]Result[T], len(providers))
	var g errgroup.Group
	for i, name := range providers {
		g.Go(func() error {
			v, err := call(ctx, name)
			results[i] = Result[T]{Provider: name, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
