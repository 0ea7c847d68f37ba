// Package batch implements the shared batch-processing pipeline used by the
// availability, scoring, and pricing stages: bounded-concurrency dispatch,
// per-item retry with classified errors, batch-level redispatch, adaptive
// rate control, and per-batch reconciliation against the store.
package batch

import (
	"context"

	"github.com/sells-group/domain-scout/internal/model"
	"github.com/sells-group/domain-scout/internal/resilience"
)

// Outcome is the structured result of processing one domain. Workers never
// propagate errors past this boundary: a failure is carried as a classified
// StageError alongside a zero value.
type Outcome[T any] struct {
	Domain   string
	Value    T
	Err      *resilience.StageError
	Attempts int
}

// OK reports whether the item completed without error.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// WorkerFunc performs one external round trip for a single domain. The
// dispatcher wraps it with the shared semaphore and the per-item retry loop,
// so implementations should make exactly one attempt per call.
type WorkerFunc[T any] func(ctx context.Context, domain string) (T, error)

// Tally carries the stage-specific buckets a reconciler derives while
// committing a batch. Zero values are fine for stages without a bucket.
type Tally struct {
	Taken    int
	Premium  int
	Standard int
	Filtered int
	Notables []model.Notable
}

// Reconciler turns a batch's outcomes into store mutations. Reconcile must
// commit the whole batch atomically before returning: the dispatcher will
// not start the next batch until it does, so a mid-run interruption loses
// at most one in-flight batch.
type Reconciler[T any] interface {
	Reconcile(ctx context.Context, outcomes []Outcome[T]) (Tally, error)
}

// ReconcilerFunc adapts a function to the Reconciler interface.
type ReconcilerFunc[T any] func(ctx context.Context, outcomes []Outcome[T]) (Tally, error)

func (f ReconcilerFunc[T]) Reconcile(ctx context.Context, outcomes []Outcome[T]) (Tally, error) {
	return f(ctx, outcomes)
}
