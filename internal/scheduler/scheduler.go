// Package scheduler runs batches of independent tasks under a concurrency
// bound, collecting one outcome per task.
package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/zl-scraper/internal/metrics"
)

// ErrNotAdmitted is the outcome error for tasks that never started because
// the context was cancelled or the stop predicate fired.
var ErrNotAdmitted = eris.New("scheduler: task not admitted")

// Outcome is the result of one task. Index is the task's position in the
// input slice.
type Outcome[T, R any] struct {
	Index int
	Task  T
	Value R
	Err   error
}

// Admitted reports whether the task was started.
func (o Outcome[T, R]) Admitted() bool {
	return !errors.Is(o.Err, ErrNotAdmitted)
}

// Options tune a scheduler run.
type Options[T, R any] struct {
	// Limit is the maximum number of tasks in flight. Values < 1 mean 1.
	Limit int
	// Stage labels the active task gauge.
	Stage string
	// Stop is checked before each admission. Once it reports true no
	// further tasks are started.
	Stop func() bool
	// OnOutcome is called once per admitted task as it finishes. Calls are
	// serialized.
	OnOutcome func(Outcome[T, R])
}

// Run executes fn for every task with at most limit in flight.
func Run[T, R any](ctx context.Context, tasks []T, limit int, fn func(context.Context, T) (R, error)) []Outcome[T, R] {
	return RunWith(ctx, tasks, Options[T, R]{Limit: limit}, fn)
}

// RunWith executes fn for every task according to opts and returns exactly
// len(tasks) outcomes in input order. Admission stops when ctx is done or
// opts.Stop reports true; tasks already started run to completion on a
// context that is not cancelled with ctx, so their writes are never cut off.
func RunWith[T, R any](ctx context.Context, tasks []T, opts Options[T, R], fn func(context.Context, T) (R, error)) []Outcome[T, R] {
	limit := opts.Limit
	if limit < 1 {
		limit = 1
	}
	stage := opts.Stage
	if stage == "" {
		stage = "default"
	}

	out := make([]Outcome[T, R], len(tasks))
	for i, task := range tasks {
		out[i] = Outcome[T, R]{Index: i, Task: task, Err: ErrNotAdmitted}
	}

	stopped := func() bool {
		return ctx.Err() != nil || (opts.Stop != nil && opts.Stop())
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		sem     = semaphore.NewWeighted(int64(limit))
		taskCtx = context.WithoutCancel(ctx)
	)

	for i, task := range tasks {
		if stopped() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		// The slot may have been granted after a stop condition appeared.
		if stopped() {
			sem.Release(1)
			break
		}

		g.Go(func() error {
			defer sem.Release(1)
			metrics.TaskStarted(stage)
			defer metrics.TaskFinished(stage)

			val, err := fn(taskCtx, task)
			o := Outcome[T, R]{Index: i, Task: task, Value: val, Err: err}

			mu.Lock()
			defer mu.Unlock()
			out[i] = o
			if opts.OnOutcome != nil {
				opts.OnOutcome(o)
			}
			return nil
		})
	}

	_ = g.Wait()
	return out
}
