package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes fn in a goroutine bounded by timeout. Panics are recovered
// and errors are logged; neither reaches the caller.
func SafeGo(parentCtx context.Context, logger *logrus.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = logrus.New()
	}
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		if err := run(ctx, fn); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}

// TaskError ties a Batch failure to the index of the item that produced it
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Batch processes items with at most workers concurrent calls to fn, each
// bounded by timeout. It blocks until every item is handled or ctx is done
// and returns the failures in item order. Items not started before ctx is
// cancelled are reported with ctx.Err().
func Batch[T any](ctx context.Context, logger *logrus.Logger, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if logger == nil {
		logger = logrus.New()
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]error, len(items))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case <-ctx.Done():
			results[i] = ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()

			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			results[i] = run(taskCtx, func(ctx context.Context) error {
				return fn(ctx, item)
			})
		}(i, item)
	}
	wg.Wait()

	var errs []error
	for i, err := range results {
		if err == nil {
			continue
		}
		errs = append(errs, &TaskError{Index: i, Err: err})
	}
	if len(errs) > 0 {
		logger.WithFields(logrus.Fields{
			"task":   taskName,
			"failed": len(errs),
			"total":  len(items),
		}).Warn("batch finished with failures")
	}
	return errs
}

// run calls fn, converting a panic into an error
func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}
