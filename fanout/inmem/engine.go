// Package inmem is the default fanout.Engine: a bounded goroutine worker
// pool, same-process. Task input/output are JSON payloads even though no
// real process boundary is crossed, so tasks encode and decode them exactly
// as under the out-of-process adapters (spec §5, testable property #5).
// The TaskRequest and TaskResult themselves are passed as Go values, so the
// returned CacheSnapshot holds the task's live cache values (an int stays
// an int) rather than JSON-decoded copies.
package inmem

import (
	"context"
	"sync"

	"github.com/pypads-go/pypads/fanout"
	"github.com/pypads-go/pypads/telemetry"
)

// Engine runs tasks on a bounded pool of goroutines.
type Engine struct {
	*fanout.Registry
	logger telemetry.Logger
	sem    chan struct{}
}

// New constructs an Engine with the given worker concurrency (0 or
// negative means unbounded).
func New(concurrency int, logger telemetry.Logger) *Engine {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	e := &Engine{Registry: fanout.NewRegistry(), logger: logger}
	if concurrency > 0 {
		e.sem = make(chan struct{}, concurrency)
	}
	return e
}

func (e *Engine) RegisterTask(name string, fn fanout.TaskFunc) error {
	e.Register(name, fn)
	return nil
}

// Dispatch runs req on a pooled goroutine and blocks for its result, which
// carries both the task's output and its accumulated cache. Tracking is
// not re-activated for the task (see fanout.Registry.Execute).
func (e *Engine) Dispatch(ctx context.Context, req fanout.TaskRequest) (fanout.TaskResult, error) {
	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return fanout.TaskResult{}, ctx.Err()
		}
	}

	resultCh := make(chan fanout.TaskResult, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resultCh <- e.Execute(ctx, req, e.logger)
	}()

	select {
	case result := <-resultCh:
		wg.Wait()
		return result, nil
	case <-ctx.Done():
		return fanout.TaskResult{}, ctx.Err()
	}
}

var _ fanout.Engine = (*Engine)(nil)
