package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/iago/market-analysis-back/internal/logging"
)

// Pool runs one goroutine per task. With a positive limit at most that many
// tasks execute at once; Go itself never blocks.
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	active atomic.Int64
	logger *logging.ContextLogger
}

func NewPool(limit int, logger *logging.ContextLogger) *Pool {
	if logger == nil {
		logger = logging.Nop()
	}
	pool := &Pool{logger: logger}
	if limit > 0 {
		pool.sem = semaphore.NewWeighted(int64(limit))
	}
	return pool
}

// Go schedules fn on a new goroutine. A panic in fn is logged and
// contained to that goroutine.
func (p *Pool) Go(ctx context.Context, name string, fn func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if p.sem != nil {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				p.logger.Warn("task not started", "task", name, "error", err)
				return
			}
			defer p.sem.Release(1)
		}

		p.active.Add(1)
		defer p.active.Add(-1)
		defer func() {
			if recovered := recover(); recovered != nil {
				p.logger.Exception(fmt.Errorf("panic: %v", recovered), "task panicked", "task", name)
			}
		}()

		fn(ctx)
	}()
}

// Active returns the number of tasks currently executing.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Wait blocks until every scheduled task has returned or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
