package dispatch

import (
	"context"
	"sync"
	"time"
)

// Run spawns the configured number of worker loops and blocks until ctx is
// cancelled and every loop has drained. Cancellation stops claiming
// immediately; tasks already claimed are still routed and reported, with the
// reports bounded by DrainTimeout so shutdown cannot hang on a dead engine.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.workerLoop(ctx)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) workerLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		tasks, err := d.ClaimBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("poll failed", "worker_id", d.opts.WorkerID, "error", err)
			if !d.pause(ctx, d.pollBackoff()) {
				return
			}
			continue
		}
		if len(tasks) == 0 {
			if d.opts.PollInterval > 0 && !d.pause(ctx, d.opts.PollInterval) {
				return
			}
			continue
		}

		// Reports outlive cancellation so claimed work is not abandoned
		// mid-lease on shutdown.
		reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.DrainTimeout)
		for _, task := range tasks {
			if err := d.Dispatch(ctx, reportCtx, task); err != nil {
				d.logger.Warn("report dropped", "task_id", task.ID, "error", err)
			}
		}
		cancel()
	}
}

// pause waits for dur or cancellation, reporting whether the loop should
// keep running.
func (d *Dispatcher) pause(ctx context.Context, dur time.Duration) bool {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) pollBackoff() time.Duration {
	if d.opts.PollInterval > 0 {
		return d.opts.PollInterval
	}
	return time.Second
}
