package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/snapwatch/snapwatch/internal/browser"
	"github.com/snapwatch/snapwatch/internal/snaperr"
)

// captureTimeout bounds one job end-to-end, cooperatively via context.
const captureTimeout = 30 * time.Second

// maxSessionFailures is how many consecutive tab/session failures a
// single worker tolerates before it marks the shared browser dead and
// stops pulling jobs.
const maxSessionFailures = 3

// Result pairs a planned job with its outcome, for streaming back to
// the driver.
type Result struct {
	Job     Job
	Outcome Outcome
}

// queue is a mutex-guarded LIFO stack — deliberately LIFO (not FIFO) to
// match the original worker pool's Vec::pop-based job queue exactly.
type queue struct {
	mu   sync.Mutex
	jobs []Job
}

func newQueue(jobs []Job) *queue {
	return &queue{jobs: append([]Job(nil), jobs...)}
}

func (q *queue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	n := len(q.jobs) - 1
	job := q.jobs[n]
	q.jobs = q.jobs[:n]
	return job, true
}

// RunPool launches parallel workers, each pulling from a shared LIFO job
// queue, and streams results back over the returned channel. The
// channel is closed once every worker has finished. RunPool never kills
// ctrl itself; releasing the browser is left to the caller, and killing
// it before the channel is closed fails the jobs still in flight.
func RunPool(ctx context.Context, ctrl *browser.Controller, jobs []Job, parallel int, opts Options, log *zap.Logger) <-chan Result {
	if parallel < 1 {
		parallel = 1
	}
	capacity := parallel * 2
	if capacity < 2 {
		capacity = 2
	}

	q := newQueue(jobs)
	results := make(chan Result, capacity)
	chromeDead := &atomic.Bool{}

	var wg sync.WaitGroup
	wg.Add(parallel)
	for w := 0; w < parallel; w++ {
		go func(workerID int) {
			defer wg.Done()
			runWorker(ctx, workerID, ctrl, q, results, chromeDead, opts, log)
		}(w)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// drainDead emits a BrowserCrashed outcome for every job remaining in
// the shared queue, so the result channel always yields exactly one
// outcome per planned job even after the browser is declared dead.
func drainDead(q *queue, results chan<- Result) {
	for {
		job, ok := q.pop()
		if !ok {
			return
		}
		results <- Result{Job: job, Outcome: Outcome{Err: snaperr.BrowserCrashedError("pool", fmt.Errorf("Chrome process crashed"))}}
	}
}

func runWorker(ctx context.Context, id int, ctrl *browser.Controller, q *queue, results chan<- Result, chromeDead *atomic.Bool, opts Options, log *zap.Logger) {
	consecutiveFailures := 0
	for {
		if chromeDead.Load() {
			drainDead(q, results)
			return
		}
		job, ok := q.pop()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		tab, err := ctrl.CreateTab(ctx)
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures >= maxSessionFailures {
				chromeDead.Store(true)
				log.Error("worker marking browser dead after repeated session failures", zap.Int("worker", id), zap.Error(err))
			}
			results <- Result{Job: job, Outcome: Outcome{Err: snaperr.BrowserCrashedError("create_tab", err)}}
			if chromeDead.Load() {
				drainDead(q, results)
				return
			}
			continue
		}
		consecutiveFailures = 0

		if err := tab.Transport.EnableDomains(ctx, "Page", "Network", "Runtime"); err != nil {
			_ = ctrl.CloseTab(ctx, tab)
			results <- Result{Job: job, Outcome: Outcome{Err: snaperr.ProtocolError("enable_domains", err)}}
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, captureTimeout)
		outcome := Run(cctx, tab, job, opts)
		if cctx.Err() == context.DeadlineExceeded {
			outcome = Outcome{Timings: outcome.Timings, Err: snaperr.CaptureTimeoutError(job.SnapshotID(), fmt.Errorf("Capture timed out after %s", captureTimeout))}
		}
		cancel()

		_ = ctrl.CloseTab(ctx, tab)
		results <- Result{Job: job, Outcome: outcome}
	}
}
