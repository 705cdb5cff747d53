package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Status is the terminal state of one job
type Status int

const (
	// StatusQueued means the job never started (only observable mid-run)
	StatusQueued Status = iota
	// StatusCompleted means the job returned nil
	StatusCompleted
	// StatusErrored means the job returned an error or panicked
	StatusErrored
	// StatusSkipped means the job was abandoned before starting because
	// the run was interrupted
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusCompleted:
		return "completed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Job is one unit of work. It must honor ctx cancellation.
type Job func(ctx context.Context) error

// Result records how one job ended
type Result struct {
	Status Status
	Err    error
}

// Outcome summarizes a drained run. Completed+Errored+Skipped always
// equals the number of submitted jobs.
type Outcome struct {
	Results   []Result
	Completed int
	Errored   int
	Skipped   int
	// Peak is the maximum number of jobs observed running at once
	Peak int
}

// Run executes jobs with at most concurrency of them in flight and
// blocks until every job has a terminal status. A single failing or
// panicking job never takes down the run; its slot is released and the
// remaining jobs proceed.
//
// Interruption is cooperative: when ctx is cancelled or interrupted
// returns true, jobs already running finish normally, and jobs not yet
// started are marked Skipped. interrupted may be nil.
func Run(ctx context.Context, concurrency int, interrupted func() bool, jobs []Job) Outcome {
	if concurrency < 1 {
		concurrency = 1
	}
	if interrupted == nil {
		interrupted = func() bool { return false }
	}

	out := Outcome{Results: make([]Result, len(jobs))}
	sem := semaphore.NewWeighted(int64(concurrency))

	var wg sync.WaitGroup
	var running, peak atomic.Int64

	stopped := func() bool {
		return ctx.Err() != nil || interrupted()
	}

	for i, job := range jobs {
		if stopped() {
			// Everything from here on never starts
			for j := i; j < len(jobs); j++ {
				out.Results[j] = Result{Status: StatusSkipped}
			}
			break
		}

		// Acquire with Background: a cancelled ctx should mark the job
		// Skipped, not error the acquire.
		if err := sem.Acquire(context.Background(), 1); err != nil {
			out.Results[i] = Result{Status: StatusErrored, Err: err}
			continue
		}

		// Re-check after a potentially long wait for a slot
		if stopped() {
			sem.Release(1)
			for j := i; j < len(jobs); j++ {
				out.Results[j] = Result{Status: StatusSkipped}
			}
			break
		}

		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer sem.Release(1)

			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			defer running.Add(-1)

			// Each goroutine writes only its own index
			out.Results[i] = runOne(ctx, job)
		}(i, job)
	}

	wg.Wait()

	for _, r := range out.Results {
		switch r.Status {
		case StatusCompleted:
			out.Completed++
		case StatusErrored:
			out.Errored++
		default:
			out.Skipped++
		}
	}
	out.Peak = int(peak.Load())
	return out
}

// runOne executes a single job, converting panics to errors
func runOne(ctx context.Context, job Job) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Status: StatusErrored, Err: fmt.Errorf("job panicked: %v", r)}
		}
	}()

	if err := job(ctx); err != nil {
		return Result{Status: StatusErrored, Err: err}
	}
	return Result{Status: StatusCompleted}
}
