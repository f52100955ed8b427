package tui

import (
	"context"
	"sync"
)

type intentJob struct {
	fn   func(context.Context) error
	done chan error
}

// intentQueue runs intents one at a time in the order they were pushed.
// Bubble Tea runs commands on their own goroutines, so ordering is fixed
// at push time inside Update rather than when a command happens to run.
type intentQueue struct {
	mu   sync.Mutex
	jobs []intentJob
	wake chan struct{}
}

func newIntentQueue(ctx context.Context) *intentQueue {
	q := &intentQueue{wake: make(chan struct{}, 1)}
	go q.work(ctx)
	return q
}

func (q *intentQueue) push(fn func(context.Context) error) <-chan error {
	job := intentJob{fn: fn, done: make(chan error, 1)}
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return job.done
}

func (q *intentQueue) next() (intentJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return intentJob{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = intentJob{}
	q.jobs = q.jobs[1:]
	return job, true
}

func (q *intentQueue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
		for {
			job, ok := q.next()
			if !ok {
				break
			}
			job.done <- job.fn(ctx)
		}
	}
}
