package queue

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

// Queue is an unbounded FIFO of deployment jobs shared by the gateway and the workers
type Queue struct {
	mu     sync.Mutex
	jobs   []*model.DeploymentJob
	closed bool

	// notify holds at most one pending wakeup
	notify chan struct{}
	done   chan struct{}
}

// New creates an empty Queue
func New() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends job without blocking. It fails with model.ErrQueueClosed after Close.
func (q *Queue) Push(job *model.DeploymentJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return goerr.Wrap(model.ErrQueueClosed, "failed to push job", goerr.V("job_id", job.ID))
	}

	q.jobs = append(q.jobs, job)
	q.wake()
	return nil
}

// Pop blocks until a job is available, the queue is closed and drained, or ctx is done.
// ok is false in the latter two cases.
func (q *Queue) Pop(ctx context.Context) (*model.DeploymentJob, bool) {
	for {
		if job, ok, closed := q.take(); ok || closed {
			return job, ok
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (q *Queue) take() (job *model.DeploymentJob, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false, q.closed
	}

	job = q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]

	// pass the wakeup on to another waiting worker
	if len(q.jobs) > 0 {
		q.wake()
	}
	return job, true, false
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Close stops accepting jobs. Jobs already queued are still handed out by Pop.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len returns the number of jobs waiting
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
