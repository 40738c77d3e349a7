package usecase

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/WaffleHacks/autodeploy/pkg/domain/interfaces"
	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
	"github.com/WaffleHacks/autodeploy/pkg/utils/async"
	"github.com/WaffleHacks/autodeploy/pkg/utils/errutil"
	"github.com/WaffleHacks/autodeploy/pkg/utils/keylock"
)

const defaultWorkers = 2

// WorkerPool drains the job queue with a fixed number of workers
type WorkerPool struct {
	queue    interfaces.JobQueue
	deployer interfaces.DeployUseCase
	jobs     interfaces.JobRepository
	locks    *keylock.Map
	notifier interfaces.Notifier

	workers int
	now     func() time.Time
}

// WorkerOption is a functional option for WorkerPool
type WorkerOption func(*WorkerPool)

// WithWorkers sets the number of workers. Values below one are ignored.
func WithWorkers(n int) WorkerOption {
	return func(p *WorkerPool) {
		if n >= 1 {
			p.workers = n
		}
	}
}

// WithNotifier publishes every finished job
func WithNotifier(n interfaces.Notifier) WorkerOption {
	return func(p *WorkerPool) {
		p.notifier = n
	}
}

// WithWorkerClock replaces the clock used for job timestamps
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(p *WorkerPool) {
		p.now = now
	}
}

// NewWorkerPool creates a WorkerPool. locks must be the map shared with the webhook use case.
func NewWorkerPool(queue interfaces.JobQueue, deployer interfaces.DeployUseCase, jobs interfaces.JobRepository, locks *keylock.Map, opts ...WorkerOption) *WorkerPool {
	p := &WorkerPool{
		queue:    queue,
		deployer: deployer,
		jobs:     jobs,
		locks:    locks,
		workers:  defaultWorkers,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts the workers and blocks until the queue is closed and drained, or ctx is canceled
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for id := range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, id)
		}()
	}
	wg.Wait()
}

func (p *WorkerPool) work(ctx context.Context, id int) {
	logger := ctxlog.From(ctx).With("worker_id", id)
	logger.Info("Started worker")

	for {
		job, ok := p.queue.Pop(ctx)
		if !ok {
			logger.Info("Stopped worker")
			return
		}

		jobLogger := logger.With("job_id", job.ID, "repository", job.Repository)
		p.process(ctxlog.With(ctx, jobLogger), job)
	}
}

func (p *WorkerPool) process(ctx context.Context, job *model.DeploymentJob) {
	logger := ctxlog.From(ctx)

	record := model.NewJobRecord(job)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in worker", "recover", r, "stack", string(debug.Stack()))
			err := goerr.New("panic while deploying", goerr.V("recover", fmt.Sprint(r)))
			p.finish(ctx, record, model.DeployResult{Total: record.Total, Succeeded: record.Succeeded}, err)
		}
	}()

	unlock := p.locks.Lock(job.Repository)
	defer unlock()

	record.Status = model.JobStatusRunning
	record.StartedAt = p.now()
	p.save(ctx, record)

	logger.Info("Beginning deploy")
	result, err := p.deployer.Deploy(ctx, job)
	p.finish(ctx, record, result, err)
}

func (p *WorkerPool) finish(ctx context.Context, record *model.JobRecord, result model.DeployResult, err error) {
	logger := ctxlog.From(ctx)

	record.Succeeded = result.Succeeded
	record.Total = result.Total
	record.FinishedAt = p.now()

	if err == nil && result.OK() {
		record.Status = model.JobStatusSucceeded
		logger.Info("Deploy successful", "succeeded", result.Succeeded, "total", result.Total)
	} else {
		record.Status = model.JobStatusFailed
		if err != nil {
			record.Error = err.Error()
			errutil.Handle(ctx, err, "Deploy failed")
		}
		logger.Error("Deploy failed", "succeeded", result.Succeeded, "total", result.Total)
	}

	p.save(ctx, record)

	if p.notifier != nil {
		notified := *record
		async.Dispatch(ctx, func(ctx context.Context) error {
			return p.notifier.NotifyJob(ctx, &notified)
		})
	}
}

func (p *WorkerPool) save(ctx context.Context, record *model.JobRecord) {
	if err := p.jobs.PutJob(ctx, record); err != nil {
		errutil.Handle(ctx, err, "failed to save job record")
	}
}
