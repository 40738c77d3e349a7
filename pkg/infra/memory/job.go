package memory

import (
	"context"
	"sync"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
	"github.com/WaffleHacks/autodeploy/pkg/domain/types"
)

// DefaultCapacity is the number of job records kept when WithCapacity is not given
const DefaultCapacity = 1000

// JobRepository keeps the most recent job records in process memory. Records are
// lost on restart and the oldest ones are evicted once capacity is reached.
type JobRepository struct {
	mu       sync.RWMutex
	capacity int
	jobs     map[types.JobID]model.JobRecord
	order    []types.JobID
}

// Option is a functional option for JobRepository
type Option func(*JobRepository)

// WithCapacity sets how many records are kept. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(r *JobRepository) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// NewJobRepository creates an empty JobRepository
func NewJobRepository(opts ...Option) *JobRepository {
	r := &JobRepository{
		capacity: DefaultCapacity,
		jobs:     map[types.JobID]model.JobRecord{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PutJob creates or replaces the record with the same ID. Replacing keeps the record's age.
func (r *JobRepository) PutJob(ctx context.Context, record *model.JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[record.ID]; !ok {
		r.order = append(r.order, record.ID)
		for len(r.order) > r.capacity {
			delete(r.jobs, r.order[0])
			r.order = append(r.order[:0], r.order[1:]...)
		}
	}
	r.jobs[record.ID] = *record
	return nil
}

// GetJob returns a copy of the record, or nil if it does not exist
func (r *JobRepository) GetJob(ctx context.Context, id types.JobID) (*model.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Len returns the number of records held
func (r *JobRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
