package interfaces

import (
	"context"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
	"github.com/WaffleHacks/autodeploy/pkg/domain/types"
)

// GitSyncer brings a mirror up to date with its remote
type GitSyncer interface {
	Sync(ctx context.Context, req *model.SyncRequest) (*model.SyncResult, error)
}

// JobQueue carries deployment jobs from the gateway to the workers
type JobQueue interface {
	// Push never blocks
	Push(job *model.DeploymentJob) error
	// Pop blocks until a job is available. ok is false once the queue is closed and drained.
	Pop(ctx context.Context) (job *model.DeploymentJob, ok bool)
	Close()
}

// JobRepository stores job records
type JobRepository interface {
	PutJob(ctx context.Context, record *model.JobRecord) error
	// GetJob returns nil, nil when the job does not exist
	GetJob(ctx context.Context, id types.JobID) (*model.JobRecord, error)
}

// ManifestLoader reads the deployment manifest from a mirror
type ManifestLoader interface {
	Load(ctx context.Context, mirrorPath string) (*model.DeploymentManifest, error)
}

// Notifier publishes finished jobs
type Notifier interface {
	NotifyJob(ctx context.Context, record *model.JobRecord) error
}
