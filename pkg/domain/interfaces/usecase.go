package interfaces

import (
	"context"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
	"github.com/WaffleHacks/autodeploy/pkg/domain/types"
)

// WebhookUseCase gates, synchronizes and enqueues webhook events
type WebhookUseCase interface {
	// HandleEvent processes a verified and parsed event. It returns the enqueued job, or nil
	// when the event was only acknowledged.
	HandleEvent(ctx context.Context, event *model.WebhookEvent) (*model.DeploymentJob, error)

	// GetJob returns the record of a job, or nil when unknown
	GetJob(ctx context.Context, id types.JobID) (*model.JobRecord, error)
}

// DeployUseCase runs the manifest of a synced mirror
type DeployUseCase interface {
	// Deploy executes every action of the job's manifest in order and stops at the first failure
	Deploy(ctx context.Context, job *model.DeploymentJob) (model.DeployResult, error)
}
