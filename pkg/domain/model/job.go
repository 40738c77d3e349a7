package model

import (
	"time"

	"github.com/WaffleHacks/autodeploy/pkg/domain/types"
)

// DeploymentJob is produced after a successful sync and consumed by exactly one worker
type DeploymentJob struct {
	ID         types.JobID
	Repository string
	MirrorPath string
	DeliveryID string
	CreatedAt  time.Time
}

// JobStatus is the lifecycle state of a deployment job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord is the observable state of a deployment job
type JobRecord struct {
	ID         types.JobID `json:"id" firestore:"id"`
	Repository string      `json:"repository" firestore:"repository"`
	MirrorPath string      `json:"mirror_path" firestore:"mirror_path"`
	DeliveryID string      `json:"delivery_id,omitempty" firestore:"delivery_id"`
	Status     JobStatus   `json:"status" firestore:"status"`
	Succeeded  int         `json:"succeeded" firestore:"succeeded"`
	Total      int         `json:"total" firestore:"total"`
	Error      string      `json:"error,omitempty" firestore:"error"`
	CreatedAt  time.Time   `json:"created_at" firestore:"created_at"`
	StartedAt  time.Time   `json:"started_at,omitzero" firestore:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitzero" firestore:"finished_at"`
}

// NewJobRecord returns a queued record for job
func NewJobRecord(job *DeploymentJob) *JobRecord {
	return &JobRecord{
		ID:         job.ID,
		Repository: job.Repository,
		MirrorPath: job.MirrorPath,
		DeliveryID: job.DeliveryID,
		Status:     JobStatusQueued,
		CreatedAt:  job.CreatedAt,
	}
}

// DeployResult counts the actions of one deployment
type DeployResult struct {
	Succeeded int
	Total     int
}

// OK reports whether every declared action ran and succeeded
func (r DeployResult) OK() bool {
	return r.Succeeded == r.Total
}
