package config

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/WaffleHacks/autodeploy/pkg/domain/interfaces"
	"github.com/WaffleHacks/autodeploy/pkg/infra/firestore"
	"github.com/WaffleHacks/autodeploy/pkg/infra/memory"
)

// Firestore holds job storage configuration
type Firestore struct {
	ProjectID  string
	DatabaseID string
	// MemoryJobs caps the in-memory store used without a project
	MemoryJobs int64
}

// Flags returns CLI flags for Firestore configuration
func (c *Firestore) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Google Cloud project storing job records. Records are kept in memory when empty",
			Destination: &c.ProjectID,
			Sources:     cli.EnvVars("AUTODEPLOY_FIRESTORE_PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore database ID",
			Destination: &c.DatabaseID,
			Sources:     cli.EnvVars("AUTODEPLOY_FIRESTORE_DATABASE_ID"),
		},
		&cli.Int64Flag{
			Name:        "memory-job-history",
			Usage:       "Number of job records kept in memory when Firestore is not configured",
			Value:       memory.DefaultCapacity,
			Destination: &c.MemoryJobs,
			Sources:     cli.EnvVars("AUTODEPLOY_MEMORY_JOB_HISTORY"),
		},
	}
}

// Configure returns the job repository and a function releasing it
func (c *Firestore) Configure(ctx context.Context) (interfaces.JobRepository, func(), error) {
	if c.ProjectID == "" {
		return memory.NewJobRepository(memory.WithCapacity(int(c.MemoryJobs))), func() {}, nil
	}

	client, err := firestore.New(ctx, c.ProjectID, c.DatabaseID)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}
