package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
	"github.com/WaffleHacks/autodeploy/pkg/domain/types"
)

const jobCollection = "jobs"

// Client stores job records in a Firestore collection
type Client struct {
	client *firestore.Client
}

// New connects to the Firestore database. An empty databaseID selects the default database.
func New(ctx context.Context, projectID, databaseID string, opts ...option.ClientOption) (*Client, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	opts = append(opts, option.WithUserAgent("autodeploy/"+types.Version))
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID),
		)
	}

	return &Client{client: client}, nil
}

// Close releases the underlying connection
func (c *Client) Close() error {
	return c.client.Close()
}

// PutJob writes the whole record under its ID
func (c *Client) PutJob(ctx context.Context, record *model.JobRecord) error {
	if _, err := c.client.Collection(jobCollection).Doc(record.ID.String()).Set(ctx, record); err != nil {
		return goerr.Wrap(err, "failed to put job", goerr.V("job_id", record.ID))
	}
	return nil
}

// GetJob returns nil when no document exists for id
func (c *Client) GetJob(ctx context.Context, id types.JobID) (*model.JobRecord, error) {
	doc, err := c.client.Collection(jobCollection).Doc(id.String()).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get job", goerr.V("job_id", id))
	}

	var record model.JobRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, goerr.Wrap(err, "failed to decode job", goerr.V("job_id", id))
	}
	return &record, nil
}
