package slack

import (
	"context"
	"fmt"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/WaffleHacks/autodeploy/pkg/domain/model"
)

const (
	colorSucceeded = "good"
	colorFailed    = "danger"
)

// Notifier posts finished jobs to a Slack incoming webhook
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

// Option is a functional option for Notifier
type Option func(*Notifier)

// WithHTTPClient replaces the HTTP client used to reach Slack
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		n.httpClient = client
	}
}

// New creates a Notifier for the incoming webhook URL
func New(webhookURL string, opts ...Option) *Notifier {
	n := &Notifier{
		webhookURL: webhookURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyJob posts a summary of record
func (n *Notifier) NotifyJob(ctx context.Context, record *model.JobRecord) error {
	msg := buildMessage(record)
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, msg); err != nil {
		return goerr.Wrap(err, "failed to post slack message",
			goerr.V("job_id", record.ID),
			goerr.V("repository", record.Repository),
		)
	}
	return nil
}

func buildMessage(record *model.JobRecord) *slack.WebhookMessage {
	color := colorSucceeded
	title := fmt.Sprintf("Deployment of %s succeeded", record.Repository)
	if record.Status != model.JobStatusSucceeded {
		color = colorFailed
		title = fmt.Sprintf("Deployment of %s failed", record.Repository)
	}

	fields := []slack.AttachmentField{
		{Title: "Actions", Value: fmt.Sprintf("%d/%d succeeded", record.Succeeded, record.Total), Short: true},
		{Title: "Job", Value: record.ID.String(), Short: true},
	}
	if record.DeliveryID != "" {
		fields = append(fields, slack.AttachmentField{Title: "Delivery", Value: record.DeliveryID, Short: true})
	}
	if !record.StartedAt.IsZero() && !record.FinishedAt.IsZero() {
		fields = append(fields, slack.AttachmentField{
			Title: "Duration",
			Value: record.FinishedAt.Sub(record.StartedAt).String(),
			Short: true,
		})
	}
	if record.Error != "" {
		fields = append(fields, slack.AttachmentField{Title: "Error", Value: record.Error})
	}

	return &slack.WebhookMessage{
		Text: title,
		Attachments: []slack.Attachment{
			{
				Color:  color,
				Fields: fields,
			},
		},
	}
}
