package config

import (
	"github.com/urfave/cli/v3"

	"github.com/WaffleHacks/autodeploy/pkg/domain/interfaces"
	"github.com/WaffleHacks/autodeploy/pkg/infra/slack"
)

// Slack holds notification configuration
type Slack struct {
	WebhookURL string
}

// Flags returns CLI flags for Slack configuration
func (c *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-webhook-url",
			Usage:       "Slack incoming webhook receiving deployment results",
			Destination: &c.WebhookURL,
			Sources:     cli.EnvVars("AUTODEPLOY_SLACK_WEBHOOK_URL"),
		},
	}
}

// Configure returns the notifier, or nil when Slack is not configured
func (c *Slack) Configure() interfaces.Notifier {
	if c.WebhookURL == "" {
		return nil
	}
	return slack.New(c.WebhookURL)
}
