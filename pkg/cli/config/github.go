package config

import (
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// GitHub holds the webhook signing configuration
type GitHub struct {
	WebhookSecret string
}

// Flags returns CLI flags for GitHub configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-webhook-secret",
			Usage:       "Secret shared with GitHub to sign webhook deliveries",
			Required:    true,
			Destination: &c.WebhookSecret,
			Sources:     cli.EnvVars("AUTODEPLOY_GITHUB_WEBHOOK_SECRET"),
		},
	}
}

// Validate rejects secrets that would make every signature trivially forgeable
func (c *GitHub) Validate() error {
	if strings.TrimSpace(c.WebhookSecret) == "" {
		return goerr.New("github webhook secret must not be blank")
	}
	if c.WebhookSecret != strings.TrimSpace(c.WebhookSecret) {
		return goerr.New("github webhook secret has leading or trailing whitespace")
	}
	return nil
}

// LogValue reports whether a secret is set without revealing it
func (c GitHub) LogValue() slog.Value {
	return slog.GroupValue(slog.Bool("webhook_secret_set", c.WebhookSecret != ""))
}
