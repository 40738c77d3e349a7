package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Deploy holds mirror and worker configuration
type Deploy struct {
	Repositories string
	Workers      int64
	RulesPath    string
}

// Flags returns CLI flags for deployment configuration
func (c *Deploy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repositories",
			Usage:       "Directory holding the repository mirrors",
			Value:       "./repositories",
			Destination: &c.Repositories,
			Sources:     cli.EnvVars("AUTODEPLOY_REPOSITORIES"),
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "Number of deployment workers",
			Value:       2,
			Destination: &c.Workers,
			Sources:     cli.EnvVars("AUTODEPLOY_WORKERS"),
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Policy rule file (TOML). When left at the default, a missing file allows every repository",
			Value:       "config.toml",
			Destination: &c.RulesPath,
			Sources:     cli.EnvVars("AUTODEPLOY_CONFIG"),
		},
	}
}

// Validate checks values the flag parser cannot
func (c *Deploy) Validate() error {
	if c.Workers < 1 {
		return goerr.New("workers must be at least 1", goerr.V("workers", c.Workers))
	}
	if c.Repositories == "" {
		return goerr.New("repositories directory must not be empty")
	}
	return nil
}

func (c Deploy) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("repositories", c.Repositories),
		slog.Int64("workers", c.Workers),
		slog.String("config", c.RulesPath),
	)
}
