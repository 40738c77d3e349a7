package config

import (
	"log/slog"

	"github.com/urfave/cli/v3"
)

// Server holds server configuration
type Server struct {
	Addr string
}

// Flags returns CLI flags for server configuration
func (c *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Server address",
			Value:       "127.0.0.1:8080",
			Destination: &c.Addr,
			Sources:     cli.EnvVars("AUTODEPLOY_ADDR"),
		},
	}
}

func (c Server) LogValue() slog.Value {
	return slog.GroupValue(slog.String("addr", c.Addr))
}
