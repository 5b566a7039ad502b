package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// globalFlags are shared by every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    "env-file",
			Usage:   "Optional .env file loaded before site configs are read",
			EnvVars: []string{"ENV_FILE"},
		},
		&cli.StringFlag{
			Name:    "config-dir",
			Aliases: []string{"c"},
			Usage:   "Directory holding publisher.yaml, secure.yaml and site/*.yaml",
			EnvVars: []string{"PUBLISHER_CONFIG_DIR"},
			Value:   "etc",
		},
	}
}

// runFlags returns the flags of the run command.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "ingest-addr",
			Usage:   "Address the ingest API listens on",
			EnvVars: []string{"INGEST_ADDR"},
			Value:   ":8080",
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.DurationFlag{
			Name:    "shutdown-timeout",
			Usage:   "Time allowed for the HTTP servers to drain on shutdown",
			EnvVars: []string{"SHUTDOWN_TIMEOUT"},
			Value:   5 * time.Second,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	}
}
