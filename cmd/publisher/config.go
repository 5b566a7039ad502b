package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// Config holds the process settings for the run command.
type Config struct {
	Verbose   bool
	LogLevel  string
	ConfigDir string

	IngestAddr      string
	ShutdownTimeout time.Duration

	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	cfg := &Config{
		Verbose:         c.Bool("verbose"),
		LogLevel:        c.String("log-level"),
		ConfigDir:       c.String("config-dir"),
		IngestAddr:      c.String("ingest-addr"),
		ShutdownTimeout: c.Duration("shutdown-timeout"),
		MetricsHost:     c.String("metrics-host"),
		MetricsPort:     c.Int("metrics-port"),
		Environment:     c.String("environment"),
		Region:          c.String("region"),
		CloudProvider:   c.String("cloud-provider"),
	}
	if cfg.ConfigDir == "" {
		return nil, errors.New("config-dir must not be empty")
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return nil, fmt.Errorf("metrics-port must be between 0 and 65535, got %d", cfg.MetricsPort)
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, fmt.Errorf("shutdown-timeout must be positive, got %s", cfg.ShutdownTimeout)
	}
	return cfg, nil
}
