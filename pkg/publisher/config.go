package publisher

import (
	"errors"
	"time"

	"github.com/ava-labs/event-publisher/pkg/queue"
)

const (
	DefaultStartupDelay    = 15 * time.Second
	DefaultMonitorInterval = 15 * time.Second
	MinMonitorInterval     = 5 * time.Second
	DefaultReadyWait       = time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	Name          string
	QueueCapacity int

	// StartupDelay is the grace period before the first monitor check.
	StartupDelay time.Duration
	// MonitorInterval is raised to MinMonitorInterval when lower.
	MonitorInterval time.Duration
	// ReadyWait bounds each wait for session readiness in the loop.
	ReadyWait time.Duration
	// ShutdownTimeout bounds how long Stop waits for each background task.
	ShutdownTimeout time.Duration
}

// WithDefaults returns a copy of the config with zero fields filled in and
// the monitor floor applied.
func (c Config) WithDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = queue.DefaultCapacity
	}
	if c.StartupDelay <= 0 {
		c.StartupDelay = DefaultStartupDelay
	}
	if c.MonitorInterval == 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if c.MonitorInterval < MinMonitorInterval {
		c.MonitorInterval = MinMonitorInterval
	}
	if c.ReadyWait <= 0 {
		c.ReadyWait = DefaultReadyWait
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("publisher name must not be empty")
	}
	return nil
}
