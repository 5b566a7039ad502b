//go:build e2e

package e2e

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/event-publisher/pkg/config"
)

func getEnvStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.Atoi(v); err == nil && out != 0 {
			return out
		}
	}
	return def
}

// e2eSite returns a site config with short timings suitable for tests.
func e2eSite(t *testing.T, name, broker, exchange, routingKey string) config.Site {
	t.Helper()
	require.NotEmpty(t, name)

	s := config.Site{Name: name}
	s.Broker.Type = broker
	s.Exchange.Name = exchange
	s.Message.RoutingKey = routingKey
	s.Message.DeliveryMode = 2
	s.Monitor.Interval = config.MinMonitorInterval
	s.Monitor.FailureCount = config.DefaultFailureCount
	s.Queue.Capacity = 1024
	s.Publisher.StartupDelay = time.Second
	s.Publisher.ReadyWait = 100 * time.Millisecond
	s.Publisher.ShutdownTimeout = 5 * time.Second
	s.Source.Name = "e2e"
	s.Source.Hostname = "localhost"
	return s
}
