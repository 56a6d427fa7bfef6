package di

import (
	"runtime"
	"testing"
	"time"

	"AirView/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
environment: test
logging:
  output: stdout
backend:
  type: memory
cache:
  type: memory
  memory_cleanup: 10ms
tracing:
  enabled: true
  exporter: noop
`))
	require.NoError(t, err)
	return cfg
}

func settled(t *testing.T, baseline int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond, "background goroutines outlived cleanup")
}

func TestInitializeAppCleanupStopsClients(t *testing.T) {
	baseline := runtime.NumGoroutine()

	app, cleanup, err := InitializeApp(memoryConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Greater(t, runtime.NumGoroutine(), baseline)

	cleanup()
	settled(t, baseline)
}

func TestInitializeAppUnwindsOnLateProviderError(t *testing.T) {
	cfg := memoryConfig(t)
	// A consumer without brokers fails after tracing and the cache are up.
	cfg.Kafka.Consumer.Enabled = true
	cfg.Kafka.Brokers = nil

	baseline := runtime.NumGoroutine()
	app, cleanup, err := InitializeApp(cfg)
	require.Error(t, err)
	assert.Nil(t, app)
	assert.Nil(t, cleanup)

	settled(t, baseline)
}
