package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, BackendClickHouse, c.Backend.Type)
	assert.Equal(t, CacheMemory, c.Cache.Type)
	assert.Equal(t, time.Hour, c.Cache.TTL)
	assert.Equal(t, "insights", c.ClickHouse.Table)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, 90*24*time.Hour, c.Retention.MaxAge)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
	assert.Equal(t, "airview:queue", c.Queue.KeyPrefix)
	assert.True(t, c.Queue.Consumer.Enabled)
	assert.Equal(t, 3, c.Queue.Consumer.RetryLimit)
	assert.True(t, c.Server.CORS)
	assert.Equal(t, 10000, c.Server.RateLimit.MaxKeys)
	assert.Equal(t, time.Minute, c.Server.RateLimit.PruneInterval)
	assert.Equal(t, 10*time.Minute, c.Server.RateLimit.IdleTimeout)
	assert.Equal(t, time.Hour, c.ClickHouse.ConnMaxLifetime)
	assert.Equal(t, time.Minute, c.Cache.MemoryCleanup)
	assert.False(t, c.Cache.EvictOnWrite)
}

func TestParseHardeningKnobs(t *testing.T) {
	raw := `
environment: test
server:
  cors: false
  rate_limit:
    max_keys: 50
    prune_interval: 5s
cache:
  evict_on_write: true
`
	c, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.False(t, c.Server.CORS)
	assert.Equal(t, 50, c.Server.RateLimit.MaxKeys)
	assert.Equal(t, 5*time.Second, c.Server.RateLimit.PruneInterval)
	assert.True(t, c.Cache.EvictOnWrite)

	_, err = Parse([]byte("environment: test\nserver:\n  rate_limit:\n    max_keys: 0\n"))
	assert.Error(t, err)
}

func TestParseRedisBackend(t *testing.T) {
	c, err := Parse([]byte("environment: test\nbackend:\n  type: redis\nqueue:\n  consumer:\n    workers: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, c.Backend.Type)
	assert.Equal(t, 4, c.Queue.Consumer.Workers)
}

func TestParseOverridesDefaults(t *testing.T) {
	raw := `
environment: prod
backend:
  type: kafka
kafka:
  brokers: [k1:9092, k2:9092]
  topic: insights.v2
cache:
  type: layered
  ttl: 15m
retention:
  enabled: true
  interval: 1h
  max_age: 720h
`
	c, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, BackendKafka, c.Backend.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "insights.v2", c.Kafka.Topic)
	assert.Equal(t, CacheLayered, c.Cache.Type)
	assert.Equal(t, 15*time.Minute, c.Cache.TTL)
	assert.True(t, c.Retention.Enabled)
	assert.Equal(t, 30*24*time.Hour, c.Retention.MaxAge)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing environment":   "backend:\n  type: memory\n",
		"unknown backend":       "environment: x\nbackend:\n  type: mongo\n",
		"kafka without brokers": "environment: x\nbackend:\n  type: kafka\n",
		"unknown cache":         "environment: x\ncache:\n  type: disk\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	env := map[string]string{
		"BACKEND":         "memory",
		"KAFKA_BROKERS":   "a:1,b:2",
		"CLICKHOUSE_HOST": "ch.internal",
		"HTTP_PORT":       "9090",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, BackendMemory, c.Backend.Type)
	assert.Equal(t, []string{"a:1", "b:2"}, c.Kafka.Brokers)
	assert.Equal(t, "ch.internal", c.ClickHouse.Host)
	assert.Equal(t, 9090, c.Server.Port)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: dev\nbackend:\n  type: memory\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dev", c.Environment)
	assert.Equal(t, BackendMemory, c.Backend.Type)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
