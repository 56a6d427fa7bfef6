package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"AirView/pkg/logger"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	BackendClickHouse = "clickhouse"
	BackendKafka      = "kafka"
	BackendMemory     = "memory"
	BackendRedis      = "redis"

	CacheMemory  = "memory"
	CacheRedis   = "redis"
	CacheLayered = "layered"
)

type Config struct {
	Environment string        `yaml:"environment" validate:"required"`
	Logging     logger.Config `yaml:"logging"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		CORS            bool          `yaml:"cors" default:"true"`
		RateLimit       struct {
			Capacity      float64       `yaml:"capacity" default:"20"`
			RefillPerSec  float64       `yaml:"refill_per_sec" default:"5"`
			MaxKeys       int           `yaml:"max_keys" default:"10000" validate:"gt=0"`
			PruneInterval time.Duration `yaml:"prune_interval" default:"1m" validate:"gt=0"`
			IdleTimeout   time.Duration `yaml:"idle_timeout" default:"10m"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		Exporter    string  `yaml:"exporter" default:"otlp-http" validate:"oneof=otlp-http otlp noop"`
		Endpoint    string  `yaml:"endpoint" default:"localhost:4318"`
		ServiceName string  `yaml:"service_name" default:"airview"`
		SampleRate  float64 `yaml:"sample_rate" default:"1" validate:"gte=0,lte=1"`
	} `yaml:"tracing"`
	// Backend selects where ingested insights go: straight to the store, or
	// through Kafka or the Redis queue first.
	Backend struct {
		Type string `yaml:"type" default:"clickhouse" validate:"oneof=clickhouse kafka redis memory"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"airview.insights"`
		LogTopic     string   `yaml:"log_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"airview-insights"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"10000"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"airview"`
		Table            string        `yaml:"table" default:"insights"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"1h"`
	} `yaml:"clickhouse"`
	Cache struct {
		Type          string        `yaml:"type" default:"memory" validate:"oneof=memory redis layered"`
		TTL           time.Duration `yaml:"ttl" default:"1h"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"1000"`
		MemoryCleanup time.Duration `yaml:"memory_cleanup" default:"1m" validate:"gt=0"`
		Redis         struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size" default:"10"`
			Prefix   string `yaml:"prefix" default:"airview"`
		} `yaml:"redis"`

		// EvictOnWrite drops cached query results after writes instead of
		// letting them age out by TTL.
		EvictOnWrite bool `yaml:"evict_on_write"`
	} `yaml:"cache"`
	// Queue is the Redis work queue used by backend "redis". It connects
	// with the cache.redis settings.
	Queue struct {
		KeyPrefix string `yaml:"key_prefix" default:"airview:queue"`
		Consumer  struct {
			Enabled    bool          `yaml:"enabled" default:"true"`
			Workers    int           `yaml:"workers" default:"2" validate:"gt=0"`
			RetryLimit int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		} `yaml:"consumer"`
	} `yaml:"queue"`
	Retention struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval" default:"24h"`
		MaxAge   time.Duration `yaml:"max_age" default:"2160h"`
	} `yaml:"retention"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, filling defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate checks struct tags plus cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Backend.Type == BackendKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when backend.type is 'kafka'")
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka.consumer is enabled")
	}
	if c.Kafka.Consumer.Enabled && c.Kafka.Consumer.GroupID == "" {
		return fmt.Errorf("kafka.consumer.group_id is required")
	}
	if c.Retention.Enabled && (c.Retention.Interval <= 0 || c.Retention.MaxAge <= 0) {
		return fmt.Errorf("retention.interval and retention.max_age must be positive")
	}
	return nil
}
