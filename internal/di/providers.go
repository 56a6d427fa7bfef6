package di

import (
	"context"
	"fmt"
	"time"

	"AirView/internal/domain/repository"
	"AirView/internal/handler/api"
	internalrepo "AirView/internal/repository"
	"AirView/internal/service/ratelimit"
	"AirView/internal/usecase"
	"AirView/pkg/cache"
	pkgch "AirView/pkg/clickhouse"
	"AirView/pkg/config"
	xhttp "AirView/pkg/http"
	pkgkafka "AirView/pkg/kafka"
	applogger "AirView/pkg/logger"
	"AirView/pkg/metrics"
	"AirView/pkg/queue"
	"AirView/pkg/server"
	"AirView/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// ProvideLogger builds the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&cfg.Logging)
}

// ProvideRegistry creates the Prometheus registry every collector registers on.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegisterer(reg)
}

// ProvideTracing creates the tracer provider. The cleanup flushes pending
// spans.
func ProvideTracing(cfg *config.Config) (*tracing.Provider, func(), error) {
	tp, err := tracing.New(context.Background(), tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, nil, err
	}
	return tp, func() { _ = tp.Shutdown(context.Background()) }, nil
}

// ProvideCache creates the query cache selected by cache.type.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	c, err := newCache(cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

func newCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Cache.Type == config.CacheMemory {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryCleanup(cfg.Cache.MemoryCleanup),
		), nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Cache.Redis.Host),
		cache.WithRedisPort(cfg.Cache.Redis.Port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPool(cfg.Cache.Redis.PoolSize, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	if cfg.Cache.Type == config.CacheLayered {
		return cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
			cache.WithLayeredMemoryTTL(time.Minute),
		), nil
	}
	return rc, nil
}

// ProvideClickHouseClient connects to ClickHouse and creates the insights
// table. It returns nil for the memory backend.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Backend.Type == config.BackendMemory {
		return nil, func() {}, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithConnMaxLifetime(cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.InsightSchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, func() { _ = client.Close() }, nil
}

// ProvideInsightRepository picks the store: memory for backend "memory",
// ClickHouse otherwise (the kafka backend still reads from ClickHouse).
func ProvideInsightRepository(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.InsightRepository {
	if client == nil {
		return internalrepo.NewMemoryInsightRepository()
	}
	table := cfg.ClickHouse.Database + "." + cfg.ClickHouse.Table
	return internalrepo.NewClickHouseInsightRepository(client.DB(), table, l)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are
// configured. The cleanup flushes and closes it.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideInsightQueue creates the Redis work queue for backend "redis", or
// nil otherwise. With the consumer enabled it also drains into the store.
func ProvideInsightQueue(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	svc *usecase.InsightService,
	m repository.Metrics,
) (*queue.RedisQueue, func(), error) {
	if cfg.Backend.Type != config.BackendRedis {
		return nil, func() {}, nil
	}

	rc := cfg.Cache.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", rc.Host, rc.Port),
		Password: rc.Password,
		DB:       rc.DB,
		PoolSize: rc.PoolSize,
	})
	cleanup := func() { _ = client.Close() }

	qc := cfg.Queue
	opts := []queue.RedisQueueOption{queue.WithKeyPrefix(qc.KeyPrefix), queue.WithRegisterer(reg)}
	if !qc.Consumer.Enabled {
		return queue.NewRedisPublisher(l, client, opts...), cleanup, nil
	}

	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    qc.Consumer.Workers,
		RetryLimit: qc.Consumer.RetryLimit,
		RetryDelay: qc.Consumer.RetryDelay,
	}, client, queue.ModeProducerConsumer, opts...)
	q.RegisterJob(usecase.NewInsertInsightsJob(svc, m, l))
	return q, cleanup, nil
}

// ProvideInsightPublisher picks the publisher for the configured backend.
// It is nil when that backend has no transport, which routes ingestion to
// direct inserts.
func ProvideInsightPublisher(producer *pkgkafka.Producer, q *queue.RedisQueue, cfg *config.Config) repository.InsightPublisher {
	switch {
	case cfg.Backend.Type == config.BackendRedis && q != nil:
		return internalrepo.NewRedisInsightPublisher(q)
	case cfg.Backend.Type == config.BackendKafka && producer != nil:
		return internalrepo.NewKafkaInsightPublisher(producer, cfg.Kafka.Topic)
	default:
		return nil
	}
}

// ProvideInsightService creates the insight use case.
func ProvideInsightService(
	repo repository.InsightRepository,
	c cache.Service,
	l *applogger.Logger,
	m repository.Metrics,
	tp *tracing.Provider,
	cfg *config.Config,
) *usecase.InsightService {
	return usecase.NewInsightService(repo, c, l, m, tp.Tracer(), cfg.Cache.TTL).
		EvictOnWrite(cfg.Cache.EvictOnWrite)
}

// ProvideInsightIngestor creates the ingestion router.
func ProvideInsightIngestor(pub repository.InsightPublisher, svc *usecase.InsightService, m repository.Metrics, cfg *config.Config) *usecase.InsightIngestor {
	return usecase.NewInsightIngestor(pub, svc, m, cfg.Backend.Type)
}

// ProvideKafkaConsumer creates the insights consumer when enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, reg *prometheus.Registry) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.NewLoggingHook(l)))
	return consumer, nil
}

// ProvideKafkaInsightsHandler creates the handler for the insights topic.
func ProvideKafkaInsightsHandler(svc *usecase.InsightService, m repository.Metrics, l *applogger.Logger, cfg *config.Config) *usecase.KafkaInsightsHandler {
	return usecase.NewKafkaInsightsHandler(cfg.Kafka.Topic, svc, m, l)
}

// ProvideRetentionJob creates the retention job, or nil when disabled.
func ProvideRetentionJob(svc *usecase.InsightService, cfg *config.Config, l *applogger.Logger) *usecase.RetentionJob {
	if !cfg.Retention.Enabled {
		return nil
	}
	return usecase.NewRetentionJob(svc, cfg.Retention.Interval, cfg.Retention.MaxAge, l)
}

// ProvideRateLimiter creates the write-endpoint limiter. App prunes it.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	rl := cfg.Server.RateLimit
	return ratelimit.NewWithMaxKeys(rl.Capacity, rl.RefillPerSec, rl.MaxKeys)
}

// ProvideInsightsHandler creates the HTTP handler.
func ProvideInsightsHandler(l *applogger.Logger, svc *usecase.InsightService, ingest *usecase.InsightIngestor, limiter *ratelimit.Limiter) *api.InsightsEchoHandler {
	return api.NewInsightsEchoHandler(l, svc, ingest, limiter)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.InsightsEchoHandler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetrics(metricsPath, reg, reg),
		xhttp.WithLogger(l),
	)
}

// ProvideApp assembles the application and attaches the Kafka log sink when
// a log topic is configured. Clients it does not own (producer, cache,
// tracing) are closed by the injector cleanup after Run returns.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaInsightsHandler,
	retention *usecase.RetentionJob,
	q *queue.RedisQueue,
	producer *pkgkafka.Producer,
	limiter *ratelimit.Limiter,
) *server.App {
	if producer != nil && cfg.Kafka.LogTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			Topic:     cfg.Kafka.LogTopic,
			Publisher: producer,
		})
	}
	return server.New(cfg, l, server.Components{
		HTTP:      srv,
		Consumer:  consumer,
		Handler:   kh,
		Retention: retention,
		Queue:     q,
		Limiter:   limiter,
	})
}
