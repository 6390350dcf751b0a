package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stock-service/internal/api"
	"stock-service/internal/config"
	"stock-service/internal/interfaces"
	"stock-service/internal/kafka"
	"stock-service/internal/notify"
	"stock-service/internal/rabbitmq"
	redisStore "stock-service/internal/redis"
	"stock-service/internal/repository"
	"stock-service/internal/service"
	"stock-service/internal/tracing"
)

// resources collects everything main has to close on the way out
type resources struct {
	closers []io.Closer
}

func (r *resources) add(c io.Closer) {
	r.closers = append(r.closers, c)
}

func (r *resources) closeAll() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close resource")
		}
	}
}

// setupLogging configures structured logging
func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = log.With().
		Str("service", cfg.ServiceName).
		Str("instance_id", cfg.InstanceID).
		Logger()
}

// initializeDatabase sets up and tests the database connection
func initializeDatabase(cfg *config.Config) *sqlx.DB {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	db.SetMaxOpenConns(cfg.DatabaseMaxConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxIdleTime(30 * time.Second)

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	if cfg.RunMigrations {
		if err := repository.RunMigrations(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	log.Info().Msg("Database connection established")
	return db
}

// initializeRedis sets up the Redis client with cluster support
func initializeRedis(cfg *config.Config) goredis.UniversalClient {
	client := redisStore.NewUniversalClient(redisStore.ClientOptions{
		Addrs:       cfg.RedisAddrs,
		Password:    cfg.RedisPassword,
		ClusterMode: cfg.RedisClusterMode,
		PoolSize:    cfg.RedisPoolSize,
		MaxRetries:  cfg.RedisMaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Strs("addrs", cfg.RedisAddrs).Msg("Failed to connect to Redis")
	}

	log.Info().Bool("cluster_mode", cfg.RedisClusterMode).Msg("Redis connection established")
	return client
}

// initializeStore builds the configured store backend, wrapped in the bulk
// cache when enabled
func initializeStore(cfg *config.Config, res *resources) (interfaces.StockStore, map[string]api.HealthCheck) {
	checks := map[string]api.HealthCheck{}
	var store interfaces.StockStore
	var redisClient goredis.UniversalClient

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db := initializeDatabase(cfg)
		res.add(db)
		repo := repository.NewStockRepository(db)
		checks["postgres"] = repo.Ping
		store = repo
	case config.BackendRedis:
		redisClient = initializeRedis(cfg)
		res.add(redisClient)
		redisBacked := redisStore.NewStockStore(redisClient, cfg.RedisKeyPrefix)
		checks["redis"] = redisBacked.Ping
		store = redisBacked
	default:
		log.Warn().Msg("Using in-memory stock store, data is lost on restart")
		store = repository.NewMemoryStore()
	}

	if cfg.EnableBulkCache && cfg.StoreBackend != config.BackendMemory {
		if redisClient == nil {
			redisClient = initializeRedis(cfg)
			res.add(redisClient)
		}
		cache := redisStore.NewCacheClient(redisClient, cfg.BulkCacheTTL, cfg.RedisKeyPrefix)
		checks["bulk_cache"] = cache.Ping
		store = redisStore.NewCachedStore(store, cache)
		log.Info().Dur("ttl", cfg.BulkCacheTTL).Msg("Bulk stock cache enabled")
	}

	log.Info().Str("backend", cfg.StoreBackend).Msg("Stock store ready")
	return store, checks
}

// initializeSinks builds the notification fan-out. Broker sinks sit behind
// a circuit breaker.
func initializeSinks(cfg *config.Config, res *resources) interfaces.NotificationSink {
	breaker := notify.BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}

	var sinks []notify.NamedSink
	for _, name := range cfg.NotificationSinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, notify.NamedSink{Name: name, Sink: notify.NewLogSink()})
		case config.SinkKafka:
			publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaStateTopicName)
			res.add(publisher)
			sinks = append(sinks, notify.NamedSink{Name: name, Sink: notify.NewBreakerSink(name, publisher, breaker)})
		case config.SinkRabbitMQ:
			conn, ch := initializeRabbitMQ(cfg)
			res.add(conn)
			res.add(ch)
			publisher := rabbitmq.NewPublisher(ch, cfg.RabbitMQExchange)
			sinks = append(sinks, notify.NamedSink{Name: name, Sink: notify.NewBreakerSink(name, publisher, breaker)})
		}
	}

	log.Info().Strs("sinks", cfg.NotificationSinks).Msg("Notification sinks configured")
	return notify.NewMultiSink(sinks...)
}

// initializeRabbitMQ connects and declares the stock exchange
func initializeRabbitMQ(cfg *config.Config) (*amqp.Connection, *amqp.Channel) {
	conn, ch, err := rabbitmq.SetupConn(cfg.RabbitMQURL, cfg.RabbitMQExchange, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	log.Info().Str("exchange", cfg.RabbitMQExchange).Msg("RabbitMQ connection established")
	return conn, ch
}

// startHTTPServer starts the stock API server
func startHTTPServer(cfg *config.Config, handler *api.StockHandler) *http.Server {
	serverAddr := fmt.Sprintf("%s:%s", cfg.ServerAddr, cfg.ServerPort)

	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("address", serverAddr).Msg("Stock Service HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	return srv
}

// gracefulShutdown waits for a signal and drains in-flight requests
func gracefulShutdown(srv *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Stock Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced shutdown")
	}

	log.Info().Msg("Stock Service stopped")
}

func main() {
	cfg := config.LoadConfig()
	setupLogging(cfg)
	log.Info().Str("environment", cfg.Environment).Msg("Starting Stock Service...")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	shutdownTracing := tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
	defer shutdownTracing()

	res := &resources{}
	defer res.closeAll()

	store, checks := initializeStore(cfg, res)
	sink := initializeSinks(cfg, res)

	controller, err := service.NewStockController(store, sink, cfg.ControllerConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create stock controller")
	}
	bulk, err := service.NewBulkStockQuery(store, cfg.BulkQueryConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bulk query")
	}

	srv := startHTTPServer(cfg, api.NewStockHandler(controller, bulk, checks))

	log.Info().
		Int("low_stock_threshold", cfg.LowStockThreshold).
		Int("max_conflict_retries", cfg.MaxConflictRetries).
		Dur("store_timeout", cfg.StoreTimeout).
		Msg("Stock Service started")

	gracefulShutdown(srv)
}
