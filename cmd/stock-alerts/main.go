package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stock-service/internal/api"
	"stock-service/internal/config"
	"stock-service/internal/interfaces"
	"stock-service/internal/kafka"
	"stock-service/internal/notify"
	"stock-service/internal/rabbitmq"
	"stock-service/internal/service"
)

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
		Str("service", "stock-alerts").
		Str("instance_id", cfg.InstanceID).
		Logger()
}

// initializeRelay returns the RabbitMQ relay sink when enabled, plus a cleanup function
func initializeRelay(cfg *config.Config) (interfaces.NotificationSink, func()) {
	if !cfg.AlertsRelayRabbitMQ {
		return nil, func() {}
	}

	conn, ch, err := rabbitmq.SetupConn(cfg.RabbitMQURL, cfg.RabbitMQExchange, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	log.Info().Str("exchange", cfg.RabbitMQExchange).Msg("Relaying stock alerts to RabbitMQ")

	relay := notify.NewBreakerSink("alerts-relay", rabbitmq.NewPublisher(ch, cfg.RabbitMQExchange), notify.BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	})
	return relay, func() {
		ch.Close()
		conn.Close()
	}
}

// startHTTPServer starts the HTTP server for health and metrics
func startHTTPServer(cfg *config.Config, handler *api.AlertsHandler) *http.Server {
	serverAddr := fmt.Sprintf("%s:%s", cfg.ServerAddr, cfg.AlertsServerPort)

	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("address", serverAddr).Msg("Stock Alerts HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return srv
}

// startConsumer runs the consumer loop until ctx is cancelled
func startConsumer(ctx context.Context, consumer *kafka.Consumer, handler interfaces.StateChangeHandler, health *api.AlertsHandler) <-chan struct{} {
	done := make(chan struct{})
	health.SetConsuming(true)

	go func() {
		defer close(done)
		defer health.SetConsuming(false)
		if err := consumer.ConsumeStateChanges(ctx, handler); err != nil {
			log.Error().Err(err).Msg("Stock event consumption stopped")
		}
	}()

	return done
}

// gracefulShutdown handles graceful shutdown of the service
func gracefulShutdown(cancel context.CancelFunc, consumerDone <-chan struct{}, srv *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Stock Alerts...")

	cancel()
	select {
	case <-consumerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Consumer did not stop in time")
	}

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced shutdown")
	}

	log.Info().Msg("Stock Alerts stopped")
}

func main() {
	cfg := config.LoadConfig()
	setupLogging(cfg)
	log.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaStateTopicName).
		Str("group", cfg.KafkaConsumerGroup).
		Msg("Starting Stock Alerts...")

	relay, closeRelay := initializeRelay(cfg)
	defer closeRelay()

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaStateTopicName)
	defer consumer.Close()

	handler := service.NewAlertHandler(relay, 0)
	health := api.NewAlertsHandler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := startHTTPServer(cfg, health)
	consumerDone := startConsumer(ctx, consumer, handler, health)

	log.Info().Msg("Stock Alerts started, consuming state changes...")

	gracefulShutdown(cancel, consumerDone, srv)
}
