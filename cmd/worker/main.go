package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/meditrack/meditrack-api/internal/config"
	"github.com/meditrack/meditrack-api/internal/notifier"
	"github.com/meditrack/meditrack-api/internal/repository/postgres"
	"github.com/meditrack/meditrack-api/pkg/logger"
	"github.com/meditrack/meditrack-api/pkg/messaging/kafka"
	"github.com/meditrack/meditrack-api/pkg/metrics"
	"github.com/meditrack/meditrack-api/pkg/worker"
)

// workerEnv holds process-level knobs that are deployment-specific rather
// than application configuration, so they come straight from the
// environment.
type workerEnv struct {
	HealthPort    int           `envconfig:"HEALTH_PORT" default:"8081"`
	RetryAttempts int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `envconfig:"RETRY_DELAY" default:"1s"`
	GroupID       string        `envconfig:"GROUP_ID" default:"notifier"`
}

func setupHealthCheck(port int, lg *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			lg.ZL.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	var env workerEnv
	if err := envconfig.Process("worker", &env); err != nil {
		log.Fatal().Err(err).Msg("Failed to read worker environment")
	}

	lg := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		lg.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	broker, err := kafka.NewBroker(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		PublishTimeout: cfg.Kafka.PublishTimeout(),
		Concurrency:    cfg.Kafka.Concurrency,
	}, &lg.ZL)
	if err != nil {
		lg.Fatal(err, "Failed to connect to kafka")
	}
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	processor := worker.NewOutboxProcessor(
		&baseRepo,
		outboxRepo,
		broker,
		worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval(),
			RetryAttempts: env.RetryAttempts,
			RetryDelay:    env.RetryDelay,
			Retention:     cfg.Outbox.Retention(),
		},
		lg,
		metrics.New("outbox_processor"),
	)

	setupHealthCheck(env.HealthPort, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Notifier.Enabled {
		n := notifier.New(cfg.Notifier, &lg.ZL, cfg.Kafka.Topics.LabEvents)
		go func() {
			if err := n.Run(ctx, broker, env.GroupID); err != nil && ctx.Err() == nil {
				lg.Fatal(err, "Critical result notifier stopped")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		lg.Info("Shutting down...")
		cancel()
	}()

	processor.Start(ctx)
}
