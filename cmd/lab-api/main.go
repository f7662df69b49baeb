package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/meditrack/meditrack-api/internal/config"
	"github.com/meditrack/meditrack-api/internal/consumer"
	healthHandler "github.com/meditrack/meditrack-api/internal/handler/health"
	orderHandler "github.com/meditrack/meditrack-api/internal/handler/order"
	resultHandler "github.com/meditrack/meditrack-api/internal/handler/result"
	"github.com/meditrack/meditrack-api/internal/middleware"
	"github.com/meditrack/meditrack-api/internal/repository/postgres"
	"github.com/meditrack/meditrack-api/internal/router"
	eventService "github.com/meditrack/meditrack-api/internal/service/event"
	orderService "github.com/meditrack/meditrack-api/internal/service/order"
	resultService "github.com/meditrack/meditrack-api/internal/service/result"
	"github.com/meditrack/meditrack-api/pkg/cache"
	"github.com/meditrack/meditrack-api/pkg/messaging/kafka"
	"github.com/meditrack/meditrack-api/pkg/metrics"
	"github.com/meditrack/meditrack-api/pkg/validator"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := validator.RegisterDomainValidations(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validations")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	baseRepo := postgres.NewBaseRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	resultRepo := postgres.NewResultRepository(db)
	processedRepo := postgres.NewProcessedEventRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	m := metrics.New("lab_api")
	eventSvc := eventService.NewService(outboxRepo, m)

	var resultCache resultService.ResultCache
	if c, err := cache.New(cache.Config{
		URL:          cfg.Redis.URL,
		TTL:          cfg.Redis.TTL(),
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, result caching disabled")
	} else {
		resultCache = c
		defer c.Close()
	}

	orderSvc := orderService.NewService(orderRepo, eventSvc, cfg.Kafka.Topics.OrderCreated)
	resultSvc := resultService.NewService(&baseRepo, orderRepo, resultRepo, eventSvc, resultCache, cfg.Kafka.Topics.LabEvents)

	r := router.NewRouter(
		router.RouterConfig{
			RateLimit:     rate.Limit(100),
			RateBurst:     200,
			Timeout:       time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "lab_api",
		},
		healthHandler.NewHandler(db),
		orderHandler.NewHandler(orderSvc, resultSvc),
		resultHandler.NewHandler(resultSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, err := kafka.NewBroker(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		PublishTimeout: cfg.Kafka.PublishTimeout(),
		Concurrency:    cfg.Kafka.Concurrency,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to kafka")
	}
	defer broker.Close()

	orderConsumer := consumer.NewOrderConsumer(orderSvc, processedRepo, m, &log.Logger, cfg.Kafka.Topics.OrderRequests)
	go func() {
		if err := orderConsumer.Run(ctx, broker, cfg.Kafka.GroupID); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("order consumer stopped")
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("lab service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
