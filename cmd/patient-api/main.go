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
	healthHandler "github.com/meditrack/meditrack-api/internal/handler/health"
	patientHandler "github.com/meditrack/meditrack-api/internal/handler/patient"
	"github.com/meditrack/meditrack-api/internal/middleware"
	"github.com/meditrack/meditrack-api/internal/repository/postgres"
	"github.com/meditrack/meditrack-api/internal/router"
	eventService "github.com/meditrack/meditrack-api/internal/service/event"
	patientService "github.com/meditrack/meditrack-api/internal/service/patient"
	"github.com/meditrack/meditrack-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	baseRepo := postgres.NewBaseRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	recordRepo := postgres.NewMedicalRecordRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	m := metrics.New("patient_api")
	eventSvc := eventService.NewService(outboxRepo, m)

	patientSvc := patientService.NewService(patientRepo, recordRepo, eventSvc, cfg.Kafka.Topics.OrderRequests)

	r := router.NewRouter(
		router.RouterConfig{
			RateLimit:     rate.Limit(100),
			RateBurst:     200,
			Timeout:       time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "patient_api",
		},
		healthHandler.NewHandler(db),
		patientHandler.NewHandler(patientSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("patient service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
