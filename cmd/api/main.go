package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/carelink/internal/app"
	"github.com/jwalitptl/carelink/internal/config"
	"github.com/jwalitptl/carelink/internal/handler/appointment"
	"github.com/jwalitptl/carelink/internal/handler/contact"
	"github.com/jwalitptl/carelink/internal/handler/doctor"
	"github.com/jwalitptl/carelink/internal/handler/health"
	"github.com/jwalitptl/carelink/internal/handler/inquiry"
	"github.com/jwalitptl/carelink/internal/handler/patient"
	"github.com/jwalitptl/carelink/internal/middleware"
	"github.com/jwalitptl/carelink/internal/router"
	"github.com/jwalitptl/carelink/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	if err := middleware.RegisterValidators(); err != nil {
		log.Fatal(err, "failed to register validators")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "failed to open store")
	}
	defer store.Close()

	broker, err := app.OpenBroker(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "failed to open broker")
	}
	defer broker.Close()

	m := metrics.NewMetrics(app.MetricsNamespace)

	// The API always drains the outbox it writes; with the memory store it
	// also consumes, since no other process can see the data.
	pipeline, err := app.NewPipeline(store, broker, cfg, log, m, app.PipelineOptions{
		Publish: true,
		Consume: app.InProcess(cfg),
	})
	if err != nil {
		log.Fatal(err, "failed to build event pipeline")
	}

	svc := app.NewRelationService(store, cfg, log)

	healthHandler := health.NewHandler(map[string]health.Pinger{
		"store":  store,
		"broker": broker,
	}, prometheus.DefaultGatherer)

	r := router.NewRouter(
		log,
		m,
		healthHandler,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RateIdleTTL:      cfg.RateLimit.IdleTTL,
			Timeout:          middleware.TimeoutConfig{Duration: cfg.Server.WriteTimeout},
		},
		patient.NewHandler(svc),
		doctor.NewHandler(svc),
		appointment.NewHandler(svc),
		inquiry.NewHandler(svc),
		contact.NewHandler(svc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := pipeline.Run(ctx); err != nil {
			log.Error(err, "Event pipeline stopped")
		}
	}()

	go func() {
		log.Info("Server listening", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	cancel()
	<-pipelineDone
	log.Info("Server exited")
}
