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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/carelink/internal/app"
	"github.com/jwalitptl/carelink/internal/config"
	"github.com/jwalitptl/carelink/internal/handler/health"
	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/metrics"
)

func setupHealthCheck(port int, checks map[string]health.Pinger, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	h := health.NewHandler(checks, prometheus.DefaultGatherer)
	h.RegisterMetrics(engine)
	h.RegisterRoutes(engine.Group(""))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg.Log)
	if app.InProcess(cfg) {
		log.Fatal(errors.New("memory store"), "The worker needs the postgres store; the API runs the pipeline itself in memory mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "Failed to open store")
	}
	defer store.Close()

	broker, err := app.OpenBroker(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	m := metrics.NewMetrics(app.MetricsNamespace)

	pipeline, err := app.NewPipeline(store, broker, cfg, log, m, app.PipelineOptions{
		Publish: true,
		Consume: true,
	})
	if err != nil {
		log.Fatal(err, "Failed to build event pipeline")
	}

	healthSrv := setupHealthCheck(cfg.Consumer.HealthPort, map[string]health.Pinger{
		"store":  store,
		"broker": broker,
	}, log)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	log.Info("Worker started", "channel", cfg.Redis.Channel, "workers", cfg.Consumer.Workers)
	if err := pipeline.Run(ctx); err != nil {
		log.Error(err, "Event pipeline stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	log.Info("Worker exited")
}
