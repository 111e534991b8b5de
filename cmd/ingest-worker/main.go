// Package main 摄取任务执行器入口（ingest-worker）
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recall-api/internal/config"
	"recall-api/internal/infrastructure/eino/callback"
	"recall-api/internal/infrastructure/messaging"
	"recall-api/internal/wire"
	"recall-api/pkg/logger"
	"recall-api/pkg/tracer"
)

const dlqAlertThreshold = 10

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "ingest-worker",
		Version:     cfg.App.Version,
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	callback.Init()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg, wire.ConsumerName(hostnameConsumerName()))
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	worker.Service.OnResult(recordResult)

	consumer := worker.Consumer
	consumer.RegisterHandler(messaging.MessageTypeIngestDocument, ingestHandler(worker.Service))
	consumer.OnDeadLetter(deadLetterHandler(worker.Service))

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	metricsSrv := startMetricsServer(ctx, cfg)

	log := logger.FromContext(ctx)
	log.Info("ingest-worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("ingest-worker shutting down")
	consumer.Stop()
	cancel()

	if metricsSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// startMetricsServer 工作进程没有业务 HTTP 端口，单独暴露 Prometheus 指标
func startMetricsServer(ctx context.Context, cfg *config.Config) *http.Server {
	mc := cfg.Observability.Metrics
	if !mc.Enabled || mc.Port <= 0 {
		return nil
	}
	path := mc.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", mc.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics server error", err)
		}
	}()
	return srv
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
