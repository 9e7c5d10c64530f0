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

	"inventory-analytics/config"
	"inventory-analytics/internal/api"
	"inventory-analytics/internal/broker"
	"inventory-analytics/internal/pipeline"
	"inventory-analytics/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the latest metric tables over HTTP",
	Long: `Starts the HTTP API. Runs are triggered with POST /api/v1/runs or, when
Kafka is enabled, by PIPELINE_RUN_REQUESTED messages on the trigger topic.`,
	RunE: serve,
}

func init() {
	serveCmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run the pipeline once before accepting triggers")
}

func serve(cmd *cobra.Command, args []string) error {
	a := newApp(cfg, logger)
	defer a.close()
	defer a.initTracing("inventory-analytics")()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	// runs of several instances sharing a Redis watermark must not interleave
	var lock pipeline.Locker
	if cfg.Run.WatermarkBackend == config.WatermarkBackendRedis {
		if lock, err = a.runLock(); err != nil {
			return err
		}
	}
	runner := pipeline.NewRunner(orch, lock, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if runOnStart {
		go func() {
			if _, err := runner.TryRun(workerCtx); err != nil {
				logger.Error("Initial run failed", zap.Error(err))
			}
		}()
	}

	var triggerWorker *worker.TriggerWorker
	if k := cfg.Targets.Kafka; k.Enabled {
		consumer := broker.NewConsumer(k.Brokers, k.TopicTriggers, k.ConsumerGroup, logger)
		triggerWorker = worker.NewTriggerWorker(consumer, runner, logger)
		go func() {
			if err := triggerWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Trigger worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Run.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	api.NewHandler(runner).SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if triggerWorker != nil {
		if err := triggerWorker.Stop(); err != nil {
			logger.Warn("Error stopping trigger worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
	return nil
}
