package worker

import (
	"context"
	"errors"

	"inventory-analytics/internal/broker"
	"inventory-analytics/internal/models"
	"inventory-analytics/internal/pipeline"

	"go.uber.org/zap"
)

// RunTrigger starts a pipeline run unless one is already in progress.
type RunTrigger interface {
	TryRun(ctx context.Context) (*pipeline.Result, error)
}

// TriggerWorker runs the pipeline for every PIPELINE_RUN_REQUESTED event.
type TriggerWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	runner       RunTrigger
	logger       *zap.Logger
}

// NewTriggerWorker creates a new trigger worker
func NewTriggerWorker(consumer *broker.Consumer, runner RunTrigger, logger *zap.Logger) *TriggerWorker {
	w := &TriggerWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(logger),
		runner:       runner,
		logger:       logger.With(zap.String("component", "trigger_worker")),
	}
	w.eventHandler.OnRunRequested(w.HandleRunRequested)
	return w
}

// Start starts the worker
func (w *TriggerWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting trigger worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *TriggerWorker) Stop() error {
	w.logger.Info("Stopping trigger worker")
	return w.consumer.Close()
}

// HandleRunRequested runs the pipeline. A request arriving during a run is
// dropped; that run already covers it.
func (w *TriggerWorker) HandleRunRequested(ctx context.Context, event *models.RunRequestedEvent) error {
	logger := w.logger.With(zap.String("event_id", event.EventID), zap.String("requested_by", event.RequestedBy))
	res, err := w.runner.TryRun(ctx)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		logger.Info("Run already in progress; trigger ignored")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("Triggered run finished", zap.String("run_id", res.RunID))
	return nil
}
