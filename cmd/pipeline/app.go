package main

import (
	"context"
	"fmt"
	"time"

	"inventory-analytics/config"
	"inventory-analytics/internal/analytics"
	"inventory-analytics/internal/broker"
	"inventory-analytics/internal/export"
	"inventory-analytics/internal/extract"
	"inventory-analytics/internal/pipeline"
	"inventory-analytics/internal/redisclient"
	"inventory-analytics/internal/report"
	"inventory-analytics/internal/source"
	"inventory-analytics/internal/store"
	"inventory-analytics/internal/util"
	"inventory-analytics/internal/watermark"

	"go.uber.org/zap"
)

// app owns the connections of one process and releases them on close.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	redis   *redisclient.Client
	closers []func() error
}

func newApp(cfg *config.Config, logger *zap.Logger) *app {
	return &app{cfg: cfg, logger: logger}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error during shutdown", zap.Error(err))
		}
	}
}

func (a *app) redisClient() (*redisclient.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := redisclient.NewClient(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	a.logger.Info("Redis connected", zap.String("addr", a.cfg.Redis.Addr))
	return client, nil
}

func (a *app) watermarkStore() (watermark.Store, error) {
	if a.cfg.Run.WatermarkBackend == config.WatermarkBackendRedis {
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		return watermark.NewRedisStore(client, a.cfg.Run.WatermarkKey, a.logger), nil
	}
	return watermark.NewFileStore(a.cfg.Run.WatermarkState, a.logger), nil
}

func (a *app) adapter() (source.Adapter, error) {
	if a.cfg.Run.Mode == config.ModeDatabase {
		src := a.cfg.Sources.Database
		db, err := source.OpenDB(src.Driver, src.URL, src.MaxOpenConns, time.Duration(src.ConnMaxLifetime)*time.Second)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.logger.Info("Source database connected", zap.String("driver", src.Driver))
		return source.NewDatabaseAdapter(db, src.Tables, src.ParamLayout, a.logger), nil
	}
	return source.NewFileAdapter(a.cfg.Sources.CSV.BasePath, a.cfg.Sources.CSV.Files, a.cfg.Run.ChunkSize, a.logger), nil
}

func (a *app) sinks() ([]pipeline.Sink, error) {
	sinks := []pipeline.Sink{
		export.New(a.cfg.Targets.Export.Path, a.cfg.Targets.Export.Format, a.logger),
	}
	if db := a.cfg.Targets.Database; db.Enabled {
		results, err := store.NewStore(db.Driver, db.URL, db.MaterializedViews, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, results.Close)
		sinks = append(sinks, results)
	}
	sinks = append(sinks, report.New(a.cfg.Run.ReportDir, nil, a.logger))
	return sinks, nil
}

func (a *app) publisher() pipeline.Publisher {
	k := a.cfg.Targets.Kafka
	if !k.Enabled {
		return nil
	}
	producer := broker.NewProducer(k.Brokers, k.TopicEvents, a.logger)
	a.closers = append(a.closers, producer.Close)
	a.logger.Info("Kafka producer initialized", zap.String("topic", k.TopicEvents))
	return broker.NewEventPublisher(producer)
}

func (a *app) orchestrator() (*pipeline.Orchestrator, error) {
	wm, err := a.watermarkStore()
	if err != nil {
		return nil, err
	}
	adapter, err := a.adapter()
	if err != nil {
		return nil, err
	}
	sinks, err := a.sinks()
	if err != nil {
		return nil, err
	}
	extractor := extract.New(adapter, wm, extract.OptionsFromConfig(a.cfg), a.logger)
	modules := analytics.Modules(a.cfg, time.Now, a.logger)
	return pipeline.New(extractor, modules, sinks, a.publisher(), a.cfg.Run.Mode, a.logger), nil
}

// runLock returns the distributed run lock.
func (a *app) runLock() (pipeline.Locker, error) {
	client, err := a.redisClient()
	if err != nil {
		return nil, err
	}
	return client.NewLock("inventory-analytics:run", time.Duration(a.cfg.Run.LockTTLSeconds)*time.Second), nil
}

// initTracing installs the Jaeger exporter when enabled. The returned func
// flushes pending spans.
func (a *app) initTracing(service string) func() {
	if !a.cfg.Observ.TracingEnabled {
		return func() {}
	}
	tp, err := util.InitTracer(service, a.cfg.Run.Env, a.cfg.Observ.JaegerEndpoint)
	if err != nil {
		a.logger.Warn("Failed to initialize tracer", zap.Error(err))
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			a.logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}
}
