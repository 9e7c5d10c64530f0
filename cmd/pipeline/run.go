package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"inventory-analytics/internal/pipeline"
	"inventory-analytics/internal/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var useLock bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	Long: `Extracts every configured table, computes the metric tables and
delivers them to the configured targets. Watermarks advance so the next run
only reads newer rows.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&useLock, "lock", false, "hold the Redis run lock for the duration of the run")
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger)
	defer a.close()
	defer a.initTracing("inventory-analytics-run")()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	var lock pipeline.Locker
	if useLock {
		if lock, err = a.runLock(); err != nil {
			return err
		}
	}

	res, err := pipeline.NewRunner(orch, lock, logger).Run(ctx)
	pushMetrics()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "run\t%s\n", res.RunID)
	for _, s := range res.Summaries() {
		fmt.Fprintf(w, "%s\t%d rows\n", s.Name, s.Rows)
	}
	for sink, msg := range res.SinkErrors {
		fmt.Fprintf(w, "failed %s\t%s\n", sink, msg)
	}
	return w.Flush()
}

func pushMetrics() {
	if cfg.Observ.PushgatewayURL == "" {
		return
	}
	if err := util.PushMetrics(cfg.Observ.PushgatewayURL, "inventory_analytics"); err != nil {
		logger.Warn("Failed to push metrics", zap.Error(err))
	}
}
