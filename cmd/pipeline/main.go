// Command pipeline runs the inventory analytics ETL and serves its results.
package main

import (
	"fmt"
	"os"

	"inventory-analytics/config"
	"inventory-analytics/internal/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// configFile is set by the --config flag.
	configFile string

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Inventory analytics ETL",
	Long: `Extracts inventory tables from CSV files or a database, computes
inventory, movement, warehouse and financial metrics, and delivers them to
files, a results database, an HTML report and Kafka.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			util.SyncLogger(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config/config.yaml", "path to the YAML config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watermarksCmd)
}

// setup loads the configuration and builds the process logger.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err = util.NewLogger(cfg.Run.Env)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	return nil
}
