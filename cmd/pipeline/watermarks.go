package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"inventory-analytics/internal/watermark"

	"github.com/spf13/cobra"
)

var watermarksCmd = &cobra.Command{
	Use:   "watermarks",
	Short: "Inspect or reset incremental extraction watermarks",
}

var watermarksShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored watermark per table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg, logger)
		defer a.close()

		store, err := a.watermarkStore()
		if err != nil {
			return err
		}
		return printState(store.Load(context.Background()))
	},
}

var watermarksResetCmd = &cobra.Command{
	Use:   "reset [table...]",
	Short: "Clear watermarks so the next run reloads fully",
	Long:  `Clears the watermarks of the named tables, or of every table when none is named.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg, logger)
		defer a.close()

		store, err := a.watermarkStore()
		if err != nil {
			return err
		}
		state, err := watermark.Reset(context.Background(), store, args...)
		if err != nil {
			return err
		}
		return printState(state)
	},
}

func init() {
	watermarksCmd.AddCommand(watermarksShowCmd)
	watermarksCmd.AddCommand(watermarksResetCmd)
}

func printState(state watermark.State) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("print watermarks: %w", err)
	}
	return nil
}
