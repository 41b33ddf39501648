package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var geocodeMissingLimit int

var geocodeMissingCmd = &cobra.Command{
	Use:   "geocode-missing",
	Short: "Retry geocoding for pending records without coordinates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		resolved, unresolved, err := env.Pipeline.GeocodeMissing(ctx, geocodeMissingLimit)
		if err != nil {
			return err
		}

		zap.L().Info("geocode retry complete",
			zap.Int("resolved", resolved),
			zap.Int("unresolved", unresolved),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]int{"resolved": resolved, "unresolved": unresolved})
	},
}

func init() {
	geocodeMissingCmd.Flags().IntVar(&geocodeMissingLimit, "limit", 0, "max records to retry (default all, capped by store)")
	rootCmd.AddCommand(geocodeMissingCmd)
}
