package main

import (
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/air-quality-etl/internal/app"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run the pipeline once for a partition",
	Long:  "Replays one date/hour partition synchronously and prints the finished run. Exits non-zero unless the run succeeded.",
	RunE:  runReplay,
}

var (
	replayDate string
	replayHour int
)

func init() {
	replayCmd.Flags().StringVar(&replayDate, "date", "", "Partition date, YYYY-MM-DD (required)")
	replayCmd.Flags().IntVar(&replayHour, "hour", 0, "Partition hour, 0-23")

	if err := replayCmd.MarkFlagRequired("date"); err != nil {
		panic(fmt.Sprintf("failed to mark date flag as required: %v", err))
	}

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, _ []string) error {
	p, err := domain.NewPartitionKey(replayDate, replayHour)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)

	a, err := app.Build(cmd.Context(), cfg, logger, observability.NewMetrics())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	run, err := a.Orchestrator.Run(cmd.Context(), p)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if run.Result != pipeline.ResultSuccess {
		return fmt.Errorf("run %s ended %s: %s", run.ID, run.Result, run.ErrorKind)
	}
	return nil
}
