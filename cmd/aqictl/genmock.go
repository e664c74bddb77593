package main

import (
	"fmt"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/objstore"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/mockdata"
	"github.com/spf13/cobra"
)

var genmockCmd = &cobra.Command{
	Use:   "genmock",
	Short: "Land mock Open-Meteo artifacts for a partition",
	Long: `Writes one weather and one air-quality artifact for a partition into a
local landing zone, shaped like the ingestor's output. Defects can be
injected to exercise quarantine:

  aqictl genmock --date 2025-10-05 --hour 14 --null-primary-at 5 --truncate ozone`,
	RunE: runGenmock,
}

var (
	genmockDate          string
	genmockHour          int
	genmockDir           string
	genmockFetchedAt     string
	genmockNullPrimaryAt int
	genmockTruncate      string
)

func init() {
	genmockCmd.Flags().StringVar(&genmockDate, "date", "", "Partition date, YYYY-MM-DD (required)")
	genmockCmd.Flags().IntVar(&genmockHour, "hour", 0, "Partition hour, 0-23")
	genmockCmd.Flags().StringVar(&genmockDir, "dir", "", "Landing zone root (defaults to LOCAL_DATA_DIR/raw)")
	genmockCmd.Flags().StringVar(&genmockFetchedAt, "fetched-at", "", "RFC 3339 fetch time stamped into _metadata (defaults to now)")
	genmockCmd.Flags().IntVar(&genmockNullPrimaryAt, "null-primary-at", -1, "Null the primary variable at this hour index")
	genmockCmd.Flags().StringVar(&genmockTruncate, "truncate", "", "Drop the last value of this variable")

	if err := genmockCmd.MarkFlagRequired("date"); err != nil {
		panic(fmt.Sprintf("failed to mark date flag as required: %v", err))
	}

	rootCmd.AddCommand(genmockCmd)
}

func runGenmock(cmd *cobra.Command, _ []string) error {
	p, err := domain.NewPartitionKey(genmockDate, genmockHour)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fetchedAt := time.Now().UTC()
	if genmockFetchedAt != "" {
		if fetchedAt, err = time.Parse(time.RFC3339, genmockFetchedAt); err != nil {
			return fmt.Errorf("invalid --fetched-at: %w", err)
		}
	}

	opts := mockdata.DefaultOptions()
	opts.Location = domain.Location{City: cfg.City, Latitude: cfg.Latitude, Longitude: cfg.Longitude}
	opts.TimeZone = cfg.Location
	opts.FetchedAt = fetchedAt
	opts.NullPrimaryAt = genmockNullPrimaryAt
	opts.Truncate = genmockTruncate

	dir := cfg.RawDir()
	if genmockDir != "" {
		dir = genmockDir
	}
	names, err := mockdata.WritePartition(cmd.Context(), objstore.NewLocalStore(dir), p, opts)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
