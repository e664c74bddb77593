package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/warehouse"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check staging table integrity",
	Long:  "Verifies every staging table exists, holds rows, has unique (event_hour, kind, latitude, longitude) keys and no null primary variable.",
	RunE:  runVerify,
}

var verifyWarehouse string

func init() {
	verifyCmd.Flags().StringVar(&verifyWarehouse, "warehouse", "", "DuckDB file to check (defaults to WAREHOUSE_PATH)")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)

	path := cfg.WarehousePath
	if verifyWarehouse != "" {
		path = verifyWarehouse
	}
	wh, err := warehouse.Open(cmd.Context(), path, logger)
	if err != nil {
		return err
	}
	defer wh.Close() //nolint:errcheck // read-only session

	checks, err := wh.Verify(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tCHECK\tRESULT\tDETAIL")
	failed := 0
	for _, c := range checks {
		result := "ok"
		if !c.Passed {
			result = "FAIL"
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Table, c.Name, result, c.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}
