// Command aqictl operates the air-quality ETL by hand: replaying a
// partition, checking warehouse integrity and landing mock artifacts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "aqictl",
	Short:        "Operate the air-quality ETL",
	Long:         "aqictl replays partitions through the same pipeline the service runs, verifies the staging warehouse, and generates mock landing-zone data.",
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
