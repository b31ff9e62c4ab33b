package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/topclients/am"
	"github.com/teranos/topclients/cmd/topclients/commands"
	"github.com/teranos/topclients/logger"
)

var rootCmd = &cobra.Command{
	Use:   "topclients",
	Short: "topclients - top-N client IPs over Apache access logs",
	Long: `topclients - top-N client IPs over Apache access logs.

Access-log lines are ingested into a local SQLite stream. Each run maps the
lines of a time window in parallel partitions, counts requests per client IP
and keeps the N busiest clients. The latest result is served over HTTP.

Available commands:
  ingest - Import access-log lines into the stream
  run    - Run one top-N analysis now
  show   - Show the latest stored result
  serve  - Serve the latest result over HTTP
  pulse  - Run the scheduler and background workers
  am     - Show, validate and edit configuration

Examples:
  topclients ingest access.log
  topclients run --n 5 --window 30m
  topclients show --format json
  topclients pulse start
  topclients serve`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if !cmd.Flags().Changed("json-logs") {
			// config may be broken; `am validate` still needs a logger
			if cfg, err := am.Load(); err == nil {
				jsonLogs = cfg.Log.JSON
			}
		}
		if err := logger.InitializeWithVerbosity(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON (overrides log.json)")
	rootCmd.PersistentFlags().String("db", "", "Database path (overrides database.path)")

	rootCmd.AddCommand(commands.IngestCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ShowCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
