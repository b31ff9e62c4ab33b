package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/topclients/am"
	"github.com/teranos/topclients/logger"
	"github.com/teranos/topclients/pulse/async"
	"github.com/teranos/topclients/results"
	"github.com/teranos/topclients/server"
)

// ServeCmd serves the latest result over HTTP.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the latest result over HTTP",
	Long: `Serve the latest stored result set.

  GET /v1/topclients   200 with a JSON array, 404 before the first run,
                       429 beyond server.max_requests_per_second
  GET /health          liveness and job queue counts

Changes to server.max_requests_per_second in ~/.topclients/am.toml apply
without a restart.

Examples:
  topclients serve
  topclients serve --port 9000`,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().Int("port", 0, "Port to listen on (default server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := server.New(results.NewStore(database, nil), server.Config{
		Port:                 port,
		ResultKey:            cfg.Pipeline.ResultKey,
		MaxRequestsPerSecond: cfg.Server.MaxRequestsPerSecond,
	}, logger.Logger).WithQueue(async.NewQueue(database))

	stopWatcher := startConfigWatcher(func(newCfg *am.Config) error {
		srv.SetRateLimit(newCfg.Server.MaxRequestsPerSecond)
		return nil
	})
	defer stopWatcher()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving http://localhost:%d/v1/topclients (Ctrl+C to stop)\n", port)
	return srv.Start(ctx)
}
