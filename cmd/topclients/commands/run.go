package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/topclients/analyze"
	"github.com/teranos/topclients/display"
	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/logger"
	"github.com/teranos/topclients/topn"
)

// RunCmd runs one top-N analysis in the foreground.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one top-N analysis now",
	Long: `Run one top-N analysis over the window [end - window, end) and store the
result, replacing the previous one.

Examples:
  topclients run                         # config top_n and window, ending now
  topclients run --n 5 --window 30m
  topclients run --end 2026-03-01T12:00:00Z --json`,
	RunE: runRun,
}

func init() {
	RunCmd.Flags().Int("n", -1, "Number of clients to report (default pipeline.top_n)")
	RunCmd.Flags().Duration("window", 0, "Window length (default pipeline.window_minutes)")
	RunCmd.Flags().String("end", "", "Window end, exclusive (RFC3339, default now)")
	RunCmd.Flags().Bool("json", false, "Output the run result as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	end := time.Now()
	if raw, _ := cmd.Flags().GetString("end"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return errors.NewInvalidRequestError("--end must be RFC3339: %v", err)
		}
	}
	window, _ := cmd.Flags().GetDuration("window")
	if window == 0 {
		window = analyze.Window(cfg)
	}
	if window < 0 {
		return errors.NewInvalidRequestError("--window must be positive, got %s", window)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	pipeline := analyze.NewPipeline(cfg, database, logger.Logger)
	if cmd.Flags().Changed("n") {
		pipeline.N, _ = cmd.Flags().GetInt("n")
	}

	res, err := pipeline.Run(cmd.Context(), topn.WindowEndingAt(end, window))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(out, res)
	}

	fmt.Fprintf(out, "Window %s .. %s\n\n",
		res.Window.Start.Format(time.RFC3339), res.Window.End.Format(time.RFC3339))
	if err := display.TopClientsTable(out, res.Results); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d records in %d partitions, %d malformed, %d distinct clients (%s)\n",
		res.Stats.Records, res.Stats.Partitions, res.Stats.Malformed, res.Stats.DistinctKeys,
		res.Duration.Round(time.Millisecond))
	return nil
}
