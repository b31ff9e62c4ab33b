package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/topclients/display"
	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/results"
)

// ShowCmd prints the latest stored result.
var ShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the latest stored result",
	Long: `Show the result set written by the most recent successful run.

Examples:
  topclients show
  topclients show --format json`,
	RunE: runShow,
}

func init() {
	ShowCmd.Flags().String("format", display.FormatTable, "Output format: table, json")
}

func runShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := display.ValidateFormat(format); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	snap, err := results.NewStore(database, nil).Get(cmd.Context(), cfg.Pipeline.ResultKey)
	if errors.IsNotFoundError(err) {
		return errors.WithHint(err, "no run has completed yet; try `topclients run`")
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(out, snap.Entries)
	}
	fmt.Fprintf(out, "%s v%d, updated %s\n\n", snap.Key, snap.Version, snap.UpdatedAt.Local().Format(time.RFC3339))
	return display.TopClientsTable(out, snap.Entries)
}
