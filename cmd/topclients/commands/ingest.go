package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/ixgest"
)

// IngestCmd imports access-log lines into the event stream.
var IngestCmd = &cobra.Command{
	Use:   "ingest <file|->",
	Short: "Import access-log lines into the stream",
	Long: `Import Apache access-log lines into the event stream, one event per line.

Every imported line is stamped with the import time, or with --at. Blank
lines are skipped; other lines are stored as-is and malformed ones are
dropped later, at analysis time.

Examples:
  topclients ingest access.log
  tail -n 1000 access.log | topclients ingest -
  topclients ingest --at 2026-03-01T11:30:00Z access.log`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	IngestCmd.Flags().String("at", "", "Timestamp for imported lines (RFC3339, default now)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	at := time.Now()
	if raw, _ := cmd.Flags().GetString("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return errors.NewInvalidRequestError("--at must be RFC3339: %v", err)
		}
		at = parsed
	}

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to open %s", args[0])
		}
		defer f.Close()
		in = f
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

	stream := ixgest.NewStream(database, ixgest.Config{
		PartitionSize: cfg.Pipeline.PartitionSize,
		BatchSize:     cfg.Ingest.BatchSize,
	}, nil)

	spinner, _ := pterm.DefaultSpinner.WithWriter(cmd.ErrOrStderr()).Start("Importing access log...")
	started := time.Now()
	res, err := stream.ImportReader(cmd.Context(), in, at)
	if err != nil {
		spinner.Fail("Import failed")
		return err
	}
	spinner.Success("Import complete")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  Lines imported: %d\n", res.Lines)
	fmt.Fprintf(out, "  Blank skipped:  %d\n", res.Skipped)
	fmt.Fprintf(out, "  Batches:        %d\n", res.Batches)
	fmt.Fprintf(out, "  Took:           %s\n", time.Since(started).Round(time.Millisecond))
	return nil
}
