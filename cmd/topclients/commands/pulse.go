package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/topclients/am"
	"github.com/teranos/topclients/analyze"
	"github.com/teranos/topclients/display"
	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/internal/util"
	"github.com/teranos/topclients/logger"
	"github.com/teranos/topclients/pulse/async"
	"github.com/teranos/topclients/pulse/schedule"
)

// PulseCmd groups the background job commands.
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Run the scheduler and background workers",
	Long: `Pulse runs top-N analyses in the background.

A ticker enqueues one topn.analyze job every pulse.schedule_interval_seconds,
with the tick time as the end of the analysed window. Workers poll the job
queue and run the pipeline. Runs that fail on a partition or while writing
the result are retried up to pulse.max_retries times.

Examples:
  topclients pulse start              # workers + scheduler in foreground
  topclients pulse enqueue            # queue one run ending now
  topclients pulse jobs --status failed
  topclients pulse cancel <job-id>    # withdraw a queued run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts workers and the scheduler.
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start workers and the scheduler",
	Long: `Start the worker pool and the schedule ticker in the foreground.

Jobs left running by a previous crash are re-queued on start. On Ctrl+C the
ticker stops first, then workers finish or re-queue their current job.
Changes to pipeline settings in ~/.topclients/am.toml apply to the next run.`,
	RunE: runPulseStart,
}

var pulseEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue one analysis run",
	RunE:  runPulseEnqueue,
}

var pulseJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent jobs",
	RunE:  runPulseJobs,
}

var pulseCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Withdraw a queued job",
	Args:  cobra.ExactArgs(1),
	RunE:  runPulseCancel,
}

func init() {
	PulseStartCmd.Flags().Int("workers", 0, "Number of concurrent workers (default pulse.workers)")
	PulseStartCmd.Flags().Bool("now", false, "Enqueue a run immediately instead of waiting one interval")

	pulseEnqueueCmd.Flags().String("end", "", "Window end, exclusive (RFC3339, default now)")
	pulseEnqueueCmd.Flags().Int("n", -1, "Number of clients to report (default pipeline.top_n)")

	pulseJobsCmd.Flags().String("status", "", "Only jobs with this status (queued, running, completed, failed, cancelled)")
	pulseJobsCmd.Flags().Int("limit", 20, "Maximum jobs to list")
	pulseJobsCmd.Flags().Bool("json", false, "Output as JSON")

	PulseCmd.AddCommand(PulseStartCmd)
	PulseCmd.AddCommand(pulseEnqueueCmd)
	pulseCancelCmd.Flags().String("reason", "", "Recorded in the job's error field")

	PulseCmd.AddCommand(pulseJobsCmd)
	PulseCmd.AddCommand(pulseCancelCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	poolCfg := async.WorkerPoolConfig{
		Workers:      cfg.Pulse.Workers,
		PollInterval: time.Duration(cfg.Pulse.PollIntervalMS) * time.Millisecond,
		MaxRetries:   cfg.Pulse.MaxRetries,
	}
	if cmd.Flags().Changed("workers") {
		poolCfg.Workers, _ = cmd.Flags().GetInt("workers")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The pool must outlive the signal so Stop can drain it.
	pool := async.NewWorkerPool(context.WithoutCancel(ctx), database, poolCfg, logger.Logger)
	handler := analyze.NewHandler(analyze.NewPipeline(cfg, database, logger.Logger), analyze.Window(cfg), logger.Logger)
	pool.Registry().Register(handler)
	pool.Start()

	var ticker *schedule.Ticker
	interval := time.Duration(cfg.Pulse.ScheduleIntervalSeconds) * time.Second
	if interval > 0 {
		runNow, _ := cmd.Flags().GetBool("now")
		ticker = schedule.NewTicker(context.WithoutCancel(ctx), pool.Queue(), schedule.TickerConfig{
			Interval:       interval,
			HandlerName:    analyze.HandlerName,
			RunImmediately: runNow,
		}, analyze.PayloadFor(analyze.Window(cfg), nil), logger.Logger)
		if err := ticker.Start(); err != nil {
			pool.Stop()
			return err
		}
	}

	stopWatcher := startConfigWatcher(func(newCfg *am.Config) error {
		handler.Reconfigure(newCfg)
		return nil
	})
	defer stopWatcher()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Pulse started")
	fmt.Fprintf(out, "  Workers:       %d\n", pool.Workers())
	fmt.Fprintf(out, "  Poll interval: %v\n", poolCfg.PollInterval)
	if ticker != nil {
		fmt.Fprintf(out, "  Schedule:      every %v, window %v\n", interval, analyze.Window(cfg))
	} else {
		fmt.Fprintln(out, "  Schedule:      disabled")
	}
	fmt.Fprintln(out, "\nPress Ctrl+C for graceful shutdown")

	<-ctx.Done()

	fmt.Fprintln(out, "\nShutting down...")
	if ticker != nil {
		ticker.Stop()
	}
	pool.Stop()
	fmt.Fprintln(out, "Pulse stopped")
	return nil
}

func runPulseEnqueue(cmd *cobra.Command, args []string) error {
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
	var n *int
	if cmd.Flags().Changed("n") {
		v, _ := cmd.Flags().GetInt("n")
		n = util.Ptr(v)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	payload, err := analyze.PayloadFor(analyze.Window(cfg), n)(end)
	if err != nil {
		return err
	}
	job, err := async.NewJobWithPayload(analyze.HandlerName, "cli", payload)
	if err != nil {
		return err
	}
	if err := async.NewQueue(database).Enqueue(cmd.Context(), job); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s\n", job.ID)
	return nil
}

func runPulseJobs(cmd *cobra.Command, args []string) error {
	var status *async.JobStatus
	if raw, _ := cmd.Flags().GetString("status"); raw != "" {
		if !async.IsValidStatus(raw) {
			return errors.NewInvalidRequestError("unknown status %q", raw)
		}
		s := async.JobStatus(raw)
		status = &s
	}
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	jobs, err := async.NewQueue(database).ListJobs(cmd.Context(), status, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(out, jobs)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs")
		return nil
	}

	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID[:8],
			j.HandlerName,
			string(j.Status),
			j.Source,
			strconv.Itoa(j.RetryCount),
			j.CreatedAt.Local().Format(time.DateTime),
			j.Error,
		})
	}
	return display.KeyValueTable(out, []string{"ID", "Handler", "Status", "Source", "Retries", "Created", "Error"}, rows)
}

func runPulseCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	reason, _ := cmd.Flags().GetString("reason")
	job, err := async.NewQueue(database).CancelJob(cmd.Context(), args[0], reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", job.ID)
	return nil
}
