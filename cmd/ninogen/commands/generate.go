package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dyluth/ninogen/internal/config"
	"github.com/dyluth/ninogen/internal/engine"
	"github.com/dyluth/ninogen/internal/ledger"
	"github.com/dyluth/ninogen/internal/metrics"
	"github.com/dyluth/ninogen/internal/partition"
	"github.com/dyluth/ninogen/internal/printer"
	"github.com/dyluth/ninogen/internal/progress"
	"github.com/dyluth/ninogen/internal/scheduler"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate every identifier into per-prefix files",
		Long: `Generate every valid identifier and write one file per prefix.

Each prefix is one unit of work. Up to --max-workers prefixes are written at
the same time; each prefix goes to <output>/ninos_<PREFIX>.txt with one
identifier per line.

A prefix that fails (for example because its file cannot be opened) is
reported and skipped. The run still finishes the remaining prefixes, and the
final total counts only the prefixes that succeeded.

Examples:
  # Full run with the default 4 workers in the current directory
  ninogen generate

  # 8 workers, separate output directory
  ninogen generate --max-workers 8 --output ./ninos

  # Regenerate two prefixes and fail the exit status on any error
  ninogen generate --prefix AA --prefix AB --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	opts.bindKeyspaceFlags(cmd)
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", ".", "Directory for ninos_<PREFIX>.txt files")
	cmd.Flags().StringVar(&opts.mode, "mode", "truncate", "Existing files: truncate (rewrite) or append (duplicates records on re-run)")
	cmd.Flags().StringVar(&opts.redisURL, "redis-url", "", "Record run progress in Redis (e.g. redis://localhost:6379/0)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit with a non-zero status if any prefix fails")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Hide the progress indicator")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Write JSON event logs to stderr")

	return cmd
}

func init() {
	rootCmd.AddCommand(newGenerateCmd())
}

func runGenerate(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	plan, err := engine.NewPlan(cfg)
	if err != nil {
		return configError(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	engineOpts := []engine.Option{
		engine.WithRunID(runID),
		engine.WithLogOutput(logOutput(cmd, opts.verbose)),
		engine.WithFailureHandler(func(o scheduler.Outcome) {
			printer.UnitFailure(o.Unit, o.Err)
		}),
	}

	if cfg.Metrics.Addr != "" {
		m := metrics.New()
		srv, err := metrics.Serve(cfg.Metrics.Addr, m)
		if err != nil {
			return configError(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		engineOpts = append(engineOpts, engine.WithMetrics(m))
		printer.Step("Serving metrics on http://%s/metrics\n", srv.Addr())
	}

	if cfg.Ledger.RedisURL != "" {
		l, err := ledger.Open(ctx, cfg.Ledger.RedisURL, runID)
		if err != nil {
			return printer.ErrorWithContext(
				"failed to connect to Redis",
				err.Error(),
				map[string]string{"Redis URL": cfg.Ledger.RedisURL},
				[]string{"Check the server is running, or drop --redis-url to run without a ledger"},
			)
		}
		defer l.Close()
		engineOpts = append(engineOpts, engine.WithLedger(l))
		printer.Step("Recording run %s in Redis key %s\n", runID, ledger.RunKey(runID))
	}

	printer.Header("Total possible combinations", "%s", progress.FormatCount(plan.Expected))
	printer.Info("Using %d workers to process %d prefixes.\n", cfg.MaxWorkers, len(plan.Units))

	var console *progress.Console
	if !opts.quiet {
		console = progress.NewConsole(cmd.ErrOrStderr(), "Generating NINOs", plan.Expected)
		engineOpts = append(engineOpts, engine.WithObserver(console))
	}

	report, err := engine.New(cfg, plan, engineOpts...).Run(ctx)
	if console != nil {
		console.Finish()
	}
	if err != nil {
		return configError(err)
	}

	printReport(cfg, plan, report)

	if ctx.Err() != nil {
		return printer.Error(
			"run interrupted",
			fmt.Sprintf("%d of %d prefixes did not complete.", len(report.Failed), report.Units),
			[]string{"Re-run the failed prefixes:\n  ninogen generate --prefix <PREFIX>"},
		)
	}
	if opts.strict && !report.OK() {
		return fmt.Errorf("%d prefixes failed", len(report.Failed))
	}
	return nil
}

func printReport(cfg *config.Config, plan *engine.Plan, report *engine.Report) {
	if report.OK() {
		printer.Success("Finished! Total generated: %s\n", progress.FormatCount(report.Written))
	} else {
		printer.Warning("Finished with errors. Total generated: %s\n", progress.FormatCount(report.Written))
	}
	if len(plan.Units) > 0 {
		printer.Info("NINOs written to files: %s, etc.\n",
			filepath.Join(cfg.OutputDir, partition.FileName(plan.Units[0])))
	}
	printer.Info("Elapsed: %s\n", report.Elapsed.Truncate(time.Millisecond))

	if len(report.Failed) == 0 {
		return
	}
	printer.Warning("%d of %d prefixes failed:\n", len(report.Failed), report.Units)
	for _, o := range report.Failed {
		printer.Printf("  %s: %v\n", o.Unit, o.Err)
	}
}

func logOutput(cmd *cobra.Command, verbose bool) io.Writer {
	if verbose {
		return cmd.ErrOrStderr()
	}
	return io.Discard
}
