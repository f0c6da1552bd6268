package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/libsync/internal/console"
	"github.com/hupe1980/libsync/internal/cycle"
	"github.com/hupe1980/libsync/internal/logging"
)

type syncOptions struct {
	output string
}

func newSyncCommand() *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync [name...]",
		Short: "Build and sync libraries once",
		Long: `Sync runs one build-and-sync cycle for each named library, or for every
configured library when no name is given. Libraries are processed one
after another in the given order.

Progress is printed to stderr while the cycles run; a summary of every
destination is written to stdout when all cycles are done. The command
exits with code 1 when any cycle failed.`,
		Example: `  # Sync every configured library
  libsync sync

  # Sync two libraries and emit a machine-readable summary
  libsync sync ui-kit utils -o json`,
		ValidArgsFunction: completeProjectNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "summary format: table, json")

	return cmd
}

func runSync(cmd *cobra.Command, names []string, opts *syncOptions) error {
	formatter, err := console.NewFormatter(opts.output)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	projects, err := loadProjects(cmd.Context(), names)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	sink, stopConsole := startConsole(cmd)
	runner := newCycleRunner(ctx, sink)

	results := make([]*cycle.Result, 0, len(projects))
	failed := 0

	for _, p := range projects {
		if ctx.Err() != nil {
			break
		}

		res := runner.Run(ctx, p, cycle.TriggerManual)
		if !res.OK() {
			failed++
		}

		results = append(results, res)
	}

	stopConsole()

	if err := formatter.Format(cmd.OutOrStdout(), results); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	logger.Debug("sync finished", slog.Int("cycles", len(results)), slog.Int("failed", failed))

	if failed > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d cycle(s) failed", failed, len(results))}
	}

	return ctx.Err()
}
