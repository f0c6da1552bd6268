package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/libsync/internal/config"
	"github.com/hupe1980/libsync/internal/cycle"
	"github.com/hupe1980/libsync/internal/logging"
	"github.com/hupe1980/libsync/internal/watch"
)

type watchOptions struct {
	initialSync bool
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [name...]",
		Short: "Watch libraries and rebuild and sync them on change",
		Long: `Watch monitors the source tree of every configured library (or only the
named ones) and runs a build followed by a sync to all destinations
whenever a file changes.

Changes arriving while a cycle is running are coalesced into a single
follow-up cycle. The build output folder, hidden directories, node_modules,
editor temp files, and the project's ignore globs never trigger a cycle.

Press Ctrl+C to stop. A running cycle is allowed to finish first.`,
		ValidArgsFunction: completeProjectNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.initialSync, "initial-sync", false, "run one cycle per project at startup")
	f.Duration("debounce", config.DefaultDebounce, "quiet period before a change triggers a cycle (0 disables)")

	return cmd
}

func runWatch(cmd *cobra.Command, names []string, opts *watchOptions) error {
	projects, err := loadProjects(cmd.Context(), names)
	if err != nil {
		return err
	}

	cfg := config.FromContext(cmd.Context())
	logger := logging.FromContext(cmd.Context())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, stopConsole := startConsole(cmd)
	defer stopConsole()

	sup := watch.NewSupervisor(watch.SupervisorOptions{
		Runner:      newCycleRunner(ctx, sink),
		Debounce:    cfg.Debounce,
		InitialSync: opts.initialSync,
		Sink:        sink,
		Logger:      logger,
		OnResult: func(res *cycle.Result) {
			if !res.OK() {
				logger.Debug("cycle failed, still watching",
					slog.String("project", res.Project),
					slog.String("stage", string(res.Stage())),
				)
			}
		},
	})

	logger.Info("watching projects", slog.Any("projects", projects.Names()))

	if err := sup.Run(ctx, projects); err != nil && ctx.Err() == nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}
