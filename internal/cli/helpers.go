package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hupe1980/libsync/internal/build"
	"github.com/hupe1980/libsync/internal/config"
	"github.com/hupe1980/libsync/internal/console"
	"github.com/hupe1980/libsync/internal/cycle"
	"github.com/hupe1980/libsync/internal/events"
	"github.com/hupe1980/libsync/internal/logging"
	"github.com/hupe1980/libsync/internal/project"
	"github.com/hupe1980/libsync/internal/syncer"
)

// consoleBufferSize bounds the events queued for the console printer.
const consoleBufferSize = 256

// loadProjects reads the configured project store and selects the named
// projects (all of them when names is empty). An unknown name or an empty
// selection is a usage error.
func loadProjects(ctx context.Context, names []string) (project.Projects, error) {
	cfg := config.FromContext(ctx)

	all, err := project.NewStore(cfg.ProjectsFile).Load()
	if err != nil {
		return nil, err
	}

	selected, err := all.Select(names...)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}

	if len(selected) == 0 {
		return nil, &ExitError{Code: 2, Err: fmt.Errorf("no projects configured in %s", cfg.ProjectsFile)}
	}

	return selected, nil
}

// newCycleRunner wires the build runner and sync coordinator from the
// loaded configuration.
func newCycleRunner(ctx context.Context, sink events.Sink) *cycle.Runner {
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	return cycle.NewRunner(cycle.Options{
		Builder: build.NewRunner(build.Options{
			Timeout: cfg.BuildTimeout,
			Logger:  logger,
		}),
		Syncer: syncer.NewCoordinator(syncer.Options{
			MaxRetries: cfg.Retries,
			RetryDelay: cfg.RetryDelay,
			Logger:     logger,
		}),
		Sink:   sink,
		Logger: logger,
	})
}

// startConsole routes cycle events through a broker to a console printer on
// the command's stderr. The returned stop function closes the broker and
// waits until every queued event has been printed. With --quiet no events
// are printed.
func startConsole(cmd *cobra.Command) (events.Sink, func()) {
	cfg := config.FromContext(cmd.Context())
	if cfg.Quiet {
		return events.Discard, func() {}
	}

	broker := events.NewBroker(consoleBufferSize)
	ch := broker.Subscribe()
	printer := console.NewPrinter(cmd.ErrOrStderr(), cfg.NoColor)

	done := make(chan struct{})

	go func() {
		defer close(done)
		printer.Follow(context.Background(), ch)
	}()

	stop := func() {
		broker.Close()
		<-done
	}

	logging.FromContext(cmd.Context()).Debug("console attached", slog.Int("buffer", consoleBufferSize))

	return broker, stop
}

// completeProjectNames offers the names from the projects file that are not
// already on the command line.
func completeProjectNames(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	path := config.DefaultProjectsFile
	if f := cmd.Flag("projects"); f != nil {
		path = f.Value.String()
	}

	projects, err := project.NewStore(path).Load()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	var names []string

	for _, name := range projects.Names() {
		if !slices.Contains(args, name) {
			names = append(names, name)
		}
	}

	return names, cobra.ShellCompDirectiveNoFileComp
}
