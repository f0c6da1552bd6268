package watch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/libsync/internal/cycle"
	"github.com/hupe1980/libsync/internal/events"
	"github.com/hupe1980/libsync/internal/project"
)

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	// Runner executes cycles. Required.
	Runner cycle.CycleRunner

	// Debounce is passed to every ChangeWatcher.
	Debounce time.Duration

	// InitialSync runs one cycle per project at startup.
	InitialSync bool

	Sink   events.Sink
	Logger *slog.Logger

	// OnResult is called after every cycle of every project.
	OnResult func(*cycle.Result)
}

// Supervisor runs a ChangeWatcher and a cycle worker per project.
type Supervisor struct {
	opts SupervisorOptions
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Sink == nil {
		opts.Sink = events.Discard
	}

	return &Supervisor{opts: opts}
}

// Run watches every project until ctx is cancelled, then stops all
// watchers and waits for in-flight cycles. A project whose watcher fails
// stays idle while the others keep running; only a worker that cannot start
// ends the run.
func (s *Supervisor) Run(ctx context.Context, projects project.Projects) error {
	if s.opts.Runner == nil {
		return errors.New("supervisor: no cycle runner")
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, p := range projects {
		g.Go(func() error {
			return s.runProject(gctx, p)
		})
	}

	err := g.Wait()

	s.opts.Logger.Info("all watchers stopped", slog.Int("projects", len(projects)))

	return err
}

func (s *Supervisor) runProject(ctx context.Context, p project.Project) error {
	worker := cycle.NewWorker(p, s.opts.Runner, cycle.WorkerOptions{
		Sink:     s.opts.Sink,
		Logger:   s.opts.Logger,
		OnResult: s.opts.OnResult,
	})

	if err := worker.Start(ctx); err != nil {
		return err
	}
	defer worker.Stop()

	if s.opts.InitialSync {
		worker.Trigger(cycle.TriggerInitial)
	}

	cw := NewChangeWatcher(p, func(string) {
		worker.Trigger(cycle.TriggerChange)
	}, Options{
		Debounce: s.opts.Debounce,
		Sink:     s.opts.Sink,
		Logger:   s.opts.Logger,
	})

	if err := cw.Run(ctx); err != nil {
		var setupErr *SetupError
		if !errors.As(err, &setupErr) {
			s.opts.Logger.Error("watcher stopped, project stays idle",
				slog.String("project", p.Name),
				slog.String("error", err.Error()),
			)
		}

		// Keep the worker for the initial cycle until shutdown.
		<-ctx.Done()
	}

	return nil
}
