package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hupe1980/libsync/internal/events"
	"github.com/hupe1980/libsync/internal/project"
)

// CycleRunner runs one cycle for a project.
type CycleRunner interface {
	Run(ctx context.Context, p project.Project, trigger Trigger) *Result
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Sink   events.Sink
	Logger *slog.Logger

	// OnResult is called after every cycle, on the worker goroutine.
	OnResult func(*Result)
}

// Worker serializes the cycles of one project. Triggers that arrive while a
// cycle is running collapse into a single pending follow-up.
type Worker struct {
	runner CycleRunner
	opts   WorkerOptions

	mu      sync.Mutex
	project project.Project
	running bool
	stopped bool

	pending chan Trigger
	stop    chan struct{}
	done    chan struct{}
}

// NewWorker creates a worker for p. It must be started with Start.
func NewWorker(p project.Project, runner CycleRunner, opts WorkerOptions) *Worker {
	if opts.Sink == nil {
		opts.Sink = events.Discard
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Worker{
		runner:  runner,
		opts:    opts,
		project: p.Clone(),
		pending: make(chan Trigger, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Project returns a copy of the worker's current project.
func (w *Worker) Project() project.Project {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.project.Clone()
}

// Update replaces the project configuration. A running cycle keeps the
// configuration it started with.
func (w *Worker) Update(p project.Project) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.project = p.Clone()
}

// Start launches the worker goroutine. Cycles run detached from ctx
// cancellation so an in-flight cycle always completes; cancelling ctx stops
// the worker like Stop does.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker for %s already running", w.project.Name)
	}

	if w.stopped {
		return fmt.Errorf("worker for %s stopped", w.project.Name)
	}

	w.running = true

	go w.loop(ctx)

	return nil
}

// Trigger requests a cycle without blocking. It returns false once the
// worker is stopped.
func (w *Worker) Trigger(t Trigger) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return false
	}

	select {
	case w.pending <- t:
	default:
		w.opts.Logger.Debug("cycle already pending, coalescing",
			slog.String("project", w.project.Name),
			slog.String("trigger", string(t)),
		)
		w.opts.Sink.Publish(events.New(events.CycleCoalesced, w.project.Name, "",
			events.CycleCoalescedPayload{Trigger: string(t)}))
	}

	return true
}

// Stop rejects further triggers, drops a pending cycle, waits for the
// in-flight cycle to finish and for the goroutine to exit.
func (w *Worker) Stop() {
	w.mu.Lock()

	if w.stopped {
		w.mu.Unlock()
		w.wait()

		return
	}

	w.stopped = true
	close(w.stop)
	w.mu.Unlock()

	w.wait()
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) wait() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	if running {
		<-w.done
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	cycleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			w.markStopped()

			return
		case t := <-w.pending:
			// Stop wins over a pending trigger.
			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				w.markStopped()

				return
			default:
			}

			w.runOne(cycleCtx, t)
		}
	}
}

func (w *Worker) runOne(ctx context.Context, t Trigger) {
	p := w.Project()

	defer func() {
		if rec := recover(); rec != nil {
			w.opts.Logger.Error("cycle runner panicked",
				slog.String("project", p.Name),
				slog.Any("panic", rec),
			)
		}
	}()

	res := w.runner.Run(ctx, p, t)

	if w.opts.OnResult != nil && res != nil {
		w.opts.OnResult(res)
	}
}

func (w *Worker) markStopped() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.stopped {
		w.stopped = true
		close(w.stop)
	}
}
