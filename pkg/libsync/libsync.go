// Package libsync provides a public Go API for building a local library and
// mirroring its build output into dependent applications.
//
// This package exposes the libsync build-and-sync cycle as a library,
// allowing programmatic use without the CLI.
//
// Basic usage:
//
//	result, err := libsync.Sync(ctx, libsync.Project{
//	    Name:         "ui-kit",
//	    Src:          "../ui-kit",
//	    BuildCommand: "npm run build",
//	    BuildOutput:  "../ui-kit/dist",
//	    Destinations: []string{"node_modules/ui-kit"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Summary)
//
// With options:
//
//	result, err := libsync.Sync(ctx, p,
//	    libsync.WithRetries(5),
//	    libsync.WithRetryDelay(time.Second),
//	    libsync.WithBuildTimeout(2*time.Minute),
//	)
package libsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/libsync/internal/build"
	"github.com/hupe1980/libsync/internal/cycle"
	"github.com/hupe1980/libsync/internal/events"
	"github.com/hupe1980/libsync/internal/project"
	"github.com/hupe1980/libsync/internal/syncer"
	"github.com/hupe1980/libsync/internal/watch"
)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Option configures a build-and-sync cycle.
// Use the With* functions to create Options.
type Option func(*options)

type options struct {
	retries      int
	retryDelay   time.Duration
	buildTimeout time.Duration
	debounce     time.Duration
	initialSync  bool
	logger       *slog.Logger
	sink         func(Event)
	onResult     func(*Result)
}

// WithRetries sets how often the build output is polled before the sync is
// abandoned (default 3).
func WithRetries(n int) Option { return func(o *options) { o.retries = n } }

// WithRetryDelay sets the delay between two polls of the build output
// (default 500ms).
func WithRetryDelay(d time.Duration) Option { return func(o *options) { o.retryDelay = d } }

// WithBuildTimeout bounds the build. Zero, the default, means no limit.
func WithBuildTimeout(d time.Duration) Option { return func(o *options) { o.buildTimeout = d } }

// WithDebounce sets the quiet period used by Watch (default 100ms).
func WithDebounce(d time.Duration) Option { return func(o *options) { o.debounce = d } }

// WithInitialSync makes Watch run one cycle per project at startup.
func WithInitialSync() Option { return func(o *options) { o.initialSync = true } }

// WithLogger sets the structured logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithSink receives every progress event of a cycle. The function is called
// synchronously from the cycle goroutine and must not block.
func WithSink(fn func(Event)) Option { return func(o *options) { o.sink = fn } }

// WithOnResult receives the Result of every cycle Watch runs.
func WithOnResult(fn func(*Result)) Option { return func(o *options) { o.onResult = fn } }

// Project is a library together with the folders its build output is
// mirrored into.
type Project struct {
	Name         string
	Src          string
	BuildCommand string
	BuildOutput  string
	Destinations []string
	Ignore       []string
}

// Event is a progress notification emitted during a cycle.
type Event struct {
	// Type is one of "build.started", "build.finished", "sync.started",
	// "sync.outcome", "cycle.finished", "watch.started", "watch.failed" and
	// "cycle.coalesced".
	Type    string
	Project string
	Cycle   string
	Time    time.Time

	// Success is set on build.finished and cycle.finished.
	Success bool

	// Output is the build log on build.finished.
	Output string

	// Destination and Status describe one sync.outcome. Status is
	// "succeeded", "failed" or "not-attempted".
	Destination string
	Status      string

	// Stage names the failing stage on cycle.finished: "build", "sync" or
	// empty.
	Stage string

	// Summary is the one-line cycle description on cycle.finished.
	Summary string

	// Err is the failure of a build, a destination, a cycle or a watch.
	Err error
}

// DestinationResult is the outcome of mirroring into one destination.
type DestinationResult struct {
	Destination string
	// Status is "succeeded", "failed" or "not-attempted".
	Status string
	Err    error
}

// Result holds the outcome of one cycle.
type Result struct {
	// CycleID correlates the cycle's events and log records.
	CycleID string

	// OK is true when the build succeeded and every destination was synced.
	OK bool

	// Stage is "build" or "sync" when the cycle failed, empty otherwise.
	Stage string

	// BuildOutput is the combined stdout and stderr of the build command.
	BuildOutput string

	// Destinations lists one entry per destination, in configured order.
	// It is empty when the build failed or the project has no destinations.
	Destinations []DestinationResult

	// Version is the version field of the build output's package.json, if
	// any.
	Version string

	// Summary is a one-line description of the cycle.
	Summary string

	Duration time.Duration
}

// Sync builds p once and mirrors its build output into every destination.
//
// An invalid project returns a nil Result. Otherwise the Result is always
// returned; the error is non-nil when the build or any destination failed.
func Sync(ctx context.Context, p Project, opts ...Option) (*Result, error) {
	o := newOptions(opts)

	ip, err := toProject(p)
	if err != nil {
		return nil, err
	}

	res := newRunner(o).Run(ctx, ip, cycle.TriggerManual)

	return fromResult(res), res.Err()
}

// Watch watches every project and runs a cycle on each qualifying change
// until ctx is cancelled. Per-cycle failures are reported through WithSink,
// WithOnResult and the logger; they do not stop watching.
func Watch(ctx context.Context, projects []Project, opts ...Option) error {
	if len(projects) == 0 {
		return errors.New("no projects to watch")
	}

	o := newOptions(opts)

	list := make(project.Projects, 0, len(projects))

	for _, p := range projects {
		ip, err := toProject(p)
		if err != nil {
			return err
		}

		list = append(list, ip)
	}

	if err := list.Validate(); err != nil {
		return err
	}

	sup := watch.NewSupervisor(watch.SupervisorOptions{
		Runner:      newRunner(o),
		Debounce:    o.debounce,
		InitialSync: o.initialSync,
		Sink:        sinkFor(o),
		Logger:      o.logger,
		OnResult:    onResultFor(o),
	})

	return sup.Run(ctx, list)
}

func newOptions(opts []Option) *options {
	o := &options{
		retries:    syncer.DefaultMaxRetries,
		retryDelay: syncer.DefaultRetryDelay,
		debounce:   100 * time.Millisecond,
	}

	for _, fn := range opts {
		fn(o)
	}

	if o.logger == nil {
		o.logger = discardLogger()
	}

	return o
}

func newRunner(o *options) *cycle.Runner {
	return cycle.NewRunner(cycle.Options{
		Builder: build.NewRunner(build.Options{Timeout: o.buildTimeout, Logger: o.logger}),
		Syncer: syncer.NewCoordinator(syncer.Options{
			MaxRetries: o.retries,
			RetryDelay: o.retryDelay,
			Logger:     o.logger,
		}),
		Sink:   sinkFor(o),
		Logger: o.logger,
	})
}

func sinkFor(o *options) events.Sink {
	if o.sink == nil {
		return events.Discard
	}

	return events.SinkFunc(func(e events.Event) {
		o.sink(fromEvent(e))
	})
}

func onResultFor(o *options) func(*cycle.Result) {
	if o.onResult == nil {
		return nil
	}

	return func(res *cycle.Result) { o.onResult(fromResult(res)) }
}

func fromEvent(e events.Event) Event {
	out := Event{Type: string(e.Type), Project: e.Project, Cycle: e.Cycle, Time: e.Time}

	switch p := e.Payload.(type) {
	case events.BuildFinishedPayload:
		out.Success = p.Success
		out.Output = p.Output
		out.Err = p.Err
	case events.SyncOutcomePayload:
		out.Destination = p.Destination
		out.Status = p.Status
		out.Err = p.Err
	case events.CycleFinishedPayload:
		out.Success = p.OK
		out.Stage = p.Stage
		out.Summary = p.Summary
		out.Err = p.Err
	case events.WatchFailedPayload:
		out.Err = p.Err
	}

	return out
}

func toProject(p Project) (project.Project, error) {
	ip := project.Project{
		Name:         p.Name,
		Src:          p.Src,
		BuildCommand: p.BuildCommand,
		BuildOutput:  p.BuildOutput,
		Destinations: p.Destinations,
		Ignore:       p.Ignore,
	}

	if err := ip.Validate(); err != nil {
		return project.Project{}, fmt.Errorf("invalid project: %w", err)
	}

	return ip.Resolve(""), nil
}

func fromResult(res *cycle.Result) *Result {
	out := &Result{
		CycleID:     res.ID,
		OK:          res.OK(),
		Stage:       string(res.Stage()),
		BuildOutput: res.Build.Output,
		Version:     res.Version,
		Summary:     res.Summary(),
		Duration:    res.Duration,
	}

	if res.Sync != nil {
		for _, o := range res.Sync.Outcomes {
			out.Destinations = append(out.Destinations, DestinationResult{
				Destination: o.Destination,
				Status:      string(o.Status),
				Err:         o.Err,
			})
		}
	}

	return out
}
