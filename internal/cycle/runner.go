// Package cycle runs build-then-sync cycles and serializes them per project.
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/hupe1980/libsync/internal/build"
	"github.com/hupe1980/libsync/internal/events"
	"github.com/hupe1980/libsync/internal/project"
	"github.com/hupe1980/libsync/internal/syncer"
	"github.com/hupe1980/libsync/internal/toolchain"
)

// Builder runs a build command in a directory.
type Builder interface {
	Run(ctx context.Context, dir, command string) build.Result
}

// Syncer propagates a project's build output to its destinations.
type Syncer interface {
	Sync(ctx context.Context, p project.Project, observers ...func(syncer.Outcome)) *syncer.Report
}

// Options configures a Runner. Nil fields get defaults.
type Options struct {
	Builder Builder
	Syncer  Syncer
	Sink    events.Sink
	Fs      afero.Fs
	Logger  *slog.Logger
}

// Runner executes one cycle at a time for the caller. It holds no
// per-project state and may be shared between workers.
type Runner struct {
	builder Builder
	syncer  Syncer
	sink    events.Sink
	fs      afero.Fs
	logger  *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	if opts.Builder == nil {
		opts.Builder = build.NewRunner(build.Options{Logger: opts.Logger})
	}

	if opts.Syncer == nil {
		opts.Syncer = syncer.NewCoordinator(syncer.Options{Fs: opts.Fs, Logger: opts.Logger})
	}

	if opts.Sink == nil {
		opts.Sink = events.Discard
	}

	return &Runner{
		builder: opts.Builder,
		syncer:  opts.Syncer,
		sink:    opts.Sink,
		fs:      opts.Fs,
		logger:  opts.Logger,
	}
}

// Run builds p and, if the build succeeds and p has destinations, syncs it.
// Every failure is captured in the Result; Run never panics.
func (r *Runner) Run(ctx context.Context, p project.Project, trigger Trigger) (res *Result) {
	res = &Result{
		ID:      uuid.NewString(),
		Project: p.Name,
		Trigger: trigger,
		Started: time.Now(),
		stage:   StageBuild,
	}

	logger := r.logger.With(
		slog.String("project", p.Name),
		slog.String("cycle", res.ID),
	)

	defer func() {
		if rec := recover(); rec != nil {
			res.Panic = fmt.Errorf("cycle panicked in %s stage: %v", res.stage, rec)
		}

		res.Duration = time.Since(res.Started)
		r.finish(res, logger)
	}()

	r.publish(events.BuildStarted, res, events.BuildStartedPayload{
		Dir:     p.Src,
		Command: p.BuildCommand,
		Trigger: string(trigger),
	})

	logger.Info("building", slog.String("trigger", string(trigger)))

	res.Build = r.builder.Run(ctx, p.Src, p.BuildCommand)

	r.publish(events.BuildFinished, res, events.BuildFinishedPayload{
		Success:  res.Build.Success,
		Output:   res.Build.Output,
		ExitCode: res.Build.ExitCode,
		Reason:   string(res.Build.Reason),
		Err:      res.Build.Err,
		Duration: res.Build.Duration,
	})

	if !res.Build.Success {
		logger.Error("build failed",
			slog.String("reason", string(res.Build.Reason)),
			slog.Int("exitCode", res.Build.ExitCode),
			slog.String("output", res.Build.Output),
		)

		return res
	}

	logger.Info("build succeeded", slog.Duration("took", res.Build.Duration))

	if !p.SyncEligible() {
		logger.Info("no destinations configured, skipping sync")

		return res
	}

	res.stage = StageSync

	r.publish(events.SyncStarted, res, events.SyncStartedPayload{
		Source:       p.BuildOutput,
		Destinations: append([]string(nil), p.Destinations...),
	})

	res.Sync = r.syncer.Sync(ctx, p, func(o syncer.Outcome) {
		r.publish(events.SyncOutcome, res, events.SyncOutcomePayload{
			Destination: o.Destination,
			Status:      string(o.Status),
			Err:         o.Err,
			Duration:    o.Duration,
		})
	})

	if res.Sync.OK() {
		res.Version = r.packageVersion(p, logger)
	}

	return res
}

func (r *Runner) packageVersion(p project.Project, logger *slog.Logger) string {
	v, err := toolchain.PackageVersion(r.fs, p.BuildOutput)
	if err != nil {
		logger.Debug("reading package version", slog.String("error", err.Error()))

		return ""
	}

	if v == nil {
		return ""
	}

	return v.String()
}

func (r *Runner) finish(res *Result, logger *slog.Logger) {
	payload := events.CycleFinishedPayload{
		OK:       res.OK(),
		Stage:    string(res.Stage()),
		Err:      res.Err(),
		Summary:  res.Summary(),
		Version:  res.Version,
		Duration: res.Duration,
	}

	r.publish(events.CycleFinished, res, payload)

	attrs := []any{
		slog.String("summary", payload.Summary),
		slog.Duration("took", res.Duration),
	}

	if res.Version != "" {
		attrs = append(attrs, slog.String("version", res.Version))
	}

	if payload.OK {
		logger.Info("cycle finished", attrs...)

		return
	}

	attrs = append(attrs, slog.String("stage", payload.Stage))
	logger.Error("cycle failed", attrs...)
}

func (r *Runner) publish(t events.Type, res *Result, payload any) {
	r.sink.Publish(events.New(t, res.Project, res.ID, payload))
}
