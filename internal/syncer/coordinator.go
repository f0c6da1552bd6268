// Package syncer propagates a project's build output to all of its
// destinations once the output directory is present.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/hupe1980/libsync/internal/project"
	"github.com/hupe1980/libsync/internal/transfer"
)

// ErrSourceOutputMissing is reported when the build output directory did
// not appear within the retry budget.
var ErrSourceOutputMissing = errors.New("build output missing")

// Default retry settings.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
)

// Options configures a Coordinator.
type Options struct {
	// MaxRetries is the number of times the output path is polled.
	MaxRetries int

	// RetryDelay separates two polls.
	RetryDelay time.Duration

	// Fs is the filesystem to operate on. Defaults to the OS filesystem.
	Fs afero.Fs

	Logger *slog.Logger
}

// Coordinator waits for build output and fans the transfer out to every
// destination of a project.
type Coordinator struct {
	opts   Options
	copier *transfer.Copier
}

// NewCoordinator creates a coordinator.
func NewCoordinator(opts Options) *Coordinator {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = DefaultMaxRetries
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Coordinator{opts: opts, copier: transfer.New(opts.Fs)}
}

// Sync mirrors p.BuildOutput into every destination, in configured order.
// Every destination is attempted once the output exists; a failure on one
// never prevents the next. Observers are called after each destination.
func (c *Coordinator) Sync(ctx context.Context, p project.Project, observers ...func(Outcome)) *Report {
	logger := c.opts.Logger.With(slog.String("project", p.Name))

	report := &Report{
		Project: p.Name,
		Source:  p.BuildOutput,
	}

	attempts, err := c.waitForOutput(ctx, p.BuildOutput, logger)
	report.Attempts = attempts

	if err != nil {
		report.Err = err

		for _, dest := range p.Destinations {
			o := Outcome{Destination: dest, Status: StatusNotAttempted, Err: err}
			report.Outcomes = append(report.Outcomes, o)
			notify(observers, o)
		}

		logger.Error("sync aborted",
			slog.String("output", p.BuildOutput),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)

		return report
	}

	for _, dest := range p.Destinations {
		start := time.Now()

		o := Outcome{Destination: dest, Status: StatusSucceeded}
		if copyErr := c.copier.Copy(p.BuildOutput, dest); copyErr != nil {
			o.Status = StatusFailed
			o.Err = copyErr
		}

		o.Duration = time.Since(start)

		if o.Err != nil {
			logger.Error("sync failed",
				slog.String("destination", dest),
				slog.String("error", o.Err.Error()),
			)
		} else {
			logger.Info("synced",
				slog.String("destination", dest),
				slog.Duration("took", o.Duration),
			)
		}

		report.Outcomes = append(report.Outcomes, o)
		notify(observers, o)
	}

	return report
}

// waitForOutput polls path up to MaxRetries times. It returns the number of
// polls made.
func (c *Coordinator) waitForOutput(ctx context.Context, path string, logger *slog.Logger) (int, error) {
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		info, err := c.opts.Fs.Stat(path)
		if err == nil && info.IsDir() {
			return attempt, nil
		}

		if attempt == c.opts.MaxRetries {
			break
		}

		logger.Warn("build output not found, retrying",
			slog.String("output", path),
			slog.Int("attempt", attempt),
			slog.Int("maxRetries", c.opts.MaxRetries),
		)

		timer := time.NewTimer(c.opts.RetryDelay)

		select {
		case <-ctx.Done():
			timer.Stop()

			return attempt, fmt.Errorf("waiting for %s: %w", path, ctx.Err())
		case <-timer.C:
		}
	}

	return c.opts.MaxRetries, fmt.Errorf("%w after %d attempt(s): %s", ErrSourceOutputMissing, c.opts.MaxRetries, path)
}

func notify(observers []func(Outcome), o Outcome) {
	for _, fn := range observers {
		if fn != nil {
			fn(o)
		}
	}
}
