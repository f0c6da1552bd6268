package cycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/libsync/internal/build"
	"github.com/hupe1980/libsync/internal/syncer"
)

// Trigger names what started a cycle.
type Trigger string

// Triggers.
const (
	TriggerChange  Trigger = "change"
	TriggerManual  Trigger = "manual"
	TriggerInitial Trigger = "initial"
)

// Stage names the step a cycle failed in.
type Stage string

// Stages.
const (
	StageNone  Stage = ""
	StageBuild Stage = "build"
	StageSync  Stage = "sync"
)

// Result is the outcome of one build-then-sync cycle.
type Result struct {
	ID       string
	Project  string
	Trigger  Trigger
	Started  time.Time
	Duration time.Duration

	Build build.Result

	// Sync is nil when the build failed or the project has no destinations.
	Sync *syncer.Report

	// Version is the version of the synced package.json, if any.
	Version string

	// Panic is set when the cycle was aborted by a recovered panic.
	Panic error

	// stage is the step in progress, reported for panics.
	stage Stage
}

// OK reports whether the build succeeded and every destination was synced.
func (r *Result) OK() bool {
	if r.Panic != nil || !r.Build.Success {
		return false
	}

	return r.Sync == nil || r.Sync.OK()
}

// Stage returns the failing stage, or StageNone for a successful cycle.
func (r *Result) Stage() Stage {
	switch {
	case r.OK():
		return StageNone
	case r.Panic != nil && r.stage != StageNone:
		return r.stage
	case !r.Build.Success:
		return StageBuild
	default:
		return StageSync
	}
}

// Err returns the first error of the cycle.
func (r *Result) Err() error {
	switch {
	case r.Panic != nil:
		return r.Panic
	case !r.Build.Success:
		if r.Build.Err != nil {
			return r.Build.Err
		}

		return errors.New("build failed")
	case r.Sync == nil:
		return nil
	case r.Sync.Err != nil:
		return r.Sync.Err
	}

	failed := r.Sync.Failed()
	if len(failed) == 0 {
		return nil
	}

	return fmt.Errorf("%d of %d destination(s) failed: %s: %w",
		len(failed), len(r.Sync.Outcomes), failed[0].Destination, failed[0].Err)
}

// Summary returns a one-line description of the cycle.
func (r *Result) Summary() string {
	switch {
	case r.Panic != nil:
		return fmt.Sprintf("aborted: %v", r.Panic)
	case !r.Build.Success:
		return fmt.Sprintf("build failed: %v", r.Err())
	case r.Sync == nil:
		return "built (no destinations)"
	default:
		return r.Sync.Summary()
	}
}
