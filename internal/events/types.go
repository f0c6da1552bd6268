// Package events carries cycle progress from the core to whoever renders
// it. The core publishes to a Sink and never waits on a subscriber.
package events

import "time"

// Type identifies an event.
type Type string

// Event types.
const (
	BuildStarted   Type = "build.started"
	BuildFinished  Type = "build.finished"
	SyncStarted    Type = "sync.started"
	SyncOutcome    Type = "sync.outcome"
	CycleFinished  Type = "cycle.finished"
	WatchStarted   Type = "watch.started"
	WatchFailed    Type = "watch.failed"
	CycleCoalesced Type = "cycle.coalesced"

	// All subscribes to every type.
	All Type = "*"
)

// Event is a single notification. Payload holds one of the *Payload types
// below, matching Type.
type Event struct {
	Type    Type
	Project string
	Cycle   string
	Time    time.Time
	Payload any
}

// New creates an event stamped with the current time.
func New(t Type, project, cycle string, payload any) Event {
	return Event{
		Type:    t,
		Project: project,
		Cycle:   cycle,
		Time:    time.Now(),
		Payload: payload,
	}
}

// BuildStartedPayload accompanies BuildStarted.
type BuildStartedPayload struct {
	Dir     string
	Command string
	Trigger string
}

// BuildFinishedPayload accompanies BuildFinished.
type BuildFinishedPayload struct {
	Success  bool
	Output   string
	ExitCode int
	Reason   string
	Err      error
	Duration time.Duration
}

// SyncStartedPayload accompanies SyncStarted.
type SyncStartedPayload struct {
	Source       string
	Destinations []string
}

// SyncOutcomePayload accompanies SyncOutcome, once per destination.
type SyncOutcomePayload struct {
	Destination string
	Status      string
	Err         error
	Duration    time.Duration
}

// CycleFinishedPayload accompanies CycleFinished.
type CycleFinishedPayload struct {
	OK bool

	// Stage is the failing stage ("build", "sync") or empty.
	Stage    string
	Err      error
	Summary  string
	Version  string
	Duration time.Duration
}

// WatchStartedPayload accompanies WatchStarted.
type WatchStartedPayload struct {
	Root        string
	Directories int
}

// WatchFailedPayload accompanies WatchFailed.
type WatchFailedPayload struct {
	Root string
	Err  error
}

// CycleCoalescedPayload accompanies CycleCoalesced: a trigger arrived while
// a follow-up cycle was already pending.
type CycleCoalescedPayload struct {
	Trigger string
}
