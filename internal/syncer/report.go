package syncer

import (
	"fmt"
	"time"
)

// Status is the per-destination result of a sync.
type Status string

// Destination statuses.
const (
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusNotAttempted Status = "not-attempted"
)

// Outcome records what happened to one destination.
type Outcome struct {
	Destination string
	Status      Status
	Err         error
	Duration    time.Duration
}

// Success reports whether the destination now mirrors the output.
func (o Outcome) Success() bool {
	return o.Status == StatusSucceeded
}

// Report collects the outcomes of one sync, in destination order.
type Report struct {
	Project  string
	Source   string
	Attempts int
	Outcomes []Outcome

	// Err is set when the sync was aborted before any copy.
	Err error
}

// OK reports whether every destination succeeded.
func (r *Report) OK() bool {
	if r.Err != nil {
		return false
	}

	for _, o := range r.Outcomes {
		if !o.Success() {
			return false
		}
	}

	return true
}

// Succeeded returns the destinations that were synced.
func (r *Report) Succeeded() []Outcome {
	return r.filter(StatusSucceeded)
}

// Failed returns the destinations that were attempted and failed.
func (r *Report) Failed() []Outcome {
	return r.filter(StatusFailed)
}

// Summary returns a one-line description such as "2/3 destination(s) synced".
func (r *Report) Summary() string {
	if r.Err != nil {
		return fmt.Sprintf("aborted: %v", r.Err)
	}

	return fmt.Sprintf("%d/%d destination(s) synced", len(r.Succeeded()), len(r.Outcomes))
}

func (r *Report) filter(s Status) []Outcome {
	var out []Outcome

	for _, o := range r.Outcomes {
		if o.Status == s {
			out = append(out, o)
		}
	}

	return out
}
