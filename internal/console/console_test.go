package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/libsync/internal/build"
	"github.com/hupe1980/libsync/internal/cycle"
	"github.com/hupe1980/libsync/internal/events"
	"github.com/hupe1980/libsync/internal/syncer"
)

var fixedTime = time.Date(2024, 5, 1, 14, 3, 9, 0, time.UTC)

func event(t events.Type, payload any) events.Event {
	return events.Event{Type: t, Project: "lib", Cycle: "c1", Time: fixedTime, Payload: payload}
}

// ---------------------------------------------------------------------------
// Printer
// ---------------------------------------------------------------------------

func TestPrinter_Render(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{}, true)

	tests := []struct {
		name  string
		event events.Event
		want  []string
	}{
		{
			name:  "watch started",
			event: event(events.WatchStarted, events.WatchStartedPayload{Root: "/src", Directories: 4}),
			want:  []string{"[14:03:09]", "lib", "watching /src (4 directories)"},
		},
		{
			name:  "watch failed",
			event: event(events.WatchFailed, events.WatchFailedPayload{Root: "/src", Err: errors.New("no such file")}),
			want:  []string{"watch failed: no such file"},
		},
		{
			name:  "build started",
			event: event(events.BuildStarted, events.BuildStartedPayload{Command: "npm run build", Trigger: "change"}),
			want:  []string{"building (change): npm run build"},
		},
		{
			name: "build failed with output",
			event: event(events.BuildFinished, events.BuildFinishedPayload{
				Err:    errors.New("build exited with status 2"),
				Output: "src/index.ts(3,1): error TS2304\n",
			}),
			want: []string{"build failed: build exited with status 2", "\n    src/index.ts(3,1): error TS2304"},
		},
		{
			name:  "destination failed",
			event: event(events.SyncOutcome, events.SyncOutcomePayload{Destination: "/appB", Status: "failed", Err: errors.New("permission denied")}),
			want:  []string{"✗ /appB: permission denied"},
		},
		{
			name:  "destination skipped",
			event: event(events.SyncOutcome, events.SyncOutcomePayload{Destination: "/appB", Status: "not-attempted", Err: errors.New("build output missing")}),
			want:  []string{"/appB: skipped: build output missing"},
		},
		{
			name: "cycle finished",
			event: event(events.CycleFinished, events.CycleFinishedPayload{
				OK: true, Summary: "2/2 destination(s) synced", Version: "1.2.0", Duration: 1500 * time.Millisecond,
			}),
			want: []string{"cycle ok", "2/2 destination(s) synced, v1.2.0, 1.5s"},
		},
		{
			name:  "cycle failed",
			event: event(events.CycleFinished, events.CycleFinishedPayload{Stage: "sync", Summary: "1/2 destination(s) synced"}),
			want:  []string{"cycle failed at sync"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, ok := p.Render(tt.event)
			require.True(t, ok)

			for _, w := range tt.want {
				assert.Contains(t, line, w)
			}
		})
	}
}

func TestPrinter_UnknownPayloadIgnored(t *testing.T) {
	var buf bytes.Buffer

	p := NewPrinter(&buf, true)
	p.Publish(events.Event{Type: "custom", Payload: 42})

	assert.Empty(t, buf.String())
}

func TestPrinter_OutputTailIsBounded(t *testing.T) {
	var lines []string
	for i := range 50 {
		lines = append(lines, strings.Repeat("x", i%5+1))
	}

	tail := indentTail(strings.Join(lines, "\n"))
	assert.Equal(t, maxOutputLines, strings.Count(tail, "\n    "))
}

func TestPrinter_Follow(t *testing.T) {
	var buf bytes.Buffer

	p := NewPrinter(&buf, true)
	b := events.NewBroker(0)
	ch := b.Subscribe()

	b.Publish(event(events.BuildStarted, events.BuildStartedPayload{Command: "make", Trigger: "manual"}))
	b.Publish(event(events.CycleFinished, events.CycleFinishedPayload{OK: true, Summary: "built (no destinations)"}))
	b.Close()

	p.Follow(context.Background(), ch)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "building (manual): make")
	assert.Contains(t, out, "built (no destinations)")
}

// ---------------------------------------------------------------------------
// Formatter
// ---------------------------------------------------------------------------

func sampleResults() []*cycle.Result {
	return []*cycle.Result{
		{
			ID:      "c1",
			Project: "ui",
			Trigger: cycle.TriggerManual,
			Build:   build.Result{Success: true},
			Sync: &syncer.Report{Outcomes: []syncer.Outcome{
				{Destination: "/appA/node_modules/ui", Status: syncer.StatusSucceeded},
				{Destination: "/appB/node_modules/ui", Status: syncer.StatusFailed, Err: errors.New("permission denied")},
			}},
			Version: "1.0.0",
		},
		{
			ID:      "c2",
			Project: "utils",
			Trigger: cycle.TriggerManual,
			Build:   build.Result{ExitCode: 1, Reason: build.ReasonExitStatus, Err: errors.New("build exited with status 1")},
		},
	}
}

func TestNewFormatter(t *testing.T) {
	for _, name := range []string{"", "table", "TABLE", " json "} {
		f, err := NewFormatter(name)
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}

	_, err := NewFormatter("sarif")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, (&TableFormatter{}).Format(&buf, sampleResults()))

	out := buf.String()
	assert.Contains(t, out, "PROJECT")
	assert.Contains(t, out, "/appA/node_modules/ui")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "permission denied")
	assert.Contains(t, out, "build failed")
	assert.Contains(t, out, "Cycles: 2 total (0 ok, 2 failed)")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, (&JSONFormatter{}).Format(&buf, sampleResults()))

	var got jsonResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 2, got.Failed)
	require.Len(t, got.Cycles, 2)

	assert.Equal(t, "ui", got.Cycles[0].Project)
	assert.Len(t, got.Cycles[0].Destinations, 2)
	assert.Equal(t, "failed", got.Cycles[0].Destinations[1].Status)

	assert.Equal(t, "utils", got.Cycles[1].Project)
	assert.Equal(t, "exit-status", got.Cycles[1].Build.Reason)
	assert.Empty(t, got.Cycles[1].Destinations)
}
