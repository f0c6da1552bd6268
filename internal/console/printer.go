// Package console renders cycle events and results for humans and scripts.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/hupe1980/libsync/internal/events"
)

// maxOutputLines bounds the build output echoed after a failed build.
const maxOutputLines = 20

type styles struct {
	project lipgloss.Style
	ok      lipgloss.Style
	fail    lipgloss.Style
	warn    lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		project: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("42")),
		fail:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("214")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// Printer writes one line per event. It implements events.Sink.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	styles styles
	now    func() time.Time
}

// NewPrinter creates a printer writing to w. With noColor, or when w is not
// a terminal, output is plain text.
func NewPrinter(w io.Writer, noColor bool) *Printer {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}

	return &Printer{
		w:      w,
		styles: newStyles(r),
		now:    time.Now,
	}
}

// Publish implements events.Sink.
func (p *Printer) Publish(e events.Event) {
	line, ok := p.Render(e)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = fmt.Fprintln(p.w, line)
}

// Follow prints events from ch until it is closed or ctx is done.
func (p *Printer) Follow(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}

			p.Publish(e)
		}
	}
}

// Render formats e. It returns false for events that print nothing.
func (p *Printer) Render(e events.Event) (string, bool) {
	s := p.styles
	ts := e.Time
	if ts.IsZero() {
		ts = p.now()
	}

	prefix := s.muted.Render("["+ts.Format("15:04:05")+"]") + " " + s.project.Render(e.Project)

	var body string

	switch pl := e.Payload.(type) {
	case events.WatchStartedPayload:
		body = fmt.Sprintf("watching %s (%d directories)", pl.Root, pl.Directories)

	case events.WatchFailedPayload:
		body = s.fail.Render("watch failed") + ": " + errString(pl.Err)

	case events.BuildStartedPayload:
		body = fmt.Sprintf("building (%s): %s", pl.Trigger, s.muted.Render(pl.Command))

	case events.BuildFinishedPayload:
		if pl.Success {
			body = s.ok.Render("build ok") + " " + s.muted.Render(round(pl.Duration))

			break
		}

		body = s.fail.Render("build failed") + ": " + errString(pl.Err) + indentTail(pl.Output)

	case events.SyncStartedPayload:
		body = fmt.Sprintf("syncing %s to %d destination(s)", pl.Source, len(pl.Destinations))

	case events.SyncOutcomePayload:
		switch pl.Status {
		case "succeeded":
			body = "  " + s.ok.Render("✓") + " " + pl.Destination
		case "failed":
			body = "  " + s.fail.Render("✗") + " " + pl.Destination + ": " + errString(pl.Err)
		default:
			body = "  " + s.warn.Render("-") + " " + pl.Destination + ": skipped: " + errString(pl.Err)
		}

	case events.CycleFinishedPayload:
		detail := pl.Summary
		if pl.Version != "" {
			detail += ", v" + pl.Version
		}

		detail += ", " + round(pl.Duration)

		if pl.OK {
			body = s.ok.Render("cycle ok") + " " + s.muted.Render("("+detail+")")

			break
		}

		body = s.fail.Render("cycle failed at "+pl.Stage) + " " + s.muted.Render("("+detail+")")

	case events.CycleCoalescedPayload:
		body = s.muted.Render("change queued behind running cycle")

	default:
		return "", false
	}

	return prefix + " " + body, true
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}

	return err.Error()
}

func round(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}

	return d.Round(10 * time.Millisecond).String()
}

// indentTail returns the last lines of out, indented, prefixed by a newline.
func indentTail(out string) string {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return ""
	}

	lines := strings.Split(out, "\n")
	if len(lines) > maxOutputLines {
		lines = lines[len(lines)-maxOutputLines:]
	}

	return "\n    " + strings.Join(lines, "\n    ")
}
