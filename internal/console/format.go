package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hupe1980/libsync/internal/cycle"
)

// Formatter writes finished cycle results to a writer.
type Formatter interface {
	Format(w io.Writer, results []*cycle.Result) error
}

// NewFormatter returns a formatter for the given format name.
// Supported: "table" (default), "json".
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		return &TableFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q: use table or json", format)
	}
}

// --- Table Formatter ---

// TableFormatter writes one row per destination.
type TableFormatter struct{}

// Format writes the results as a human-readable table.
func (f *TableFormatter) Format(w io.Writer, results []*cycle.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "PROJECT\tDESTINATION\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(tw, "-------\t-----------\t------\t------")

	failed := 0

	for _, r := range results {
		if !r.OK() {
			failed++
		}

		if r.Sync == nil || len(r.Sync.Outcomes) == 0 {
			status := "built"
			if !r.OK() {
				status = string(r.Stage()) + " failed"
			}

			_, _ = fmt.Fprintf(tw, "%s\t-\t%s\t%s\n", r.Project, status, detail(r.Err()))

			continue
		}

		for _, o := range r.Sync.Outcomes {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Project, o.Destination, o.Status, detail(o.Err))
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Cycles: %d total (%d ok, %d failed)\n", len(results), len(results)-failed, failed)

	return nil
}

func detail(err error) string {
	if err == nil {
		return ""
	}

	// Keep rows on one line.
	return strings.ReplaceAll(err.Error(), "\n", " ")
}

// --- JSON Formatter ---

// JSONFormatter writes results as JSON.
type JSONFormatter struct{}

type jsonBuild struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exitCode"`
	Reason   string `json:"reason,omitempty"`
	Output   string `json:"output"`
}

type jsonDestination struct {
	Destination string `json:"destination"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

type jsonCycle struct {
	ID           string            `json:"id"`
	Project      string            `json:"project"`
	Trigger      string            `json:"trigger"`
	OK           bool              `json:"ok"`
	Stage        string            `json:"stage,omitempty"`
	Error        string            `json:"error,omitempty"`
	Version      string            `json:"version,omitempty"`
	DurationMs   int64             `json:"durationMs"`
	Build        jsonBuild         `json:"build"`
	Destinations []jsonDestination `json:"destinations"`
}

type jsonResult struct {
	Cycles []jsonCycle `json:"cycles"`
	Total  int         `json:"total"`
	Failed int         `json:"failed"`
}

// Format writes the results as JSON.
func (f *JSONFormatter) Format(w io.Writer, results []*cycle.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	out := jsonResult{Cycles: make([]jsonCycle, 0, len(results)), Total: len(results)}

	for _, r := range results {
		c := jsonCycle{
			ID:         r.ID,
			Project:    r.Project,
			Trigger:    string(r.Trigger),
			OK:         r.OK(),
			Stage:      string(r.Stage()),
			Error:      detail(r.Err()),
			Version:    r.Version,
			DurationMs: r.Duration.Milliseconds(),
			Build: jsonBuild{
				Success:  r.Build.Success,
				ExitCode: r.Build.ExitCode,
				Reason:   string(r.Build.Reason),
				Output:   r.Build.Output,
			},
			Destinations: []jsonDestination{},
		}

		if r.Sync != nil {
			for _, o := range r.Sync.Outcomes {
				c.Destinations = append(c.Destinations, jsonDestination{
					Destination: o.Destination,
					Status:      string(o.Status),
					Error:       detail(o.Err),
				})
			}
		}

		if !c.OK {
			out.Failed++
		}

		out.Cycles = append(out.Cycles, c)
	}

	return enc.Encode(out)
}
