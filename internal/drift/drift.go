// Package drift compares a project's build output with the contents of its
// destinations.
package drift

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/afero"

	"github.com/hupe1980/libsync/internal/project"
)

// Entry is one file of a manifest.
type Entry struct {
	Path string
	Sum  string
}

// Manifest lists the regular files below a directory with their sha256,
// sorted by slash-separated relative path.
type Manifest []Entry

// BuildManifest walks root on fsys.
func BuildManifest(fsys afero.Fs, root string) (Manifest, error) {
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	var m Manifest

	err = afero.Walk(fsys, root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		sum, err := hashFile(fsys, path)
		if err != nil {
			return err
		}

		m = append(m, Entry{Path: filepath.ToSlash(rel), Sum: sum})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	sort.Slice(m, func(i, j int) bool { return m[i].Path < m[j].Path })

	return m, nil
}

// String renders one "path  sum" line per entry.
func (m Manifest) String() string {
	var b strings.Builder

	for _, e := range m {
		b.WriteString(e.Path)
		b.WriteString("  ")
		b.WriteString(e.Sum)
		b.WriteString("\n")
	}

	return b.String()
}

func (m Manifest) index() map[string]string {
	idx := make(map[string]string, len(m))
	for _, e := range m {
		idx[e.Path] = e.Sum
	}

	return idx
}

// DestinationDrift describes how one destination differs from the output.
type DestinationDrift struct {
	Destination string

	// Missing is set when the destination does not exist.
	Missing bool

	// Added are files present in the output but not in the destination.
	Added []string
	// Removed are stale files present only in the destination.
	Removed []string
	// Changed are files whose content differs.
	Changed []string

	// Diff is a unified diff of the destination manifest against the
	// output manifest.
	Diff string

	Err error
}

// InSync reports whether the destination mirrors the output.
func (d DestinationDrift) InSync() bool {
	return d.Err == nil && !d.Missing && len(d.Added)+len(d.Removed)+len(d.Changed) == 0
}

// Summary returns a short description such as "+1 ~2 -0".
func (d DestinationDrift) Summary() string {
	switch {
	case d.Err != nil:
		return "error: " + d.Err.Error()
	case d.Missing:
		return "missing"
	case d.InSync():
		return "in sync"
	default:
		return fmt.Sprintf("+%d ~%d -%d", len(d.Added), len(d.Changed), len(d.Removed))
	}
}

// Check compares p's build output with every destination. It fails only
// when the build output itself cannot be read.
func Check(fsys afero.Fs, p project.Project) ([]DestinationDrift, error) {
	want, err := BuildManifest(fsys, p.BuildOutput)
	if err != nil {
		return nil, fmt.Errorf("build output of %s: %w", p.Name, err)
	}

	wantDoc := want.String()
	out := make([]DestinationDrift, 0, len(p.Destinations))

	for _, dest := range p.Destinations {
		d := DestinationDrift{Destination: dest}

		have, err := BuildManifest(fsys, dest)

		switch {
		case errors.Is(err, fs.ErrNotExist):
			d.Missing = true
			have = nil
		case err != nil:
			d.Err = err
			out = append(out, d)

			continue
		}

		compare(&d, have, want)

		d.Diff, d.Err = unifiedDiff(have.String(), wantDoc, dest, p.BuildOutput)
		out = append(out, d)
	}

	return out, nil
}

func compare(d *DestinationDrift, have, want Manifest) {
	haveIdx := have.index()
	wantIdx := want.index()

	for _, e := range want {
		sum, ok := haveIdx[e.Path]

		switch {
		case !ok:
			d.Added = append(d.Added, e.Path)
		case sum != e.Sum:
			d.Changed = append(d.Changed, e.Path)
		}
	}

	for _, e := range have {
		if _, ok := wantIdx[e.Path]; !ok {
			d.Removed = append(d.Removed, e.Path)
		}
	}
}

func unifiedDiff(oldDoc, newDoc, oldLabel, newLabel string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        splitLines(oldDoc),
		B:        splitLines(newDoc),
		FromFile: oldLabel,
		ToFile:   newLabel,
		Context:  1,
	}

	unified, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("computing diff: %w", err)
	}

	return unified, nil
}

// WriteDiff writes d's unified diff to w with optional ANSI colors.
func WriteDiff(w io.Writer, d DestinationDrift, color bool) {
	if d.Diff == "" {
		return
	}

	for _, line := range strings.Split(strings.TrimRight(d.Diff, "\n"), "\n") {
		if color {
			writeColorLine(w, line)
		} else {
			_, _ = fmt.Fprintln(w, line)
		}
	}
}

// writeColorLine writes a single diff line with ANSI color codes.
func writeColorLine(w io.Writer, line string) {
	const (
		red   = "\033[31m"
		green = "\033[32m"
		cyan  = "\033[36m"
		bold  = "\033[1m"
		reset = "\033[0m"
	)

	switch {
	case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", bold, line, reset)
	case strings.HasPrefix(line, "@@"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", cyan, line, reset)
	case strings.HasPrefix(line, "-"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", red, line, reset)
	case strings.HasPrefix(line, "+"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", green, line, reset)
	default:
		_, _ = fmt.Fprintln(w, line)
	}
}

func hashFile(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// splitLines splits a string into lines for diff processing.
// Each element includes a trailing newline for difflib compatibility.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}

	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i := range lines {
		lines[i] += "\n"
	}

	return lines
}
