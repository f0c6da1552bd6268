// Package toolchain inspects the tools a build depends on (node, npm, ...)
// and the version of a built package.
package toolchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/afero"
)

// ErrNoVersion is returned when a tool's output contains no version.
var ErrNoVersion = errors.New("no version found")

var versionPattern = regexp.MustCompile(`v?\d+\.\d+(\.\d+)?(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?`)

// Tool is the result of probing one executable.
type Tool struct {
	Name    string
	Version *semver.Version
	Raw     string
	Err     error
}

// Found reports whether the tool ran and reported a version.
func (t Tool) Found() bool {
	return t.Err == nil && t.Version != nil
}

// Requirement is the result of checking one constraint.
type Requirement struct {
	Tool       Tool
	Constraint string
	Satisfied  bool
	Err        error
}

// ExecFunc runs name with args and returns its combined output.
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Prober runs `<tool> --version`.
type Prober struct {
	exec ExecFunc
}

// NewProber returns a prober using os/exec. A nil fn selects it.
func NewProber(fn ExecFunc) *Prober {
	if fn == nil {
		fn = execCombined
	}

	return &Prober{exec: fn}
}

// Probe runs tool --version and parses the first semantic version in its
// output.
func (p *Prober) Probe(ctx context.Context, tool string) Tool {
	out, err := p.exec(ctx, tool, "--version")

	t := Tool{Name: tool, Raw: strings.TrimSpace(string(out))}
	if err != nil {
		t.Err = fmt.Errorf("running %s --version: %w", tool, err)

		return t
	}

	t.Version, t.Err = ParseVersion(t.Raw)

	return t
}

// Check probes every tool in requires and validates its constraint. The
// result is sorted by tool name.
func (p *Prober) Check(ctx context.Context, requires map[string]string) []Requirement {
	names := make([]string, 0, len(requires))
	for name := range requires {
		names = append(names, name)
	}

	sort.Strings(names)

	out := make([]Requirement, 0, len(names))

	for _, name := range names {
		req := Requirement{Tool: p.Probe(ctx, name), Constraint: requires[name]}

		switch {
		case req.Tool.Err != nil:
			req.Err = req.Tool.Err
		default:
			req.Satisfied, req.Err = Satisfies(req.Constraint, req.Tool.Version)
		}

		out = append(out, req)
	}

	return out
}

// ParseVersion extracts the first semantic version from s, e.g. "v20.11.1"
// from node's output.
func ParseVersion(s string) (*semver.Version, error) {
	match := versionPattern.FindString(s)
	if match == "" {
		return nil, fmt.Errorf("%w in %q", ErrNoVersion, s)
	}

	v, err := semver.NewVersion(match)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", match, err)
	}

	return v, nil
}

// Satisfies reports whether v meets constraint.
func Satisfies(constraint string, v *semver.Version) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid constraint %q: %w", constraint, err)
	}

	if v == nil {
		return false, nil
	}

	return c.Check(v), nil
}

// PackageVersion reads the version field of dir/package.json. A missing file
// yields (nil, nil).
func PackageVersion(fsys afero.Fs, dir string) (*semver.Version, error) {
	data, err := afero.ReadFile(fsys, filepath.Join(dir, "package.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading package.json: %w", err)
	}

	var pkg struct {
		Version string `json:"version"`
	}

	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}

	if pkg.Version == "" {
		return nil, nil
	}

	v, err := semver.NewVersion(pkg.Version)
	if err != nil {
		return nil, fmt.Errorf("package.json version %q: %w", pkg.Version, err)
	}

	return v, nil
}

func execCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec // tool names come from project config
}
