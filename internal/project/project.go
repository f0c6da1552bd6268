// Package project defines the library projects libsync builds and
// synchronizes, and the file-backed store that persists them.
package project

import (
	"errors"
	"fmt"
	"maps"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrNotFound is returned when a project name is not in the list.
	ErrNotFound = errors.New("project not found")

	// ErrDuplicate is returned when two projects share a name.
	ErrDuplicate = errors.New("duplicate project name")
)

// Project describes one library: where its sources live, how to build it,
// where the build output appears, and which folders mirror that output.
type Project struct {
	// Name identifies the project. Unique within a store.
	Name string `json:"name" yaml:"name"`

	// Src is the source tree that is watched and used as build directory.
	Src string `json:"src" yaml:"src"`

	// BuildCommand is run through the platform shell with Src as cwd.
	BuildCommand string `json:"build_command" yaml:"build_command"`

	// BuildOutput is the directory holding build artifacts.
	BuildOutput string `json:"build_output" yaml:"build_output"`

	// Destinations are the folders that mirror BuildOutput after a
	// successful build, e.g. node_modules/<lib> of consuming apps.
	Destinations []string `json:"destinations" yaml:"destinations"`

	// Requires maps a tool name (node, npm, ...) to a semver constraint.
	Requires map[string]string `json:"requires,omitempty" yaml:"requires,omitempty"`

	// Ignore holds glob patterns for source paths that never trigger a build.
	Ignore []string `json:"ignore,omitempty" yaml:"ignore,omitempty"`
}

// Validate checks the required fields and the requires constraints.
func (p *Project) Validate() error {
	missing := []string{}

	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}

	if strings.TrimSpace(p.Src) == "" {
		missing = append(missing, "src")
	}

	if strings.TrimSpace(p.BuildCommand) == "" {
		missing = append(missing, "build_command")
	}

	if strings.TrimSpace(p.BuildOutput) == "" {
		missing = append(missing, "build_output")
	}

	if len(missing) > 0 {
		return fmt.Errorf("project %q: missing required field(s): %s", p.Name, strings.Join(missing, ", "))
	}

	for i, d := range p.Destinations {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("project %q: destinations[%d] is empty", p.Name, i)
		}
	}

	for tool, constraint := range p.Requires {
		if _, err := semver.NewConstraint(constraint); err != nil {
			return fmt.Errorf("project %q: requires[%s]: invalid constraint %q: %w", p.Name, tool, constraint, err)
		}
	}

	for _, pattern := range p.Ignore {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("project %q: invalid ignore pattern %q: %w", p.Name, pattern, err)
		}
	}

	return nil
}

// SyncEligible reports whether the project has at least one destination.
// Projects without destinations are built but never synchronized.
func (p *Project) SyncEligible() bool {
	return len(p.Destinations) > 0
}

// OutputInsideSource reports whether BuildOutput lies strictly within Src.
// Changes under such an output folder are produced by the build itself.
func (p *Project) OutputInsideSource() bool {
	rel, err := filepath.Rel(filepath.Clean(p.Src), filepath.Clean(p.BuildOutput))
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Clone returns a deep copy, so a running cycle never observes edits.
func (p Project) Clone() Project {
	p.Destinations = slices.Clone(p.Destinations)
	p.Ignore = slices.Clone(p.Ignore)
	p.Requires = maps.Clone(p.Requires)

	return p
}

// Resolve returns a copy whose relative paths are joined onto baseDir and
// cleaned.
func (p Project) Resolve(baseDir string) Project {
	out := p.Clone()
	out.Src = resolvePath(baseDir, p.Src)
	out.BuildOutput = resolvePath(baseDir, p.BuildOutput)

	for i, d := range out.Destinations {
		out.Destinations[i] = resolvePath(baseDir, d)
	}

	return out
}

func resolvePath(baseDir, target string) string {
	if target == "" || filepath.IsAbs(target) || baseDir == "" {
		return filepath.Clean(target)
	}

	return filepath.Join(baseDir, target)
}

// Projects is an ordered list of projects.
type Projects []Project

// Validate checks each project and rejects duplicate names.
func (ps Projects) Validate() error {
	seen := make(map[string]int, len(ps))

	for i := range ps {
		if err := ps[i].Validate(); err != nil {
			return fmt.Errorf("libraries[%d]: %w", i, err)
		}

		if j, ok := seen[ps[i].Name]; ok {
			return fmt.Errorf("libraries[%d] and libraries[%d]: %w %q", j, i, ErrDuplicate, ps[i].Name)
		}

		seen[ps[i].Name] = i
	}

	return nil
}

// Find returns the project with the given name.
func (ps Projects) Find(name string) (Project, error) {
	for _, p := range ps {
		if p.Name == name {
			return p.Clone(), nil
		}
	}

	return Project{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Select returns the named projects in the requested order, or all of them
// when names is empty.
func (ps Projects) Select(names ...string) (Projects, error) {
	if len(names) == 0 {
		return slices.Clone(ps), nil
	}

	out := make(Projects, 0, len(names))

	for _, n := range names {
		p, err := ps.Find(n)
		if err != nil {
			return nil, err
		}

		out = append(out, p)
	}

	return out, nil
}

// Upsert replaces the project with the same name or appends it.
func (ps Projects) Upsert(p Project) Projects {
	out := slices.Clone(ps)

	for i := range out {
		if out[i].Name == p.Name {
			out[i] = p

			return out
		}
	}

	return append(out, p)
}

// Remove deletes the named project.
func (ps Projects) Remove(name string) (Projects, error) {
	idx := slices.IndexFunc(ps, func(p Project) bool { return p.Name == name })
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	return slices.Delete(slices.Clone(ps), idx, idx+1), nil
}

// Names returns the project names in order.
func (ps Projects) Names() []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}

	return names
}
