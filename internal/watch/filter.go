package watch

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/libsync/internal/project"
)

// Filter decides which directories are watched and which events start a
// cycle for one project.
type Filter struct {
	root     string
	excluded []string
	ignore   []string
}

// NewFilter builds the filter for p. The build output is excluded when it
// lies inside the source tree, so a build never triggers itself.
func NewFilter(p project.Project) *Filter {
	f := &Filter{
		root:   filepath.Clean(p.Src),
		ignore: p.Ignore,
	}

	if p.OutputInsideSource() {
		f.excluded = append(f.excluded, filepath.Clean(p.BuildOutput))
	}

	return f
}

// SkipDir reports whether the directory at path and everything below it
// stays unwatched.
func (f *Filter) SkipDir(path string) bool {
	path = filepath.Clean(path)
	if path == f.root {
		return false
	}

	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || name == "node_modules" {
		return true
	}

	return f.Excluded(path) || f.ignored(path)
}

// Excluded reports whether path is, or lies below, an excluded directory.
func (f *Filter) Excluded(path string) bool {
	path = filepath.Clean(path)

	for _, ex := range f.excluded {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

// Qualifies reports whether event starts a cycle. isDir tells whether the
// affected entry is a directory; directory events never qualify.
func (f *Filter) Qualifies(event fsnotify.Event, isDir bool) bool {
	if isDir || !isRelevant(event) {
		return false
	}

	return !f.Excluded(event.Name) && !f.ignored(event.Name)
}

// ignored matches the project's ignore globs against the base name and the
// slash-separated path relative to the root.
func (f *Filter) ignored(p string) bool {
	if len(f.ignore) == 0 {
		return false
	}

	base := filepath.Base(p)

	rel, err := filepath.Rel(f.root, p)
	if err != nil {
		rel = base
	}

	rel = filepath.ToSlash(rel)

	for _, pattern := range f.ignore {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}

		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
	}

	return false
}

// isRelevant filters out no-op events and editor temporary files.
func isRelevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	// Only care about write, create, remove, rename.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	// Editor swap, backup and lock files.
	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") ||
		strings.HasSuffix(name, ".swx") || strings.HasPrefix(name, "#") ||
		strings.HasPrefix(name, ".#") || name == "4913" || name == ".DS_Store" {
		return false
	}

	return true
}
