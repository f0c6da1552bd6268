// Package transfertest provides filesystems that fail on demand, for testing
// partial-failure handling of transfers.
package transfertest

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// FaultyFs wraps an afero.Fs and fails every mutating call under one of the
// registered path prefixes.
type FaultyFs struct {
	afero.Fs

	mu       sync.Mutex
	failures map[string]error
}

// NewFaultyFs wraps base.
func NewFaultyFs(base afero.Fs) *FaultyFs {
	return &FaultyFs{Fs: base, failures: map[string]error{}}
}

// FailUnder makes writes below prefix return err.
func (f *FaultyFs) FailUnder(prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures[filepath.Clean(prefix)] = err
}

func (f *FaultyFs) check(op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = filepath.Clean(name)

	for prefix, err := range f.failures {
		if name == prefix || strings.HasPrefix(name, prefix+string(filepath.Separator)) {
			return &os.PathError{Op: op, Path: name, Err: err}
		}
	}

	return nil
}

// Mkdir implements afero.Fs.
func (f *FaultyFs) Mkdir(name string, perm os.FileMode) error {
	if err := f.check("mkdir", name); err != nil {
		return err
	}

	return f.Fs.Mkdir(name, perm)
}

// MkdirAll implements afero.Fs.
func (f *FaultyFs) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check("mkdir", path); err != nil {
		return err
	}

	return f.Fs.MkdirAll(path, perm)
}

// Create implements afero.Fs.
func (f *FaultyFs) Create(name string) (afero.File, error) {
	if err := f.check("open", name); err != nil {
		return nil, err
	}

	return f.Fs.Create(name)
}

// OpenFile implements afero.Fs. Read-only opens are never failed.
func (f *FaultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 {
		if err := f.check("open", name); err != nil {
			return nil, err
		}
	}

	return f.Fs.OpenFile(name, flag, perm)
}

// RemoveAll implements afero.Fs.
func (f *FaultyFs) RemoveAll(path string) error {
	if err := f.check("unlinkat", path); err != nil {
		return err
	}

	return f.Fs.RemoveAll(path)
}
