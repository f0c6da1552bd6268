// Package transfer mirrors a build output directory into a destination by
// deleting the destination and copying the source tree in its place.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"
)

// Kind classifies a transfer failure.
type Kind int

const (
	// KindIO is any I/O failure not covered by a more specific kind.
	KindIO Kind = iota
	// KindSourceMissing means the source is absent or not a directory.
	KindSourceMissing
	// KindPermissionDenied means the OS refused access.
	KindPermissionDenied
	// KindDiskFull means the destination device ran out of space.
	KindDiskFull
	// KindNotDirectory means the destination path holds a non-directory.
	KindNotDirectory
	// KindOverlap means source and destination contain each other.
	KindOverlap
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindSourceMissing:
		return "source missing"
	case KindPermissionDenied:
		return "permission denied"
	case KindDiskFull:
		return "disk full"
	case KindNotDirectory:
		return "not a directory"
	case KindOverlap:
		return "overlapping paths"
	default:
		return "i/o error"
	}
}

// Error is returned by Copy. Path is the offending path.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
	}

	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a transfer *Error of kind k.
func IsKind(err error, k Kind) bool {
	var te *Error

	return errors.As(err, &te) && te.Kind == k
}

// Copier performs delete-then-copy transfers on a filesystem.
type Copier struct {
	fs afero.Fs
}

// New returns a Copier operating on fsys. A nil fsys means the OS filesystem.
func New(fsys afero.Fs) *Copier {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	return &Copier{fs: fsys}
}

// Fs returns the underlying filesystem.
func (c *Copier) Fs() afero.Fs {
	return c.fs
}

// Copy makes dst an exact mirror of src. An existing dst directory is
// removed first; a dst occupied by a file is an error. Calling Copy twice
// with the same arguments yields the same tree.
func (c *Copier) Copy(src, dst string) error {
	src = filepath.Clean(src)
	dst = filepath.Clean(dst)

	info, err := c.fs.Stat(src)
	if err != nil {
		return &Error{Kind: KindSourceMissing, Op: "stat", Path: src, Err: err}
	}

	if !info.IsDir() {
		return &Error{Kind: KindSourceMissing, Op: "stat", Path: src, Err: errors.New("source is not a directory")}
	}

	if within(src, dst) || within(dst, src) {
		return &Error{Kind: KindOverlap, Op: "copy", Path: dst}
	}

	if err := c.clear(dst); err != nil {
		return err
	}

	return afero.Walk(c.fs, src, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return classify("read", path, walkErr)
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return &Error{Kind: KindIO, Op: "copy", Path: path, Err: err}
		}

		target := filepath.Join(dst, rel)

		switch {
		case fi.IsDir():
			if err := c.fs.MkdirAll(target, fi.Mode().Perm()|0o700); err != nil {
				return classify("mkdir", target, err)
			}

			return nil

		case fi.Mode()&os.ModeSymlink != 0:
			return c.copySymlink(path, target)

		case fi.Mode().IsRegular():
			return c.copyFile(path, target, fi.Mode().Perm())

		default:
			// Sockets, devices and pipes are not build artifacts.
			return nil
		}
	})
}

// clear removes dst if it is a directory.
func (c *Copier) clear(dst string) error {
	info, err := c.fs.Stat(dst)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return classify("stat", dst, err)
	case !info.IsDir():
		return &Error{Kind: KindNotDirectory, Op: "remove", Path: dst}
	}

	if err := c.fs.RemoveAll(dst); err != nil {
		return classify("remove", dst, err)
	}

	return nil
}

func (c *Copier) copyFile(src, dst string, perm os.FileMode) error {
	in, err := c.fs.Open(src)
	if err != nil {
		return classify("open", src, err)
	}
	defer in.Close()

	out, err := c.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return classify("create", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()

		return classify("write", dst, err)
	}

	if err := out.Close(); err != nil {
		return classify("write", dst, err)
	}

	return nil
}

// ErrSymlinkUnsupported is returned when the source holds a symlink and the
// filesystem cannot read or create links.
var ErrSymlinkUnsupported = errors.New("filesystem does not support symlinks")

func (c *Copier) copySymlink(src, dst string) error {
	reader, rok := c.fs.(afero.LinkReader)
	linker, lok := c.fs.(afero.Linker)

	if !rok || !lok {
		return &Error{Kind: KindIO, Op: "symlink", Path: src, Err: ErrSymlinkUnsupported}
	}

	target, err := reader.ReadlinkIfPossible(src)
	if err != nil {
		return classify("readlink", src, err)
	}

	if err := linker.SymlinkIfPossible(target, dst); err != nil {
		return classify("symlink", dst, err)
	}

	return nil
}

// classify maps an OS error to a transfer Error.
func classify(op, path string, err error) error {
	kind := KindIO

	switch {
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	case errors.Is(err, syscall.ENOSPC):
		kind = KindDiskFull
	case errors.Is(err, syscall.ENOTDIR):
		kind = KindNotDirectory
	}

	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// within reports whether child equals parent or lies below it.
func within(parent, child string) bool {
	if parent == child {
		return true
	}

	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	return strings.HasPrefix(child, prefix)
}
