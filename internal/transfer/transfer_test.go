package transfer

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/libsync/internal/transfer/transfertest"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeTree(t *testing.T, fsys afero.Fs, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, fsys.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(fsys, p, []byte(content), 0o644))
	}
}

func readTree(t *testing.T, fsys afero.Fs, root string) map[string]string {
	t.Helper()

	out := map[string]string{}

	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return err
		}

		out[filepath.ToSlash(rel)] = string(data)

		return nil
	})
	require.NoError(t, err)

	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// ---------------------------------------------------------------------------
// Copy
// ---------------------------------------------------------------------------

func TestCopy_FreshDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "dist")
	dst := filepath.Join(dir, "app", "node_modules", "lib")

	fsys := afero.NewOsFs()
	writeTree(t, fsys, src, map[string]string{
		"index.js":         "module.exports = 1;",
		"lib/util.js":      "exports.u = 2;",
		"lib/deep/more.js": "x",
	})

	require.NoError(t, New(nil).Copy(src, dst))
	assert.Equal(t, readTree(t, fsys, src), readTree(t, fsys, dst))
}

func TestCopy_RemovesStaleFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/dist", map[string]string{"index.js": "new"})
	writeTree(t, fsys, "/dest", map[string]string{
		"index.js":      "old",
		"stale.js":      "leftover",
		"old/nested.js": "leftover",
	})

	require.NoError(t, New(fsys).Copy("/dist", "/dest"))
	assert.Equal(t, map[string]string{"index.js": "new"}, readTree(t, fsys, "/dest"))
}

func TestCopy_Idempotent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/dist", map[string]string{"a.js": "a", "b/c.js": "c"})

	c := New(fsys)
	require.NoError(t, c.Copy("/dist", "/dest"))
	first := readTree(t, fsys, "/dest")

	require.NoError(t, c.Copy("/dist", "/dest"))
	second := readTree(t, fsys, "/dest")

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a.js", "b/c.js"}, keys(second))
}

func TestCopy_EmptySourceDirectory(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/dist", 0o755))

	require.NoError(t, New(fsys).Copy("/dist", "/dest"))

	info, err := fsys.Stat("/dest")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCopy_SourceMissing(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/dest", map[string]string{"keep.js": "k"})

	err := New(fsys).Copy("/nope", "/dest")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindSourceMissing))

	// No partial side effects: the destination is untouched.
	assert.Equal(t, map[string]string{"keep.js": "k"}, readTree(t, fsys, "/dest"))
}

func TestCopy_SourceIsFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/dist", []byte("x"), 0o644))

	err := New(fsys).Copy("/dist", "/dest")
	assert.True(t, IsKind(err, KindSourceMissing))
}

func TestCopy_DestinationIsFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/dist", map[string]string{"index.js": "x"})
	require.NoError(t, afero.WriteFile(fsys, "/dest", []byte("occupied"), 0o644))

	err := New(fsys).Copy("/dist", "/dest")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotDirectory))

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, filepath.Clean("/dest"), te.Path)
}

func TestCopy_OverlappingPaths(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/dist", map[string]string{"index.js": "x"})

	c := New(fsys)
	assert.True(t, IsKind(c.Copy("/dist", "/dist"), KindOverlap))
	assert.True(t, IsKind(c.Copy("/dist", "/dist/sub"), KindOverlap))
	assert.True(t, IsKind(c.Copy("/dist", "/"), KindOverlap))

	// The source must survive every rejected attempt.
	assert.Equal(t, map[string]string{"index.js": "x"}, readTree(t, fsys, "/dist"))
}

func TestCopy_PermissionDenied(t *testing.T) {
	fsys := transfertest.NewFaultyFs(afero.NewMemMapFs())
	writeTree(t, fsys, "/dist", map[string]string{"index.js": "x"})
	fsys.FailUnder("/locked", os.ErrPermission)

	err := New(fsys).Copy("/dist", "/locked/lib")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPermissionDenied))
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestCopy_DiskFull(t *testing.T) {
	fsys := transfertest.NewFaultyFs(afero.NewMemMapFs())
	writeTree(t, fsys, "/dist", map[string]string{"index.js": "x"})
	fsys.FailUnder("/full", syscall.ENOSPC)

	err := New(fsys).Copy("/dist", "/full/lib")
	assert.True(t, IsKind(err, KindDiskFull))
}

func TestCopy_PreservesSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "dist")
	dst := filepath.Join(dir, "dest")

	fsys := afero.NewOsFs()
	writeTree(t, fsys, src, map[string]string{"index.js": "x"})
	require.NoError(t, os.Symlink("index.js", filepath.Join(src, "main.js")))

	require.NoError(t, New(fsys).Copy(src, dst))

	target, err := os.Readlink(filepath.Join(dst, "main.js"))
	require.NoError(t, err)
	assert.Equal(t, "index.js", target)
}

// lstatOnlyFs reports symlinks through LstatIfPossible but can neither read
// nor create them.
type lstatOnlyFs struct {
	afero.Fs
	lstat afero.Lstater
}

func (f lstatOnlyFs) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	return f.lstat.LstatIfPossible(name)
}

func TestCopy_SymlinkOnFsWithoutLinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "dist")

	osFs := afero.NewOsFs()
	writeTree(t, osFs, src, map[string]string{"index.js": "x"})
	require.NoError(t, os.Symlink("index.js", filepath.Join(src, "main.js")))

	fsys := lstatOnlyFs{Fs: osFs, lstat: osFs.(afero.Lstater)}

	err := New(fsys).Copy(src, filepath.Join(dir, "dest"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindIO))
	assert.ErrorIs(t, err, ErrSymlinkUnsupported)
}

// ---------------------------------------------------------------------------
// Error / Kind
// ---------------------------------------------------------------------------

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindIO, "i/o error"},
		{KindSourceMissing, "source missing"},
		{KindPermissionDenied, "permission denied"},
		{KindDiskFull, "disk full"},
		{KindNotDirectory, "not a directory"},
		{KindOverlap, "overlapping paths"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindPermissionDenied, Op: "create", Path: "/dest/a.js", Err: os.ErrPermission}
	assert.Equal(t, "create /dest/a.js: permission denied: permission denied", err.Error())

	err = &Error{Kind: KindNotDirectory, Op: "remove", Path: "/dest"}
	assert.Equal(t, "remove /dest: not a directory", err.Error())
}
