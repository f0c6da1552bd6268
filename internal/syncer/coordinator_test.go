package syncer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/libsync/internal/logging"
	"github.com/hupe1980/libsync/internal/project"
	"github.com/hupe1980/libsync/internal/transfer"
	"github.com/hupe1980/libsync/internal/transfer/transfertest"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testProject(dests ...string) project.Project {
	return project.Project{
		Name:         "lib",
		Src:          "/src",
		BuildCommand: "true",
		BuildOutput:  "/src/dist",
		Destinations: dests,
	}
}

func newTestCoordinator(fsys afero.Fs) *Coordinator {
	return NewCoordinator(Options{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Fs:         fsys,
		Logger:     logging.Discard(),
	})
}

func writeOutput(t *testing.T, fsys afero.Fs) {
	t.Helper()

	require.NoError(t, fsys.MkdirAll("/src/dist", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/src/dist/index.js", []byte("export default 1;"), 0o644))
}

// delayedFs hides a directory from the first `hide` Stat calls.
type delayedFs struct {
	afero.Fs

	mu    sync.Mutex
	path  string
	hide  int
	stats int
}

func (d *delayedFs) Stat(name string) (os.FileInfo, error) {
	d.mu.Lock()

	if filepath.Clean(name) == d.path {
		d.stats++

		if d.stats <= d.hide {
			d.mu.Unlock()

			return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
		}
	}

	d.mu.Unlock()

	return d.Fs.Stat(name)
}

// countingFs counts write-side calls.
type countingFs struct {
	afero.Fs

	mu     sync.Mutex
	writes int
}

func (c *countingFs) bump() {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
}

func (c *countingFs) MkdirAll(path string, perm os.FileMode) error {
	c.bump()

	return c.Fs.MkdirAll(path, perm)
}

func (c *countingFs) RemoveAll(path string) error {
	c.bump()

	return c.Fs.RemoveAll(path)
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 {
		c.bump()
	}

	return c.Fs.OpenFile(name, flag, perm)
}

// ---------------------------------------------------------------------------
// Sync
// ---------------------------------------------------------------------------

func TestSync_AllDestinations(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeOutput(t, fsys)

	p := testProject("/appA/node_modules/lib", "/appB/node_modules/lib")
	report := newTestCoordinator(fsys).Sync(context.Background(), p)

	require.True(t, report.OK())
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, 1, report.Attempts)

	for i, dest := range p.Destinations {
		assert.Equal(t, dest, report.Outcomes[i].Destination)
		assert.Equal(t, StatusSucceeded, report.Outcomes[i].Status)

		data, err := afero.ReadFile(fsys, filepath.Join(dest, "index.js"))
		require.NoError(t, err)
		assert.Equal(t, "export default 1;", string(data))
	}

	assert.Equal(t, "2/2 destination(s) synced", report.Summary())
}

func TestSync_PartialFailureIsolation(t *testing.T) {
	fsys := transfertest.NewFaultyFs(afero.NewMemMapFs())
	writeOutput(t, fsys)
	fsys.FailUnder("/appB", os.ErrPermission)

	p := testProject("/appA/node_modules/lib", "/appB/node_modules/lib", "/appC/node_modules/lib")

	var observed []Outcome

	report := newTestCoordinator(fsys).Sync(context.Background(), p, func(o Outcome) {
		observed = append(observed, o)
	})

	require.Len(t, report.Outcomes, 3)
	assert.False(t, report.OK())
	assert.NoError(t, report.Err)

	assert.Equal(t, StatusSucceeded, report.Outcomes[0].Status)
	assert.Equal(t, StatusFailed, report.Outcomes[1].Status)
	assert.Equal(t, StatusSucceeded, report.Outcomes[2].Status)
	assert.True(t, transfer.IsKind(report.Outcomes[1].Err, transfer.KindPermissionDenied))

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "/appB/node_modules/lib", failed[0].Destination)
	assert.Len(t, report.Succeeded(), 2)
	assert.Equal(t, report.Outcomes, observed)

	exists, err := afero.Exists(fsys, "/appC/node_modules/lib/index.js")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSync_OutputAppearsAfterRetries(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeOutput(t, mem)

	fsys := &delayedFs{Fs: mem, path: filepath.Clean("/src/dist"), hide: 2}

	report := newTestCoordinator(fsys).Sync(context.Background(), testProject("/app/node_modules/lib"))

	require.True(t, report.OK(), report.Summary())
	assert.Equal(t, 3, report.Attempts)
}

func TestSync_OutputNeverAppears(t *testing.T) {
	fsys := &countingFs{Fs: afero.NewMemMapFs()}

	p := testProject("/appA/node_modules/lib", "/appB/node_modules/lib")
	report := newTestCoordinator(fsys).Sync(context.Background(), p)

	require.ErrorIs(t, report.Err, ErrSourceOutputMissing)
	assert.False(t, report.OK())
	assert.Equal(t, 3, report.Attempts)
	require.Len(t, report.Outcomes, 2)

	for _, o := range report.Outcomes {
		assert.Equal(t, StatusNotAttempted, o.Status)
		assert.ErrorIs(t, o.Err, ErrSourceOutputMissing)
	}

	assert.Zero(t, fsys.writes, "no copy operation may run")
	assert.Contains(t, report.Summary(), "aborted")
}

func TestSync_OutputIsFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/dist", []byte("x"), 0o644))

	report := newTestCoordinator(fsys).Sync(context.Background(), testProject("/app/node_modules/lib"))
	assert.ErrorIs(t, report.Err, ErrSourceOutputMissing)
}

func TestSync_ContextCanceledWhileWaiting(t *testing.T) {
	c := NewCoordinator(Options{
		MaxRetries: 5,
		RetryDelay: time.Hour,
		Fs:         afero.NewMemMapFs(),
		Logger:     logging.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	report := c.Sync(ctx, testProject("/app/node_modules/lib"))
	require.ErrorIs(t, report.Err, context.Canceled)
	assert.Equal(t, StatusNotAttempted, report.Outcomes[0].Status)
}

func TestSync_NoDestinations(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeOutput(t, fsys)

	report := newTestCoordinator(fsys).Sync(context.Background(), testProject())
	assert.True(t, report.OK())
	assert.Empty(t, report.Outcomes)
}

func TestSync_DuplicateDestinations(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeOutput(t, fsys)

	report := newTestCoordinator(fsys).Sync(context.Background(), testProject("/app/lib", "/app/lib"))
	require.True(t, report.OK())
	assert.Len(t, report.Outcomes, 2)
}

func TestNewCoordinator_Defaults(t *testing.T) {
	c := NewCoordinator(Options{})
	assert.Equal(t, DefaultMaxRetries, c.opts.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, c.opts.RetryDelay)
	assert.NotNil(t, c.opts.Fs)
	assert.NotNil(t, c.opts.Logger)
}
