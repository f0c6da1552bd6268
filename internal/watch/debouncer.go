package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces a burst of change events into one callback, fired
// once no event arrived for the interval. The callback receives the last
// path of the burst and the number of events it absorbed.
type Debouncer struct {
	interval time.Duration
	callback func(path string, n int)
	logger   *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	lastPath string
	count    int
}

// NewDebouncer creates a debouncer. A nil logger uses slog.Default.
func NewDebouncer(interval time.Duration, logger *slog.Logger, callback func(path string, n int)) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Debouncer{
		interval: interval,
		callback: callback,
		logger:   logger,
	}
}

// Trigger records an event for path and restarts the quiet period.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastPath = path
	d.count++

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("debouncer callback panicked", slog.Any("error", r))
		}
	}()

	d.mu.Lock()
	p, n := d.lastPath, d.count
	d.count = 0
	d.timer = nil
	d.mu.Unlock()

	if n == 0 {
		return
	}

	d.callback(p, n)
}

// Stop cancels a pending callback and reports whether one was dropped.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	dropped := false

	if d.timer != nil {
		dropped = d.timer.Stop()
		d.timer = nil
	}

	d.count = 0

	return dropped
}
