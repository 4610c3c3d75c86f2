package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ChangeSet is a settled batch of changed paths. Paths are sorted and
// deduplicated; the kind of each change is intentionally absent because
// consumers re-derive current state from disk. A ChangeSet is never
// mutated after emission.
type ChangeSet struct {
	// Paths are the distinct paths, relative to the watch root, that
	// changed during the batch's accumulation.
	Paths []string

	// SettledAt is when the quiet window elapsed.
	SettledAt time.Time
}

// Empty reports whether the set contains no paths.
func (cs ChangeSet) Empty() bool { return len(cs.Paths) == 0 }

// Merge returns a new ChangeSet containing the union of both sets'
// paths. The later SettledAt wins.
func (cs ChangeSet) Merge(other ChangeSet) ChangeSet {
	seen := make(map[string]struct{}, len(cs.Paths)+len(other.Paths))
	for _, p := range cs.Paths {
		seen[p] = struct{}{}
	}
	for _, p := range other.Paths {
		seen[p] = struct{}{}
	}
	merged := make([]string, 0, len(seen))
	for p := range seen {
		merged = append(merged, p)
	}
	sort.Strings(merged)

	settled := cs.SettledAt
	if other.SettledAt.After(settled) {
		settled = other.SettledAt
	}
	return ChangeSet{Paths: merged, SettledAt: settled}
}

// Debouncer accumulates change events and emits a ChangeSet once no
// event has arrived for a full quiet window. Every event resets the
// entire window: a steady stream of changes keeps the batch open and
// nothing is emitted until activity stops.
type Debouncer struct {
	window  time.Duration
	pending map[string]struct{}
	mu      sync.Mutex
	output  chan ChangeSet
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]struct{}),
		output:  make(chan ChangeSet, 10),
	}
}

// Add records an event and resets the quiet window. Duplicate paths
// collapse into a single entry.
func (d *Debouncer) Add(event ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending[event.Path] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.emit)
}

// Pending returns the number of distinct paths accumulated in the
// current open batch.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush emits the current batch immediately without waiting for the
// quiet window. Used when draining on shutdown.
func (d *Debouncer) Flush() {
	d.emit()
}

func (d *Debouncer) emit() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	d.pending = make(map[string]struct{})

	cs := ChangeSet{Paths: paths, SettledAt: time.Now()}
	select {
	case d.output <- cs:
	default:
		// Consumer is behind. Put the batch back and retry after
		// another window so no observed path is lost.
		for _, p := range paths {
			d.pending[p] = struct{}{}
		}
		if d.timer != nil {
			d.timer.Stop()
		}
		d.timer = time.AfterFunc(d.window, d.emit)
		slog.Warn("debouncer output full, retrying after window",
			slog.Int("paths", len(cs.Paths)),
		)
	}
}

// Output returns the channel of settled change sets.
func (d *Debouncer) Output() <-chan ChangeSet {
	return d.output
}

// Stop stops the debouncer and closes the output channel. Any batch
// still accumulating is discarded. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
