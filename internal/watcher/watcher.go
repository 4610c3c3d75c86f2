package watcher

import (
	"context"
	"time"
)

// Op represents the kind of file system change.
type Op int

const (
	// OpCreated indicates a new file or directory appeared.
	OpCreated Op = iota
	// OpModified indicates an existing file's content changed.
	OpModified
	// OpDeleted indicates a file or directory was removed.
	OpDeleted
	// OpRenamed indicates a file was renamed. Only emitted by backends
	// that can pair the two endpoints of a rename; the fsnotify and
	// polling backends degrade renames to Deleted plus Created.
	OpRenamed
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreated:
		return "CREATED"
	case OpModified:
		return "MODIFIED"
	case OpDeleted:
		return "DELETED"
	case OpRenamed:
		return "RENAMED"
	default:
		return "UNKNOWN"
	}
}

// ChangeEvent is a single observed file system change, relative to the
// watch root.
type ChangeEvent struct {
	// Path is the path relative to the watch root.
	Path string

	// OldPath is the previous path for OpRenamed events. Empty for
	// backends that degrade renames to delete plus create.
	OldPath string

	// Op is the kind of change.
	Op Op

	// IsDir indicates the event is for a directory.
	IsDir bool

	// At is when the event was detected.
	At time.Time
}

// PathWatcher is the interface for file system watching backends.
type PathWatcher interface {
	// Start begins watching the given directory. It blocks until Stop
	// is called or the context is cancelled.
	Start(ctx context.Context, path string) error

	// Stop stops the watcher and releases resources.
	// Safe to call multiple times.
	Stop() error

	// Events returns the channel of raw change events.
	// The channel is closed when the watcher stops.
	Events() <-chan ChangeEvent

	// Errors returns the channel of watcher errors. Non-fatal errors
	// are sent here and the watcher keeps running.
	Errors() <-chan error
}

// Options configures a watcher.
type Options struct {
	// NonRecursive restricts watching to the root directory itself.
	NonRecursive bool

	// PollInterval is the scan interval for the polling fallback.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the size of the event channel buffer.
	// Default: 1000
	EventBufferSize int

	// IgnorePatterns are glob patterns excluded from watching, in
	// addition to the built-in exclusions (.git, .cocowatch).
	IgnorePatterns []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
