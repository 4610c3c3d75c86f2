package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
)

// FSWatcher implements PathWatcher using fsnotify as the primary
// mechanism with mtime polling as a fallback. New directories created
// under a recursive watch are subscribed as they appear.
type FSWatcher struct {
	fsWatcher     *fsnotify.Watcher
	pollWatcher   *PollingWatcher
	useFsnotify   bool
	ignores       *IgnoreSet
	events        chan ChangeEvent
	errs          chan error
	stopCh        chan struct{}
	rootPath      string
	opts          Options
	mu            sync.RWMutex
	stopped       bool
	droppedEvents atomic.Uint64
}

var _ PathWatcher = (*FSWatcher)(nil)

// NewFSWatcher creates a watcher with the given options. It attempts
// fsnotify first and falls back to polling when the platform refuses.
func NewFSWatcher(opts Options) (*FSWatcher, error) {
	opts = opts.WithDefaults()

	w := &FSWatcher{
		ignores: NewIgnoreSet(opts.IgnorePatterns),
		events:  make(chan ChangeEvent, opts.EventBufferSize),
		errs:    make(chan error, 10),
		stopCh:  make(chan struct{}),
		opts:    opts,
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		w.fsWatcher = fsw
		w.useFsnotify = true
	} else {
		slog.Warn("fsnotify unavailable, falling back to polling",
			slog.String("error", err.Error()))
		w.useFsnotify = false
		w.pollWatcher = NewPollingWatcher(opts.PollInterval, opts.NonRecursive)
	}

	return w, nil
}

// Start begins watching the given directory. Blocks until the context
// is cancelled or Stop is called.
func (w *FSWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return cocoerrors.WatchError(cocoerrors.ErrCodeWatchInit,
			fmt.Sprintf("resolve watch path %s", path), err)
	}
	w.rootPath = absPath

	if w.useFsnotify {
		return w.startFsnotify(ctx)
	}
	return w.startPolling(ctx)
}

func (w *FSWatcher) startFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.rootPath); err != nil {
		return cocoerrors.WatchError(cocoerrors.ErrCodeWatchInit,
			fmt.Sprintf("subscribe to %s", w.rootPath), err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.emitError(cocoerrors.WatchError(cocoerrors.ErrCodeWatchOverflow,
					"kernel event queue overflowed, some changes may be missed", err))
				continue
			}
			w.emitError(cocoerrors.WatchError(cocoerrors.ErrCodeWatchLost,
				"watch backend error", err))
		}
	}
}

func (w *FSWatcher) startPolling(ctx context.Context) error {
	// Forward polling events through the ignore filter.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.pollWatcher.Events():
				if !ok {
					return
				}
				if w.ignores.Match(event.Path) {
					continue
				}
				w.emitEvent(event)
			case err, ok := <-w.pollWatcher.Errors():
				if !ok {
					return
				}
				w.emitError(cocoerrors.WatchError(cocoerrors.ErrCodeWatchLost,
					"polling scan error", err))
			}
		}
	}()

	return w.pollWatcher.Start(ctx, w.rootPath)
}

// handleFsnotifyEvent converts and filters a raw fsnotify event.
// Renames surface on the old name only, so they degrade to Deleted;
// the new name arrives as its own Create event.
func (w *FSWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if w.ignores.Match(relPath) {
		return
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreated
		if isDir && !w.opts.NonRecursive {
			if err := w.addRecursive(event.Name); err != nil {
				w.emitError(cocoerrors.WatchError(cocoerrors.ErrCodeWatchLost,
					fmt.Sprintf("subscribe to new directory %s", relPath), err))
			}
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModified
	case event.Op&fsnotify.Remove != 0:
		op = OpDeleted
	case event.Op&fsnotify.Rename != 0:
		op = OpDeleted
	case event.Op&fsnotify.Chmod != 0:
		return
	default:
		return
	}

	w.emitEvent(ChangeEvent{
		Path:  relPath,
		Op:    op,
		IsDir: isDir,
		At:    time.Now(),
	})
}

// addRecursive subscribes root and, unless NonRecursive, every
// directory under it. Files created inside a directory between its
// creation and our subscription are caught by the directory's own
// Create event ordering on all supported platforms.
func (w *FSWatcher) addRecursive(root string) error {
	if w.opts.NonRecursive {
		return w.fsWatcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, _ := filepath.Rel(w.rootPath, path)
		if relPath == "." {
			return w.fsWatcher.Add(path)
		}
		if w.ignores.Match(relPath) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *FSWatcher) emitEvent(event ChangeEvent) {
	// The lock is held across the send so Stop cannot close the
	// channel between the stopped check and the select.
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- event:
	default:
		count := w.droppedEvents.Add(1)
		slog.Warn("event buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Op.String()),
			slog.Uint64("total_dropped", count),
		)
	}
}

func (w *FSWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errs <- err:
	default:
	}
}

// DroppedEvents returns the number of events dropped due to buffer
// overflow.
func (w *FSWatcher) DroppedEvents() uint64 {
	return w.droppedEvents.Load()
}

// Stop stops the watcher and releases resources.
func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	if w.useFsnotify && w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}

	close(w.events)
	close(w.errs)
	return nil
}

// Events returns the channel of raw change events.
func (w *FSWatcher) Events() <-chan ChangeEvent {
	return w.events
}

// Errors returns the channel of watcher errors.
func (w *FSWatcher) Errors() <-chan error {
	return w.errs
}

// BackendType returns "fsnotify" or "polling".
func (w *FSWatcher) BackendType() string {
	if w.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}
