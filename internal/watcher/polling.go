package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by periodically scanning the tree and
// diffing mtimes and sizes. Used as a fallback when fsnotify is not
// available. Renames appear as a delete of the old path and a create
// of the new one, same degradation as the fsnotify backend.
type PollingWatcher struct {
	interval     time.Duration
	nonRecursive bool
	fileState    map[string]fileSnapshot
	events       chan ChangeEvent
	errs         chan error
	stopCh       chan struct{}
	mu           sync.RWMutex
	stopped      bool
	rootPath     string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher with the given scan
// interval.
func NewPollingWatcher(interval time.Duration, nonRecursive bool) *PollingWatcher {
	return &PollingWatcher{
		interval:     interval,
		nonRecursive: nonRecursive,
		fileState:    make(map[string]fileSnapshot),
		events:       make(chan ChangeEvent, 100),
		errs:         make(chan error, 10),
		stopCh:       make(chan struct{}),
	}
}

// Start begins polling the given directory. Blocks until the context
// is cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve watch path: %w", err)
	}
	p.rootPath = absPath

	// Establish the baseline so the first tick only reports changes.
	if err := p.diff(false); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.diff(true); err != nil {
				select {
				case p.errs <- err:
				default:
				}
			}
		}
	}
}

// Stop stops the polling watcher. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errs)
	return nil
}

// Events returns the channel of change events.
func (p *PollingWatcher) Events() <-chan ChangeEvent {
	return p.events
}

// Errors returns the channel of scan errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errs
}

// diff walks the tree, compares against the previous snapshot, and
// when emit is set sends an event per observed difference.
func (p *PollingWatcher) diff(emit bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[string]fileSnapshot)

	err := filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(p.rootPath, path)
		if err != nil || relPath == "." {
			return nil
		}
		if p.nonRecursive && d.IsDir() {
			return filepath.SkipDir
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		snapshot := fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
			isDir:   d.IsDir(),
		}
		current[relPath] = snapshot

		if !emit {
			return nil
		}
		if prev, exists := p.fileState[relPath]; !exists {
			p.emitEvent(ChangeEvent{Path: relPath, Op: OpCreated, IsDir: d.IsDir(), At: time.Now()})
		} else if prev.modTime != snapshot.modTime || prev.size != snapshot.size {
			p.emitEvent(ChangeEvent{Path: relPath, Op: OpModified, IsDir: d.IsDir(), At: time.Now()})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk for changes: %w", err)
	}

	if emit {
		for path, snapshot := range p.fileState {
			if _, exists := current[path]; !exists {
				p.emitEvent(ChangeEvent{Path: path, Op: OpDeleted, IsDir: snapshot.isDir, At: time.Now()})
			}
		}
	}

	p.fileState = current
	return nil
}

// emitEvent sends an event without blocking. Must be called with the
// lock held.
func (p *PollingWatcher) emitEvent(event ChangeEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Op.String()),
		)
	}
}
