// Package scanner discovers indexable files under a watch root. The
// initial full index uses it to enumerate the tree without waiting for
// file system events, applying the same exclusions as the watcher.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cocodex/cocowatch/internal/watcher"
)

// DefaultMaxFileSize is the largest file the scanner will report (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// FileInfo describes a discovered file.
type FileInfo struct {
	// Path is relative to the scan root.
	Path string

	// AbsPath is the absolute path.
	AbsPath string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the last modification time.
	ModTime time.Time
}

// Result is streamed from Scan. Exactly one of File and Err is set.
type Result struct {
	File *FileInfo
	Err  error
}

// Options configures a scan.
type Options struct {
	// Root is the directory to scan.
	Root string

	// NonRecursive restricts the scan to the root directory itself.
	NonRecursive bool

	// IgnorePatterns are glob patterns excluded in addition to the
	// built-in exclusions.
	IgnorePatterns []string

	// MaxFileSize skips files larger than this many bytes.
	// Default: DefaultMaxFileSize.
	MaxFileSize int64
}

// Scanner walks a directory tree and reports indexable files, skipping
// ignored paths, oversized files, and binaries.
type Scanner struct {
	ignores *watcher.IgnoreSet
	opts    Options
}

// New creates a scanner for the given options.
func New(opts Options) *Scanner {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Scanner{
		ignores: watcher.NewIgnoreSet(opts.IgnorePatterns),
		opts:    opts,
	}
}

// Scan streams discovered files. The channel is closed when the walk
// completes or the context is cancelled.
func (s *Scanner) Scan(ctx context.Context) (<-chan Result, error) {
	absRoot, err := filepath.Abs(s.opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root is not a directory: %s", absRoot)
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, results)
	}()
	return results, nil
}

// Paths collects the relative paths of every indexable file, sorted.
// Convenience wrapper for the initial full index.
func (s *Scanner) Paths(ctx context.Context) ([]string, error) {
	results, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}

	var paths []string
	for r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		paths = append(paths, r.File.Path)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if relPath == "." {
				return nil
			}
			if s.opts.NonRecursive || s.ignores.Match(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are not followed.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if s.ignores.Match(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > s.opts.MaxFileSize {
			return nil
		}
		if isBinaryFile(path) {
			return nil
		}

		select {
		case results <- Result{File: &FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Err: err}:
		default:
		}
	}
}

// isBinaryFile sniffs the first 512 bytes for NUL.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
