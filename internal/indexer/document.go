package indexer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
	"github.com/cocodex/cocowatch/internal/scanner"
	"github.com/cocodex/cocowatch/internal/store"
)

// DocumentIndexer is the built-in Indexer. It reads file contents and
// stores them as full-text documents. The flow name selects which
// pipeline to run; only FlowDocuments is built in, anything else is
// rejected as fatal so a typo never retries forever.
type DocumentIndexer struct {
	root        string
	store       store.Store
	scanOpts    scanner.Options
	maxFileSize int64
}

// FlowDocuments is the built-in full-text document flow.
const FlowDocuments = "documents"

var _ Indexer = (*DocumentIndexer)(nil)

// NewDocumentIndexer creates an indexer rooted at the watch path.
// scanOpts controls which files a full pass discovers; per-path passes
// apply the same size and binary exclusions.
func NewDocumentIndexer(root string, st store.Store, scanOpts scanner.Options) *DocumentIndexer {
	scanOpts.Root = root
	maxSize := scanOpts.MaxFileSize
	if maxSize <= 0 {
		maxSize = scanner.DefaultMaxFileSize
	}
	return &DocumentIndexer{
		root:        root,
		store:       st,
		scanOpts:    scanOpts,
		maxFileSize: maxSize,
	}
}

// Index brings the store in line with the file system for the given
// paths. A nil slice runs a full pass.
func (d *DocumentIndexer) Index(ctx context.Context, flow string, paths []string) (Result, error) {
	if flow != FlowDocuments {
		return Result{}, cocoerrors.IndexFatal(fmt.Sprintf("unknown flow %q", flow), nil)
	}

	start := time.Now()

	if paths == nil {
		result, err := d.fullPass(ctx)
		result.Duration = time.Since(start)
		return result, err
	}

	var result Result
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, cocoerrors.New(cocoerrors.ErrCodeIndexCancelled, "index pass cancelled", err)
		}
		if err := d.indexPath(ctx, path, &result); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}

// fullPass enumerates the tree, indexes every discovered file, and
// removes store entries whose files no longer exist.
func (d *DocumentIndexer) fullPass(ctx context.Context) (Result, error) {
	var result Result

	s := scanner.New(d.scanOpts)
	paths, err := s.Paths(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return result, cocoerrors.New(cocoerrors.ErrCodeIndexCancelled, "full pass cancelled", ctx.Err())
		}
		return result, cocoerrors.IndexTransient("enumerate tree", err)
	}

	onDisk := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		onDisk[path] = struct{}{}
		if err := ctx.Err(); err != nil {
			return result, cocoerrors.New(cocoerrors.ErrCodeIndexCancelled, "full pass cancelled", err)
		}
		if err := d.indexPath(ctx, path, &result); err != nil {
			return result, err
		}
	}

	stored, err := d.store.ListPaths(ctx)
	if err != nil {
		return result, err
	}
	for _, path := range stored {
		if _, exists := onDisk[path]; exists {
			continue
		}
		if err := d.store.DeleteDocument(ctx, path); err != nil {
			return result, err
		}
		result.Deleted++
	}

	return result, nil
}

// indexPath re-derives one path's state from disk: present files are
// upserted, missing files are deleted from the store.
func (d *DocumentIndexer) indexPath(ctx context.Context, path string, result *Result) error {
	absPath := filepath.Join(d.root, path)

	info, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		if err := d.store.DeleteDocument(ctx, path); err != nil {
			return err
		}
		result.Deleted++
		return nil
	}
	if err != nil {
		return cocoerrors.IndexTransient(fmt.Sprintf("stat %s", path), err)
	}
	if info.IsDir() {
		return nil
	}
	if info.Size() > d.maxFileSize {
		result.Skipped++
		return nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		// The file may have vanished between stat and read.
		if os.IsNotExist(err) {
			if err := d.store.DeleteDocument(ctx, path); err != nil {
				return err
			}
			result.Deleted++
			return nil
		}
		return cocoerrors.IndexTransient(fmt.Sprintf("read %s", path), err)
	}
	if bytes.IndexByte(content, 0) >= 0 {
		result.Skipped++
		return nil
	}

	err = d.store.UpsertDocument(ctx, &store.Document{
		Path:      path,
		Content:   string(content),
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		IndexedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	result.Indexed++
	return nil
}
