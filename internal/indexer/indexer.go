// Package indexer defines the indexing boundary the scheduler drives.
// An Indexer receives paths whose state may have changed and brings the
// store in line with the file system. It is handed no change kinds:
// current truth is always re-derived from disk, so a path that was
// created, modified, and deleted inside one batch indexes correctly.
package indexer

import (
	"context"
	"time"
)

// Result summarizes a completed index pass.
type Result struct {
	// Indexed is the number of documents written to the store.
	Indexed int

	// Deleted is the number of documents removed from the store.
	Deleted int

	// Skipped is the number of paths skipped (binary, oversized).
	Skipped int

	// Duration is how long the pass took.
	Duration time.Duration
}

// Indexer updates the store from the file system.
//
// Implementations classify their failures: connectivity-class problems
// surface as retryable errors, malformed-input problems as fatal ones.
// The scheduler retries the former and never the latter.
type Indexer interface {
	// Index processes the given paths, relative to the watch root.
	// A nil slice requests a full pass over the entire tree,
	// including removal of store entries whose files are gone.
	Index(ctx context.Context, flow string, paths []string) (Result, error)
}
