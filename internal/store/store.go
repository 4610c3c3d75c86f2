// Package store persists indexed documents and serves queries over
// them. The indexer writes, the serving endpoint reads, and the two
// sides never share state outside this package.
package store

import (
	"context"
	"time"
)

// Document is an indexed file's persisted form.
type Document struct {
	// Path is relative to the watch root and uniquely identifies the
	// document.
	Path string

	// Content is the indexed text.
	Content string

	// Size is the source file size in bytes.
	Size int64

	// ModTime is the source file's modification time at indexing.
	ModTime time.Time

	// IndexedAt is when the document was written to the store.
	IndexedAt time.Time
}

// SearchResult is a single query hit.
type SearchResult struct {
	// Path identifies the matching document.
	Path string

	// Score is the relevance score; higher is better.
	Score float64

	// Snippet is a short highlighted excerpt around the match.
	Snippet string
}

// Stats summarizes store contents.
type Stats struct {
	// Documents is the number of indexed documents.
	Documents int

	// LastIndexedAt is the most recent IndexedAt across all documents,
	// zero when the store is empty.
	LastIndexedAt time.Time
}

// Store is the persistence boundary between indexing and serving.
type Store interface {
	// UpsertDocument inserts or replaces a document by path.
	UpsertDocument(ctx context.Context, doc *Document) error

	// DeleteDocument removes a document by path. Deleting a path that
	// was never indexed is not an error.
	DeleteDocument(ctx context.Context, path string) error

	// ListPaths returns every indexed path, sorted.
	ListPaths(ctx context.Context) ([]string, error)

	// Search returns documents matching the full-text query, best
	// match first.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Stats returns store-level counters.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the underlying resources.
	Close() error
}
