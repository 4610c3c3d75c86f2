package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
)

// SQLiteStore implements Store on a SQLite file with an FTS5 index.
// Pure Go driver, no CGO. A single write connection avoids lock
// contention; WAL mode lets readers proceed during writes.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	mu     sync.RWMutex
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates a SQLite store at the given path.
// ":memory:" opens an in-memory store, useful in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cocoerrors.StoreUnavailable(fmt.Sprintf("create store directory %s", dir), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cocoerrors.StoreUnavailable(fmt.Sprintf("open store %s", path), err)
	}

	// Single writer; readers go through WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite, DSN params
	// are not honored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, cocoerrors.StoreUnavailable(fmt.Sprintf("set pragma %q", pragma), err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, cocoerrors.StoreUnavailable("initialize schema", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		path       TEXT PRIMARY KEY,
		size       INTEGER NOT NULL,
		mod_time   INTEGER NOT NULL,
		indexed_at INTEGER NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_documents USING fts5(
		path UNINDEXED,
		content,
		tokenize='unicode61'
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertDocument inserts or replaces a document by path.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cocoerrors.StoreUnavailable("store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cocoerrors.New(cocoerrors.ErrCodeStoreQuery, "begin upsert transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	indexedAt := doc.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents(path, size, mod_time, indexed_at) VALUES (?, ?, ?, ?)`,
		doc.Path, doc.Size, doc.ModTime.UnixNano(), indexedAt.UnixNano()); err != nil {
		return cocoerrors.New(cocoerrors.ErrCodeStoreQuery, fmt.Sprintf("upsert metadata for %s", doc.Path), err)
	}

	// FTS5 virtual tables have no REPLACE, delete first.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fts_documents WHERE path = ?`, doc.Path); err != nil {
		return cocoerrors.New(cocoerrors.ErrCodeStoreQuery, fmt.Sprintf("clear content for %s", doc.Path), err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fts_documents(path, content) VALUES (?, ?)`, doc.Path, doc.Content); err != nil {
		return cocoerrors.New(cocoerrors.ErrCodeStoreQuery, fmt.Sprintf("insert content for %s", doc.Path), err)
	}

	return tx.Commit()
}

// DeleteDocument removes a document by path. Unknown paths are a no-op.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cocoerrors.StoreUnavailable("store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cocoerrors.New(cocoerrors.ErrCodeStoreQuery, "begin delete transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return cocoerrors.New(cocoerrors.ErrCodeStoreQuery, fmt.Sprintf("delete metadata for %s", path), err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fts_documents WHERE path = ?`, path); err != nil {
		return cocoerrors.New(cocoerrors.ErrCodeStoreQuery, fmt.Sprintf("delete content for %s", path), err)
	}

	return tx.Commit()
}

// ListPaths returns every indexed path, sorted.
func (s *SQLiteStore) ListPaths(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cocoerrors.StoreUnavailable("store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM documents ORDER BY path`)
	if err != nil {
		return nil, cocoerrors.New(cocoerrors.ErrCodeStoreQuery, "list paths", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, cocoerrors.New(cocoerrors.ErrCodeStoreQuery, "scan path", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Search runs a full-text query, best match first. FTS5 bm25() returns
// negative scores where lower is better; they are negated so callers
// see higher-is-better.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cocoerrors.StoreUnavailable("store is closed", nil)
	}

	if strings.TrimSpace(query) == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, bm25(fts_documents) AS score,
		       snippet(fts_documents, 1, '[', ']', '...', 12)
		FROM fts_documents
		WHERE content MATCH ?
		ORDER BY score
		LIMIT ?
	`, ftsQuote(query), limit)
	if err != nil {
		// FTS5 rejects some query syntax, treat as no results.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []SearchResult{}, nil
		}
		return nil, cocoerrors.New(cocoerrors.ErrCodeStoreQuery, "search", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Score, &r.Snippet); err != nil {
			return nil, cocoerrors.New(cocoerrors.ErrCodeStoreQuery, "scan search result", err)
		}
		r.Score = -r.Score
		results = append(results, r)
	}
	return results, rows.Err()
}

// ftsQuote turns free text into an FTS5 AND query of quoted terms so
// user input cannot hit MATCH operator syntax.
func ftsQuote(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// Stats returns store-level counters.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, cocoerrors.StoreUnavailable("store is closed", nil)
	}

	var stats Stats
	var lastIndexed sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(indexed_at) FROM documents`).Scan(&stats.Documents, &lastIndexed)
	if err != nil {
		return Stats{}, cocoerrors.New(cocoerrors.ErrCodeStoreQuery, "collect stats", err)
	}
	if lastIndexed.Valid {
		stats.LastIndexedAt = time.Unix(0, lastIndexed.Int64)
	}
	return stats, nil
}

// Path returns the store file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases the database. Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != ":memory:" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
