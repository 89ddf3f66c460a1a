// Package manifest records which documents have been indexed, and with what
// content, so re-running ingestion can skip unchanged files and clean up
// datapoints that a shorter revision no longer produces.
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dgallion1/vertexrag/internal/rag"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id       TEXT PRIMARY KEY,
	source_path  TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	format       TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	chunk_count  INTEGER NOT NULL,
	indexed_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	source_dir  TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	attempted   INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	batches     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
`

// Entry is one indexed document.
type Entry struct {
	DocID       string    `json:"doc_id"`
	SourcePath  string    `json:"source_path"`
	Title       string    `json:"title"`
	Format      string    `json:"format"`
	ContentHash string    `json:"content_hash"`
	ChunkCount  int       `json:"chunk_count"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// ChunkIDs returns the datapoint IDs of the entry's chunks.
func (e Entry) ChunkIDs() []string {
	ids := make([]string, e.ChunkCount)
	for i := range ids {
		ids[i] = rag.ChunkID(e.DocID, i)
	}
	return ids
}

// EntryFor builds the entry for a document that produced n chunks.
func EntryFor(doc rag.RawDocument, n int) Entry {
	return Entry{
		DocID:       doc.ID,
		SourcePath:  doc.SourcePath,
		Title:       doc.Title,
		Format:      string(doc.Format),
		ContentHash: doc.ContentHash,
		ChunkCount:  n,
		IndexedAt:   time.Now().UTC(),
	}
}

// Run is a recorded ingestion run.
type Run struct {
	RunID      string    `json:"run_id"`
	SourceDir  string    `json:"source_dir"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Batches    int       `json:"batches"`
	Error      string    `json:"error,omitempty"`
}

// Store is a sqlite-backed manifest.
type Store struct {
	db *sql.DB
}

// Open opens or creates the manifest database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create manifest directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate manifest: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the entry for docID or an error wrapping rag.ErrNotFound.
func (s *Store) Get(ctx context.Context, docID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, source_path, title, format, content_hash, chunk_count, indexed_at
		FROM documents WHERE doc_id = ?`, docID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: document %s", rag.ErrNotFound, docID)
	}
	return e, err
}

// Unchanged reports whether doc is already indexed with the same content.
func (s *Store) Unchanged(ctx context.Context, doc rag.RawDocument) (bool, error) {
	e, err := s.Get(ctx, doc.ID)
	if errors.Is(err, rag.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.ContentHash == doc.ContentHash, nil
}

// Record upserts entries in one transaction.
func (s *Store) Record(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (doc_id, source_path, title, format, content_hash, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			source_path = excluded.source_path,
			title = excluded.title,
			format = excluded.format,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.DocID, e.SourcePath, e.Title, e.Format, e.ContentHash,
			e.ChunkCount, e.IndexedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("record %s: %w", e.DocID, err)
		}
	}
	return tx.Commit()
}

// List returns all entries ordered by source path.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, source_path, title, format, content_hash, chunk_count, indexed_at
		FROM documents ORDER BY source_path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete forgets a document. Deleting an unknown document is not an error.
func (s *Store) Delete(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	return err
}

// RecordRun stores the summary of an ingestion run.
func (s *Store) RecordRun(ctx context.Context, sourceDir string, sum rag.RunSummary, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, source_dir, started_at, finished_at, attempted, succeeded, batches, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sourceDir,
		sum.StartedAt.UTC().Format(time.RFC3339Nano), sum.FinishedAt.UTC().Format(time.RFC3339Nano),
		sum.Attempted, sum.Succeeded, len(sum.Batches), msg)
	return err
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source_dir, started_at, finished_at, attempted, succeeded, batches, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.RunID, &r.SourceDir, &started, &finished, &r.Attempted, &r.Succeeded, &r.Batches, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var indexed string
	if err := row.Scan(&e.DocID, &e.SourcePath, &e.Title, &e.Format, &e.ContentHash, &e.ChunkCount, &indexed); err != nil {
		return Entry{}, err
	}
	e.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexed)
	return e, nil
}
