// Package filestatus implements the File Status Repository: the persisted,
// per-path record the Work Queue and Reconciler use to decide whether a file
// needs (re-)indexing.
package filestatus

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Status is a file's place in the indexing lifecycle.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusIndexed  Status = "indexed"
	StatusFailed   Status = "failed"
	StatusOutdated Status = "outdated"
)

// Record is the File status record from the data model: one row per
// watched path, carrying enough to detect staleness (Fingerprint,
// ParserVersion) without re-reading the file.
type Record struct {
	Path         string
	Status       Status
	ParserVersion int
	ChunkCount   int
	ErrorMessage string
	LastModified time.Time
	IndexedAt    time.Time
	FileHash     string
	LastRetry    time.Time
}

// Fingerprint returns the "{size}-{mtime_ms}" content fingerprint used to
// short-circuit re-parsing of unchanged files.
func Fingerprint(size int64, mtime time.Time) string {
	return fmt.Sprintf("%d-%d", size, mtime.UnixMilli())
}

// Repository persists Records in a SQLite table keyed by path.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite-backed status table at path.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open file status db: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer, matches the orchestrator's single-task-runner model

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS file_status (
			path           TEXT PRIMARY KEY,
			status         TEXT NOT NULL,
			parser_version INTEGER NOT NULL,
			chunk_count    INTEGER NOT NULL DEFAULT 0,
			error_message  TEXT NOT NULL DEFAULT '',
			last_modified  INTEGER NOT NULL DEFAULT 0,
			indexed_at     INTEGER NOT NULL DEFAULT 0,
			file_hash      TEXT NOT NULL DEFAULT '',
			last_retry     INTEGER NOT NULL DEFAULT 0
		)`)
	return err
}

func (r *Repository) Close() error { return r.db.Close() }

// Upsert writes rec, replacing any existing record for rec.Path.
func (r *Repository) Upsert(rec Record) error {
	_, err := r.db.Exec(`
		INSERT INTO file_status (path, status, parser_version, chunk_count, error_message, last_modified, indexed_at, file_hash, last_retry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			status = excluded.status,
			parser_version = excluded.parser_version,
			chunk_count = excluded.chunk_count,
			error_message = excluded.error_message,
			last_modified = excluded.last_modified,
			indexed_at = excluded.indexed_at,
			file_hash = excluded.file_hash,
			last_retry = excluded.last_retry
	`,
		rec.Path, string(rec.Status), rec.ParserVersion, rec.ChunkCount, rec.ErrorMessage,
		rec.LastModified.UnixMilli(), rec.IndexedAt.UnixMilli(), rec.FileHash, rec.LastRetry.UnixMilli(),
	)
	return err
}

// Get returns the record for path, or (Record{}, false, nil) if absent.
func (r *Repository) Get(path string) (Record, bool, error) {
	row := r.db.QueryRow(`SELECT path, status, parser_version, chunk_count, error_message, last_modified, indexed_at, file_hash, last_retry FROM file_status WHERE path = ?`, path)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Delete removes path's record (used on file deletion and on the startup
// orphan sweep).
func (r *Repository) Delete(path string) error {
	_, err := r.db.Exec(`DELETE FROM file_status WHERE path = ?`, path)
	return err
}

// List returns every record, for the reconciler's scanForChanges pass.
func (r *Repository) List() ([]Record, error) {
	rows, err := r.db.Query(`SELECT path, status, parser_version, chunk_count, error_message, last_modified, indexed_at, file_hash, last_retry FROM file_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListByStatus returns every record with the given status.
func (r *Repository) ListByStatus(status Status) ([]Record, error) {
	rows, err := r.db.Query(`SELECT path, status, parser_version, chunk_count, error_message, last_modified, indexed_at, file_hash, last_retry FROM file_status WHERE status = ?`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var status string
	var lastModified, indexedAt, lastRetry int64
	if err := row.Scan(&rec.Path, &status, &rec.ParserVersion, &rec.ChunkCount, &rec.ErrorMessage, &lastModified, &indexedAt, &rec.FileHash, &lastRetry); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.LastModified = time.UnixMilli(lastModified)
	rec.IndexedAt = time.UnixMilli(indexedAt)
	rec.LastRetry = time.UnixMilli(lastRetry)
	return rec, nil
}

// PruneMissing deletes records whose path no longer exists according to
// exists, implementing the startup reconciliation sweep (SPEC_FULL §5.3).
// Returns the paths it pruned so the caller can also drop their chunk rows
// (Data Model invariant 1: every chunk row must have a matching status
// record) — deleting the status record alone would leave those chunks
// orphaned in the vector store.
func (r *Repository) PruneMissing(exists func(path string) bool) ([]string, error) {
	records, err := r.List()
	if err != nil {
		return nil, err
	}

	var pruned []string
	for _, rec := range records {
		if !exists(rec.Path) {
			if err := r.Delete(rec.Path); err != nil {
				return pruned, err
			}
			pruned = append(pruned, rec.Path)
		}
	}
	return pruned, nil
}
