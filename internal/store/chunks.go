package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// ChunksRepo persists chunk rows (text and position metadata; the embedding
// itself lives only in the VectorStore) in a SQLite table keyed by ID.
type ChunksRepo struct {
	db *sql.DB
}

// OpenChunksRepo opens (creating if needed) the SQLite-backed chunks table
// at path, alongside a schema_version row used to detect embedding
// dimension changes across restarts.
func OpenChunksRepo(path string) (*ChunksRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chunks db: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer, matches the Writer's serialized write queue

	r := &ChunksRepo{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *ChunksRepo) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id     TEXT PRIMARY KEY,
			path   TEXT NOT NULL,
			mtime  INTEGER NOT NULL,
			page   INTEGER NOT NULL,
			offset INTEGER NOT NULL,
			text   TEXT NOT NULL,
			type   TEXT NOT NULL,
			title  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);
		CREATE TABLE IF NOT EXISTS schema_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

func (r *ChunksRepo) Close() error { return r.db.Close() }

// SchemaVersion returns the persisted schema version, or 0 if none has been
// recorded yet (a fresh store).
func (r *ChunksRepo) SchemaVersion() (int, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var version int
	if _, err := fmt.Sscanf(value, "%d", &version); err != nil {
		return 0, fmt.Errorf("malformed schema version %q: %w", value, err)
	}
	return version, nil
}

// SetSchemaVersion persists version, the current build's expected schema
// version after a successful migration or wipe.
func (r *ChunksRepo) SetSchemaVersion(version int) error {
	_, err := r.db.Exec(`
		INSERT INTO schema_meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fmt.Sprintf("%d", version))
	return err
}

// Wipe deletes every chunk row. Used on a schema-version mismatch; the
// file-status table is untouched so the Reconciler re-enqueues everything.
func (r *ChunksRepo) Wipe() error {
	_, err := r.db.Exec(`DELETE FROM chunks`)
	return err
}

// Upsert replaces or inserts rows by ID.
func (r *ChunksRepo) Upsert(rows []ChunkRow) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (id, path, mtime, page, offset, text, type, title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			mtime = excluded.mtime,
			page = excluded.page,
			offset = excluded.offset,
			text = excluded.text,
			type = excluded.type,
			title = excluded.title
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(row.ID, row.Path, row.MTime, row.Page, row.Offset, row.Text, row.Type, row.Title); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteByPath removes every chunk row for path, returning their IDs so the
// caller can also remove them from the VectorStore.
func (r *ChunksRepo) DeleteByPath(path string) ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM chunks WHERE path = ?`, path)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}
	_, err = r.db.Exec(`DELETE FROM chunks WHERE path = ?`, path)
	return ids, err
}

// GetByIDs fetches chunk rows (without vectors) by ID, in no particular
// order, skipping IDs that no longer have a row.
func (r *ChunksRepo) GetByIDs(ids []string) (map[string]ChunkRow, error) {
	out := make(map[string]ChunkRow, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT id, path, mtime, page, offset, text, type, title FROM chunks WHERE id IN (%s)`, string(placeholders))
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var row ChunkRow
		if err := rows.Scan(&row.ID, &row.Path, &row.MTime, &row.Page, &row.Offset, &row.Text, &row.Type, &row.Title); err != nil {
			return nil, err
		}
		out[row.ID] = row
	}
	return out, rows.Err()
}

// Count returns the total number of chunk rows.
func (r *ChunksRepo) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}
