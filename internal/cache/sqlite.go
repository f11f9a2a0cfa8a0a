package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"mediadex/internal/cache/migrations"
	"mediadex/internal/index"
	"mediadex/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store implements the metadata cache on SQLite. One row per remote file,
// plus a single-row sync_state table holding the cursor.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the cache database at path and migrates it to the
// latest schema. path can be a file path or ":memory:".
func Open(path string) (*Store, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating cache database: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a raw configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A pooled ":memory:" handle would give every connection its own empty
	// database; pin it to one connection so the schema survives.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Foreign keys default to OFF in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	// Sync and processing share the connection; wait for locks instead of
	// failing with SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

const fileColumns = `id, path, name, parent_path, file_type, size, duration_seconds,
	modified_at, content_hash, last_synced_at, processed_hash`

const upsertFileSQL = `
	INSERT INTO files (id, path, name, parent_path, file_type, size, duration_seconds,
		modified_at, content_hash, last_synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		path = excluded.path,
		name = excluded.name,
		parent_path = excluded.parent_path,
		file_type = excluded.file_type,
		size = excluded.size,
		duration_seconds = excluded.duration_seconds,
		modified_at = excluded.modified_at,
		content_hash = excluded.content_hash,
		last_synced_at = excluded.last_synced_at`

// Upsert inserts or updates one record by ID. processed_hash is deliberately
// not in the update set: a metadata refresh never clears the processed marker,
// and staleness is derived by comparing it to content_hash.
func (s *Store) Upsert(rec *model.FileRecord) error {
	_, err := s.db.Exec(upsertFileSQL,
		rec.ID, rec.Path, rec.Name, rec.ParentPath, string(rec.FileType),
		rec.Size, rec.DurationSeconds, rec.ModifiedAt, rec.ContentHash, rec.LastSyncedAt)
	if err != nil {
		return fmt.Errorf("upserting file %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given remote ID, or nil if absent.
func (s *Store) Get(id string) (*model.FileRecord, error) {
	row := s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	rec, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file by id: %w", err)
	}
	return rec, nil
}

// GetByPath returns the record with the given canonical path, or nil.
func (s *Store) GetByPath(path string) (*model.FileRecord, error) {
	row := s.db.QueryRow(`SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	rec, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file by path: %w", err)
	}
	return rec, nil
}

// Delete hard-removes a record. Deleting an absent ID is a no-op.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM files WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting file %s: %w", id, err)
	}
	return nil
}

// AllIDs returns every cached remote ID.
func (s *Store) AllIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM files`)
	if err != nil {
		return nil, fmt.Errorf("listing file ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning file id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListStale returns records never indexed or indexed at a different content
// hash, optionally filtered by file type ("" = all). Ordered by path so runs
// are deterministic and resumable by offset.
func (s *Store) ListStale(fileType model.FileType) ([]*model.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE (processed_hash IS NULL OR processed_hash != content_hash)`
	args := []any{}
	if fileType != "" {
		query += ` AND file_type = ?`
		args = append(args, string(fileType))
	}
	query += ` ORDER BY path`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing stale files: %w", err)
	}
	defer rows.Close()

	var records []*model.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stale file: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ApplyListing applies one sync page in a single transaction: all deletions,
// then all upserts, and (when cursorToken is non-empty) the cursor advance
// commit together or not at all. A crash between pages therefore leaves the
// cursor pointing at the last fully applied page.
//
// Deletions run first so a page carrying delete(old) + add(new) at the same
// path does not trip the UNIQUE path constraint. An upsert whose path is
// still held by a row with a different ID (path reuse in a full listing,
// where deletions are only inferred at the end) displaces that row; the
// displaced IDs are returned for derived-state cleanup.
func (s *Store) ApplyListing(records []*model.FileRecord, deletedIDs []string, cursorToken string) ([]string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range deletedIDs {
		if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("deleting file %s: %w", id, err)
		}
	}

	var displaced []string
	for _, rec := range records {
		var holder string
		err := tx.QueryRow(`SELECT id FROM files WHERE path = ? AND id != ?`, rec.Path, rec.ID).Scan(&holder)
		switch {
		case err == nil:
			if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, holder); err != nil {
				return nil, fmt.Errorf("displacing file %s: %w", holder, err)
			}
			displaced = append(displaced, holder)
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("checking path %s: %w", rec.Path, err)
		}

		_, err = tx.Exec(upsertFileSQL,
			rec.ID, rec.Path, rec.Name, rec.ParentPath, string(rec.FileType),
			rec.Size, rec.DurationSeconds, rec.ModifiedAt, rec.ContentHash, rec.LastSyncedAt)
		if err != nil {
			return nil, fmt.Errorf("upserting file %s: %w", rec.ID, err)
		}
	}

	if cursorToken != "" {
		if _, err := tx.Exec(`UPDATE sync_state SET cursor_token = ? WHERE id = 1`, cursorToken); err != nil {
			return nil, fmt.Errorf("advancing cursor: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing listing: %w", err)
	}
	return displaced, nil
}

// Cursor returns the sync cursor state.
func (s *Store) Cursor() (*model.SyncCursor, error) {
	var cur model.SyncCursor
	var full, incr sql.NullTime
	err := s.db.QueryRow(
		`SELECT cursor_token, last_full_sync_at, last_incremental_sync_at FROM sync_state WHERE id = 1`,
	).Scan(&cur.Token, &full, &incr)
	if err != nil {
		return nil, fmt.Errorf("loading sync state: %w", err)
	}
	if full.Valid {
		cur.LastFullSyncAt = &full.Time
	}
	if incr.Valid {
		cur.LastIncrementalSyncAt = &incr.Time
	}
	return &cur, nil
}

// SetCursor stores the cursor token and stamps the matching sync time.
func (s *Store) SetCursor(token string, fullSync bool, at time.Time) error {
	column := "last_incremental_sync_at"
	if fullSync {
		column = "last_full_sync_at"
	}
	_, err := s.db.Exec(
		`UPDATE sync_state SET cursor_token = ?, `+column+` = ? WHERE id = 1`, token, at)
	if err != nil {
		return fmt.Errorf("storing sync cursor: %w", err)
	}
	return nil
}

// MarkProcessed records the content hash the file was indexed at.
func (s *Store) MarkProcessed(id, processedHash string) error {
	res, err := s.db.Exec(`UPDATE files SET processed_hash = ? WHERE id = ?`, processedHash, id)
	if err != nil {
		return fmt.Errorf("marking file %s processed: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("marking file %s processed: no such file", id)
	}
	return nil
}

// Stats returns cache-level counters for the status surface.
func (s *Store) Stats() (*model.CacheStats, error) {
	stats := &model.CacheStats{ByType: make(map[model.FileType]int64)}

	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM files`).
		Scan(&stats.TotalFiles, &stats.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("counting files: %w", err)
	}

	rows, err := s.db.Query(`SELECT file_type, COUNT(*) FROM files GROUP BY file_type`)
	if err != nil {
		return nil, fmt.Errorf("counting files by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ft string
		var n int64
		if err := rows.Scan(&ft, &n); err != nil {
			return nil, fmt.Errorf("scanning type count: %w", err)
		}
		stats.ByType[model.FileType(ft)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cur, err := s.Cursor()
	if err != nil {
		return nil, err
	}
	stats.CursorToken = cur.Token
	stats.LastFullSyncAt = cur.LastFullSyncAt
	stats.LastIncrementalSyncAt = cur.LastIncrementalSyncAt

	if s.path != "" && s.path != ":memory:" {
		if info, err := os.Stat(s.path); err == nil {
			stats.DatabaseSizeBytes = info.Size()
		}
	}

	return stats, nil
}

// Path returns the database file path (or ":memory:").
func (s *Store) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *Store) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*model.FileRecord, error) {
	var rec model.FileRecord
	var fileType string
	var processedHash sql.NullString
	err := row.Scan(&rec.ID, &rec.Path, &rec.Name, &rec.ParentPath, &fileType,
		&rec.Size, &rec.DurationSeconds, &rec.ModifiedAt, &rec.ContentHash,
		&rec.LastSyncedAt, &processedHash)
	if err != nil {
		return nil, err
	}
	rec.FileType = model.FileType(fileType)
	rec.ProcessedHash = processedHash.String
	return &rec, nil
}

// Compile-time check that Store implements the cache interface.
var _ index.MetadataStore = (*Store)(nil)
