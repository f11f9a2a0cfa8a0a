package vecstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"mediadex/internal/index"
	"mediadex/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store implements the vector database on SQLite: one row per processed
// document, embeddings as float32 BLOBs. Nearest-neighbour search is a
// brute-force scan with cosine distance, which holds up fine at personal
// collection sizes.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	name TEXT NOT NULL,
	file_type TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	modified_at TIMESTAMP NOT NULL,
	processed_at TIMESTAMP NOT NULL,
	caption TEXT NOT NULL,
	caption_origin TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	content_hash TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_file_type ON documents(file_type);
`

// Open opens (or creates) the vector database at path and ensures its schema.
// path can be a file path or ":memory:".
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	// A pooled ":memory:" handle would give every connection its own empty
	// database; pin it to one connection so the schema survives.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring vector schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Upsert creates or overwrites the document keyed by its ID. Documents with
// an empty embedding are rejected; the writer validates dimensionality before
// calling in, this is the storage-level backstop.
func (s *Store) Upsert(ctx context.Context, doc *model.ProcessedDocument) error {
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document %s has empty embedding", doc.ID)
	}

	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, path, name, file_type, size, modified_at,
			processed_at, caption, caption_origin, tags, content_hash, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			name = excluded.name,
			file_type = excluded.file_type,
			size = excluded.size,
			modified_at = excluded.modified_at,
			processed_at = excluded.processed_at,
			caption = excluded.caption,
			caption_origin = excluded.caption_origin,
			tags = excluded.tags,
			content_hash = excluded.content_hash,
			embedding = excluded.embedding`,
		doc.ID, doc.Path, doc.Name, string(doc.FileType), doc.Size, doc.ModifiedAt,
		doc.ProcessedAt, doc.Caption, string(doc.CaptionOrigin), string(tags),
		doc.ContentHash, EncodeEmbedding(doc.Embedding))
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes a document by ID. Deleting an absent ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

// Nearest returns up to limit documents ordered by ascending cosine distance
// to the query vector, excluding anything farther than maxDistance. Documents
// whose stored embedding cannot be compared (malformed blob, dimension
// mismatch) are skipped, not errors; CheckVectors surfaces them.
func (s *Store) Nearest(ctx context.Context, vector []float32, limit int, maxDistance float64, fileType model.FileType) ([]model.VectorHit, error) {
	docs, err := s.scan(ctx, fileType)
	if err != nil {
		return nil, err
	}

	var hits []model.VectorHit
	for _, doc := range docs {
		dist, err := cosineDistance(vector, doc.Embedding)
		if err != nil {
			continue
		}
		if dist > maxDistance {
			continue
		}
		hits = append(hits, model.VectorHit{Document: doc, Distance: dist})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// MatchText returns documents whose caption, name, or path contains the query
// as a substring, case-insensitively.
func (s *Store) MatchText(ctx context.Context, query string, limit int, fileType model.FileType) ([]*model.ProcessedDocument, error) {
	pattern := "%" + escapeLike(query) + "%"
	sqlQuery := `SELECT ` + documentColumns + ` FROM documents
		WHERE (caption LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\' OR path LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern, pattern}
	if fileType != "" {
		sqlQuery += ` AND file_type = ?`
		args = append(args, string(fileType))
	}
	sqlQuery += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("matching text: %w", err)
	}
	defer rows.Close()

	var docs []*model.ProcessedDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Stats returns document counts for the status surface.
func (s *Store) Stats(ctx context.Context) (*model.IndexStats, error) {
	stats := &model.IndexStats{ByType: make(map[model.FileType]int64)}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.TotalDocuments)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT file_type, COUNT(*) FROM documents GROUP BY file_type`)
	if err != nil {
		return nil, fmt.Errorf("counting documents by type: %w", err)
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
	return stats, rows.Err()
}

// CheckVectors scans every stored embedding and reports well-formedness and
// the distribution of dimensions. Debug surface only.
func (s *Store) CheckVectors(ctx context.Context) (*model.VectorReport, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("scanning vectors: %w", err)
	}
	defer rows.Close()

	report := &model.VectorReport{SampleDims: make(map[int]int64)}
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		report.Documents++

		vec, err := DecodeEmbedding(blob)
		if err != nil || len(vec) == 0 {
			report.Malformed++
			if report.MalformedID == "" {
				report.MalformedID = id
			}
			continue
		}
		report.WellFormed++
		report.SampleDims[len(vec)]++
	}
	return report, rows.Err()
}

// Path returns the database file path (or ":memory:").
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const documentColumns = `id, path, name, file_type, size, modified_at,
	processed_at, caption, caption_origin, tags, content_hash, embedding`

// scan loads all documents, optionally filtered by type, decoding embeddings.
func (s *Store) scan(ctx context.Context, fileType model.FileType) ([]*model.ProcessedDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if fileType != "" {
		query += ` WHERE file_type = ?`
		args = append(args, string(fileType))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scanning documents: %w", err)
	}
	defer rows.Close()

	var docs []*model.ProcessedDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(rows *sql.Rows) (*model.ProcessedDocument, error) {
	var doc model.ProcessedDocument
	var fileType, origin, tags string
	var blob []byte
	err := rows.Scan(&doc.ID, &doc.Path, &doc.Name, &fileType, &doc.Size,
		&doc.ModifiedAt, &doc.ProcessedAt, &doc.Caption, &origin, &tags,
		&doc.ContentHash, &blob)
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.FileType = model.FileType(fileType)
	doc.CaptionOrigin = model.CaptionOrigin(origin)
	if err := json.Unmarshal([]byte(tags), &doc.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags for %s: %w", doc.ID, err)
	}
	// A malformed blob yields a nil embedding here rather than failing the
	// whole read; distance computation skips such documents.
	if vec, err := DecodeEmbedding(blob); err == nil {
		doc.Embedding = vec
	}
	return &doc, nil
}

// escapeLike escapes LIKE wildcards in user-supplied query text.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Compile-time check that Store implements the vector database interface.
var _ index.VectorStore = (*Store)(nil)
