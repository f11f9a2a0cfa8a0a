package index

import (
	"context"
	"io"
	"time"

	"mediadex/internal/model"
)

// MetadataStore provides an interface for the local file-metadata cache.
// Implementations must make Upsert safe under concurrent callers
// (last-writer-wins per ID is acceptable; each in-flight file is owned by
// exactly one task).
type MetadataStore interface {
	// Upsert inserts or updates a record keyed by ID. A metadata refresh
	// with an unchanged content hash must not clear ProcessedHash.
	Upsert(rec *model.FileRecord) error

	// Get returns the record with the given remote ID, or nil if absent.
	Get(id string) (*model.FileRecord, error)

	// GetByPath returns the record with the given canonical path, or nil.
	// Backed by an index; used for interactive listing.
	GetByPath(path string) (*model.FileRecord, error)

	// Delete hard-removes a record. A later reappearance of the same
	// remote ID is a fresh insert.
	Delete(id string) error

	// AllIDs returns every cached remote ID.
	AllIDs() ([]string, error)

	// ListStale returns records whose ProcessedHash is absent or differs
	// from ContentHash, optionally filtered by file type ("" = all).
	ListStale(fileType model.FileType) ([]*model.FileRecord, error)

	// ApplyListing applies one sync page atomically: all deletions, then all
	// upserts, and (when cursorToken is non-empty) the cursor advance commit
	// together or not at all. A record claiming a path still held by a row
	// with a different ID displaces that row; the displaced IDs are returned
	// so callers can clean up derived state.
	ApplyListing(records []*model.FileRecord, deletedIDs []string, cursorToken string) (displaced []string, err error)

	// Cursor returns the sync cursor state.
	Cursor() (*model.SyncCursor, error)

	// SetCursor stores the cursor token and stamps the matching sync time.
	SetCursor(token string, fullSync bool, at time.Time) error

	// MarkProcessed records the content hash a file was indexed at.
	// Called only after a confirmed vector-database write.
	MarkProcessed(id, processedHash string) error

	// Stats returns cache-level counters for the status surface.
	Stats() (*model.CacheStats, error)

	// Close closes the underlying database.
	Close() error
}

// ListPage is one page of a full remote listing. PageToken is the token for
// the next page, empty on the final page; Cursor is set on the final page and
// represents "caught up as of this listing".
type ListPage struct {
	Entries   []model.RemoteEntry
	PageToken string
	Cursor    string
}

// DeltaPage is one page of an incremental delta listing. Deletions are
// explicit; absence from a delta means "unchanged", never "deleted".
type DeltaPage struct {
	Entries    []model.RemoteEntry
	DeletedIDs []string
	Cursor     string // Cursor after applying this page
	HasMore    bool
}

// RemoteSource provides an interface to the remote file collection.
type RemoteSource interface {
	// ListAll returns one page of the complete remote tree. An empty
	// pageToken starts a new listing.
	ListAll(ctx context.Context, pageToken string) (*ListPage, error)

	// ListDelta returns changes since the given cursor, or ErrCursorInvalid
	// when the cursor has expired and a full listing is required.
	ListDelta(ctx context.Context, cursor string) (*DeltaPage, error)

	// GetBytes streams the content of a file. The caller must close the reader.
	GetBytes(ctx context.Context, id string) (io.ReadCloser, error)

	// FrameBytes returns an encoded still frame of a video at the given
	// offset, or ErrFrameUnavailable when the source cannot sample frames.
	FrameBytes(ctx context.Context, id string, offset time.Duration) ([]byte, error)
}

// Captioner describes an image in natural language.
type Captioner interface {
	Caption(ctx context.Context, image []byte) (string, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions is the expected embedding length. Vectors of any other
	// length are rejected before storage.
	Dimensions() int
}

// VectorStore provides an interface to the vector database. The processing
// pipeline is the only writer; the retrieval engine only reads.
type VectorStore interface {
	// Upsert creates or overwrites the document keyed by its ID.
	// Implementations must reject documents with an empty embedding.
	Upsert(ctx context.Context, doc *model.ProcessedDocument) error

	// Delete removes a document by ID. Deleting an absent ID is a no-op.
	Delete(ctx context.Context, id string) error

	// Nearest returns up to limit documents ordered by ascending distance
	// to the query vector, excluding anything farther than maxDistance.
	// fileType "" means no filter.
	Nearest(ctx context.Context, vector []float32, limit int, maxDistance float64, fileType model.FileType) ([]model.VectorHit, error)

	// MatchText returns documents whose caption, name, or path contains
	// the query as a substring (case-insensitive).
	MatchText(ctx context.Context, query string, limit int, fileType model.FileType) ([]*model.ProcessedDocument, error)

	// Stats returns document counts for the status surface.
	Stats(ctx context.Context) (*model.IndexStats, error)

	// CheckVectors scans stored embeddings and reports well-formedness and
	// sample dimensionality. Debug surface only.
	CheckVectors(ctx context.Context) (*model.VectorReport, error)
}
