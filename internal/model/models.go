package model

import "time"

// FileType classifies a remote file by its extension.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
	FileTypeOther FileType = "other"
)

// FileRecord is the cached metadata for a single remote file.
// ID is the stable identifier assigned by the remote source.
type FileRecord struct {
	ID              string
	Path            string // Canonical remote path, used for lookups and display
	Name            string
	ParentPath      string
	FileType        FileType
	Size            int64
	DurationSeconds float64 // Media duration for videos; 0 for images or when unknown
	ModifiedAt      time.Time
	ContentHash     string // Remote-provided content fingerprint
	LastSyncedAt    time.Time
	ProcessedHash   string // ContentHash at last successful indexing; empty if never indexed
}

// Stale reports whether the file needs (re)processing. Hash comparison is the
// single source of truth; timestamps can stay equal across a content change
// at coarse granularity.
func (r *FileRecord) Stale() bool {
	return r.ProcessedHash == "" || r.ProcessedHash != r.ContentHash
}

// RemoteEntry is one file as reported by a remote source listing.
type RemoteEntry struct {
	ID              string
	Path            string
	Name            string
	FileType        FileType
	Size            int64
	DurationSeconds float64
	ModifiedAt      time.Time
	ContentHash     string
}

// SyncCursor marks the point up to which the local cache is current with the
// remote source. One cursor per cache.
type SyncCursor struct {
	Token                 string // Opaque token issued by the remote source; empty before first full sync
	LastFullSyncAt        *time.Time
	LastIncrementalSyncAt *time.Time
}

// CaptionOrigin records how a document's caption was produced.
type CaptionOrigin string

const (
	CaptionGenerated CaptionOrigin = "generated" // Captioning service output
	CaptionFallback  CaptionOrigin = "fallback"  // Synthesized from filename/path
)

// ProcessedDocument is one file as written to the vector database. Display
// fields are denormalized from the FileRecord so search results render
// without a join back to the metadata cache.
type ProcessedDocument struct {
	ID            string
	Path          string
	Name          string
	FileType      FileType
	Size          int64
	ModifiedAt    time.Time
	ProcessedAt   time.Time
	Caption       string
	CaptionOrigin CaptionOrigin
	Tags          []string
	ContentHash   string
	Embedding     []float32
}

// MatchSource identifies which search path produced a result.
type MatchSource string

const (
	MatchVector MatchSource = "vector"
	MatchText   MatchSource = "text"
)

// SearchResult is a ProcessedDocument annotated with its relevance for a
// single query. Ephemeral, never persisted.
type SearchResult struct {
	Document *ProcessedDocument
	Score    float64 // 0.0 to 1.0, higher is more relevant
	Source   MatchSource
}

// VectorHit is one nearest-neighbour match returned by the vector database.
type VectorHit struct {
	Document *ProcessedDocument
	Distance float64
}

// CacheStats summarizes the metadata cache.
type CacheStats struct {
	TotalFiles            int64              `json:"total_files"`
	ByType                map[FileType]int64 `json:"by_type"`
	TotalSize             int64              `json:"total_size"`
	DatabaseSizeBytes     int64              `json:"database_size_bytes"`
	CursorToken           string             `json:"cursor_token"`
	LastFullSyncAt        *time.Time         `json:"last_full_sync_at,omitempty"`
	LastIncrementalSyncAt *time.Time         `json:"last_incremental_sync_at,omitempty"`
}

// IndexStats summarizes the vector database contents.
type IndexStats struct {
	TotalDocuments int64              `json:"total_documents"`
	ByType         map[FileType]int64 `json:"by_type"`
}

// VectorReport is the result of a well-formedness scan over the stored
// vectors, used by the debug surface.
type VectorReport struct {
	Documents   int64
	WellFormed  int64
	Malformed   int64
	SampleDims  map[int]int64 // dimension -> document count
	MalformedID string        // first offending document, if any
}
