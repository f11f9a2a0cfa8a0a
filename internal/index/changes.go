package index

import (
	"fmt"
	"path"
	"time"

	"mediadex/internal/model"
)

// ChangeSet is the classification of one page of remote entries against the
// local cache.
type ChangeSet struct {
	New      []model.RemoteEntry
	Modified []model.RemoteEntry

	// Unchanged entries share their content hash with the local record.
	// They still get a metadata refresh (size, timestamps, last-synced)
	// but are never marked stale: hash equality is authoritative for
	// "does this need new AI outputs".
	Unchanged []model.RemoteEntry
}

// UnchangedCount returns the number of entries classified as unchanged.
func (c *ChangeSet) UnchangedCount() int { return len(c.Unchanged) }

// ChangeDetector compares remote listings against the metadata cache.
type ChangeDetector struct {
	store MetadataStore
}

// NewChangeDetector creates a detector backed by the given cache.
func NewChangeDetector(store MetadataStore) *ChangeDetector {
	return &ChangeDetector{store: store}
}

// Classify buckets each remote entry as new, modified, or unchanged.
//
// Deletions are not inferred here: a full listing infers them from absence
// only after every page was applied without error (see Synchronizer), and
// incremental deltas carry explicit deletion markers.
func (d *ChangeDetector) Classify(entries []model.RemoteEntry) (*ChangeSet, error) {
	cs := &ChangeSet{}

	for _, entry := range entries {
		local, err := d.store.Get(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("looking up %s: %w", entry.ID, err)
		}

		switch {
		case local == nil:
			cs.New = append(cs.New, entry)
		case local.ContentHash != entry.ContentHash:
			cs.Modified = append(cs.Modified, entry)
		default:
			cs.Unchanged = append(cs.Unchanged, entry)
		}
	}

	return cs, nil
}

// Records converts every classified entry into a FileRecord stamped with the
// given sync time. All three buckets are included: unchanged entries are
// upserted too so their metadata stays fresh, and the store's upsert
// preserves ProcessedHash so the refresh never triggers reprocessing.
func (c *ChangeSet) Records(syncedAt time.Time) []*model.FileRecord {
	records := make([]*model.FileRecord, 0, len(c.New)+len(c.Modified)+len(c.Unchanged))
	for _, bucket := range [][]model.RemoteEntry{c.New, c.Modified, c.Unchanged} {
		for _, entry := range bucket {
			records = append(records, recordFromEntry(entry, syncedAt))
		}
	}
	return records
}

// recordFromEntry maps a listing entry to a cache record.
func recordFromEntry(entry model.RemoteEntry, syncedAt time.Time) *model.FileRecord {
	return &model.FileRecord{
		ID:              entry.ID,
		Path:            entry.Path,
		Name:            entry.Name,
		ParentPath:      parentPath(entry.Path),
		FileType:        entry.FileType,
		Size:            entry.Size,
		DurationSeconds: entry.DurationSeconds,
		ModifiedAt:      entry.ModifiedAt,
		ContentHash:     entry.ContentHash,
		LastSyncedAt:    syncedAt,
	}
}

// parentPath returns the containing path of a slash-separated remote path,
// or "" for top-level entries.
func parentPath(p string) string {
	p = path.Dir(p)
	if p == "." || p == "/" {
		return ""
	}
	return p
}
