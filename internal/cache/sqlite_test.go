package cache_test

import (
	"testing"
	"time"

	"mediadex/internal/model"
	"mediadex/internal/testutil"
)

func record(id, hash string, fileType model.FileType) *model.FileRecord {
	return &model.FileRecord{
		ID:           id,
		Path:         "/media/" + id,
		Name:         id,
		ParentPath:   "/media",
		FileType:     fileType,
		Size:         100,
		ModifiedAt:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		ContentHash:  hash,
		LastSyncedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestStore_Upsert(t *testing.T) {
	t.Run("round-trips a record", func(t *testing.T) {
		store := testutil.NewTestCache(t)
		rec := record("a.jpg", "h1", model.FileTypeImage)
		rec.DurationSeconds = 12.5

		if err := store.Upsert(rec); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		got, err := store.Get("a.jpg")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got == nil {
			t.Fatal("Get() = nil for stored record")
		}
		if got.Path != "/media/a.jpg" || got.ContentHash != "h1" || got.DurationSeconds != 12.5 {
			t.Errorf("Get() = %+v", got)
		}
		if !got.ModifiedAt.Equal(rec.ModifiedAt) {
			t.Errorf("ModifiedAt = %v, want %v", got.ModifiedAt, rec.ModifiedAt)
		}
	})

	t.Run("metadata refresh preserves the processed marker", func(t *testing.T) {
		store := testutil.NewTestCache(t)
		rec := record("a.jpg", "h1", model.FileTypeImage)
		if err := store.Upsert(rec); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if err := store.MarkProcessed("a.jpg", "h1"); err != nil {
			t.Fatalf("MarkProcessed() error = %v", err)
		}

		refresh := record("a.jpg", "h1", model.FileTypeImage)
		refresh.Size = 999
		if err := store.Upsert(refresh); err != nil {
			t.Fatalf("refresh Upsert() error = %v", err)
		}

		got, _ := store.Get("a.jpg")
		if got.Size != 999 {
			t.Errorf("Size = %d, refresh not applied", got.Size)
		}
		if got.ProcessedHash != "h1" {
			t.Errorf("ProcessedHash = %q, refresh cleared the processed marker", got.ProcessedHash)
		}
		if got.Stale() {
			t.Error("record stale after metadata-only refresh")
		}
	})

	t.Run("missing records return nil without error", func(t *testing.T) {
		store := testutil.NewTestCache(t)
		got, err := store.Get("nope")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() = %+v, want nil", got)
		}

		got, err = store.GetByPath("/nope")
		if err != nil {
			t.Fatalf("GetByPath() error = %v", err)
		}
		if got != nil {
			t.Errorf("GetByPath() = %+v, want nil", got)
		}
	})
}

func TestStore_ListStale(t *testing.T) {
	store := testutil.NewTestCache(t)

	never := record("never.jpg", "h1", model.FileTypeImage)
	current := record("current.jpg", "h2", model.FileTypeImage)
	outdated := record("outdated.mp4", "h3-v2", model.FileTypeVideo)

	for _, rec := range []*model.FileRecord{never, current, outdated} {
		if err := store.Upsert(rec); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	store.MarkProcessed("current.jpg", "h2")
	store.MarkProcessed("outdated.mp4", "h3") // indexed at an older hash

	t.Run("returns never-processed and hash-changed files", func(t *testing.T) {
		stale, err := store.ListStale("")
		if err != nil {
			t.Fatalf("ListStale() error = %v", err)
		}
		if len(stale) != 2 {
			t.Fatalf("ListStale() returned %d records, want 2", len(stale))
		}
	})

	t.Run("filters by file type", func(t *testing.T) {
		stale, err := store.ListStale(model.FileTypeVideo)
		if err != nil {
			t.Fatalf("ListStale() error = %v", err)
		}
		if len(stale) != 1 || stale[0].ID != "outdated.mp4" {
			t.Errorf("ListStale(video) = %v, want only outdated.mp4", stale)
		}
	})
}

func TestStore_ApplyListing(t *testing.T) {
	t.Run("commits upserts, deletions, and cursor together", func(t *testing.T) {
		store := testutil.NewTestCache(t)
		if err := store.Upsert(record("old.jpg", "h0", model.FileTypeImage)); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		records := []*model.FileRecord{record("new.jpg", "h1", model.FileTypeImage)}
		if _, err := store.ApplyListing(records, []string{"old.jpg"}, "cursor-7"); err != nil {
			t.Fatalf("ApplyListing() error = %v", err)
		}

		if got, _ := store.Get("new.jpg"); got == nil {
			t.Error("upserted record missing")
		}
		if got, _ := store.Get("old.jpg"); got != nil {
			t.Error("deleted record still present")
		}
		cur, err := store.Cursor()
		if err != nil {
			t.Fatalf("Cursor() error = %v", err)
		}
		if cur.Token != "cursor-7" {
			t.Errorf("cursor token = %q, want cursor-7", cur.Token)
		}
	})

	t.Run("delete and re-add at the same path commit in one page", func(t *testing.T) {
		store := testutil.NewTestCache(t)
		old := record("old-id", "h1", model.FileTypeImage)
		old.Path = "/media/shared.jpg"
		if err := store.Upsert(old); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		reupload := record("new-id", "h2", model.FileTypeImage)
		reupload.Path = "/media/shared.jpg"
		displaced, err := store.ApplyListing([]*model.FileRecord{reupload}, []string{"old-id"}, "c1")
		if err != nil {
			t.Fatalf("ApplyListing() error = %v", err)
		}
		if len(displaced) != 0 {
			t.Errorf("displaced = %v, want none when the deletion is explicit", displaced)
		}

		if got, _ := store.Get("old-id"); got != nil {
			t.Error("deleted record still present")
		}
		got, _ := store.Get("new-id")
		if got == nil || got.Path != "/media/shared.jpg" {
			t.Errorf("re-added record = %+v, want it at the reused path", got)
		}
	})

	t.Run("an upsert claiming a held path displaces the holder", func(t *testing.T) {
		store := testutil.NewTestCache(t)
		old := record("old-id", "h1", model.FileTypeImage)
		old.Path = "/media/shared.jpg"
		if err := store.Upsert(old); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		reupload := record("new-id", "h2", model.FileTypeImage)
		reupload.Path = "/media/shared.jpg"
		displaced, err := store.ApplyListing([]*model.FileRecord{reupload}, nil, "")
		if err != nil {
			t.Fatalf("ApplyListing() error = %v", err)
		}
		if len(displaced) != 1 || displaced[0] != "old-id" {
			t.Fatalf("displaced = %v, want [old-id]", displaced)
		}

		if got, _ := store.Get("old-id"); got != nil {
			t.Error("displaced record still present")
		}
		if got, _ := store.Get("new-id"); got == nil {
			t.Error("record claiming the path not applied")
		}
	})

	t.Run("empty cursor leaves the stored token alone", func(t *testing.T) {
		store := testutil.NewTestCache(t)
		at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
		if err := store.SetCursor("keep-me", true, at); err != nil {
			t.Fatalf("SetCursor() error = %v", err)
		}

		if _, err := store.ApplyListing(nil, nil, ""); err != nil {
			t.Fatalf("ApplyListing() error = %v", err)
		}

		cur, _ := store.Cursor()
		if cur.Token != "keep-me" {
			t.Errorf("cursor token = %q, want keep-me", cur.Token)
		}
		if cur.LastFullSyncAt == nil || !cur.LastFullSyncAt.Equal(at) {
			t.Errorf("LastFullSyncAt = %v, want %v", cur.LastFullSyncAt, at)
		}
	})
}

func TestStore_MarkProcessed(t *testing.T) {
	t.Run("errors on an unknown file", func(t *testing.T) {
		store := testutil.NewTestCache(t)
		if err := store.MarkProcessed("ghost", "h1"); err == nil {
			t.Error("MarkProcessed() succeeded for a missing file")
		}
	})
}

func TestStore_Stats(t *testing.T) {
	store := testutil.NewTestCache(t)
	store.Upsert(record("a.jpg", "h1", model.FileTypeImage))
	store.Upsert(record("b.jpg", "h2", model.FileTypeImage))
	store.Upsert(record("c.mp4", "h3", model.FileTypeVideo))

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", stats.TotalFiles)
	}
	if stats.ByType[model.FileTypeImage] != 2 || stats.ByType[model.FileTypeVideo] != 1 {
		t.Errorf("ByType = %v", stats.ByType)
	}
	if stats.TotalSize != 300 {
		t.Errorf("TotalSize = %d, want 300", stats.TotalSize)
	}
}

func TestStore_AllIDsAndDelete(t *testing.T) {
	store := testutil.NewTestCache(t)
	store.Upsert(record("a.jpg", "h1", model.FileTypeImage))
	store.Upsert(record("b.jpg", "h2", model.FileTypeImage))

	ids, err := store.AllIDs()
	if err != nil {
		t.Fatalf("AllIDs() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("AllIDs() = %v, want 2 ids", ids)
	}

	if err := store.Delete("a.jpg"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete("a.jpg"); err != nil {
		t.Errorf("repeated Delete() error = %v, want no-op", err)
	}

	ids, _ = store.AllIDs()
	if len(ids) != 1 || ids[0] != "b.jpg" {
		t.Errorf("AllIDs() after delete = %v", ids)
	}
}
