package index_test

import (
	"context"
	"testing"
	"time"

	"mediadex/internal/cache"
	"mediadex/internal/index"
	"mediadex/internal/model"
	"mediadex/internal/remote"
	"mediadex/internal/testutil"
)

func newSyncHarness(t *testing.T) (*index.Synchronizer, *cache.Store, *remote.Memory, *testutil.MemoryVectorStore) {
	t.Helper()
	store := testutil.NewTestCache(t)
	source := remote.NewMemory()
	vectors := testutil.NewMemoryVectorStore()
	sync := index.NewSynchronizer(store, source, vectors,
		index.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator())
	return sync, store, source, vectors
}

func remoteFile(id, hash string) model.RemoteEntry {
	return model.RemoteEntry{
		ID:          id,
		Path:        "/" + id + ".jpg",
		Name:        id + ".jpg",
		FileType:    model.FileTypeImage,
		Size:        10,
		ModifiedAt:  time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		ContentHash: hash,
	}
}

func TestSynchronizer_FullSync(t *testing.T) {
	t.Run("populates the cache and stores a cursor", func(t *testing.T) {
		sync, store, source, _ := newSyncHarness(t)
		source.AddFile(remoteFile("a", "ha"), nil)
		source.AddFile(remoteFile("b", "hb"), nil)

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		ids, err := store.AllIDs()
		if err != nil {
			t.Fatalf("AllIDs() error = %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("cached %d files, want 2", len(ids))
		}

		cur, err := store.Cursor()
		if err != nil {
			t.Fatalf("Cursor() error = %v", err)
		}
		if cur.Token == "" {
			t.Error("cursor token not stored after full sync")
		}
		if cur.LastFullSyncAt == nil {
			t.Error("full sync time not stamped")
		}
	})

	t.Run("removes cached files absent from a complete listing", func(t *testing.T) {
		sync, store, source, vectors := newSyncHarness(t)
		source.AddFile(remoteFile("keep", "h1"), nil)
		source.AddFile(remoteFile("drop", "h2"), nil)

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("first Run() error = %v", err)
		}
		vectors.Upsert(context.Background(), &model.ProcessedDocument{
			ID: "drop", Embedding: []float32{1},
		})

		source.RemoveFile("drop")
		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("second Run() error = %v", err)
		}

		rec, err := store.Get("drop")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if rec != nil {
			t.Error("file absent from full listing was not removed")
		}
		if vectors.Get("drop") != nil {
			t.Error("deletion was not propagated to the vector database")
		}
	})

	t.Run("resolves path reuse even though deletions are inferred last", func(t *testing.T) {
		sync, store, source, vectors := newSyncHarness(t)
		old := remoteFile("old", "h1")
		source.AddFile(old, nil)

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("first Run() error = %v", err)
		}
		vectors.Upsert(context.Background(), &model.ProcessedDocument{
			ID: "old", Embedding: []float32{1},
		})

		source.RemoveFile("old")
		reupload := remoteFile("new", "h2")
		reupload.Path = old.Path
		source.AddFile(reupload, nil)

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("second Run() error = %v", err)
		}

		if got, _ := store.Get("old"); got != nil {
			t.Error("displaced file still cached")
		}
		got, _ := store.Get("new")
		if got == nil || got.Path != old.Path {
			t.Errorf("re-uploaded file = %+v, want it at %s", got, old.Path)
		}
		if vectors.Get("old") != nil {
			t.Error("displaced file's document not removed from the vector database")
		}
	})

	t.Run("retries transient listing failures", func(t *testing.T) {
		sync, store, source, _ := newSyncHarness(t)
		source.AddFile(remoteFile("a", "ha"), nil)
		source.FailNextLists(2)

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if rec, _ := store.Get("a"); rec == nil {
			t.Error("file not cached after retried listing")
		}
	})
}

func TestSynchronizer_IncrementalSync(t *testing.T) {
	t.Run("applies adds, modifications, and explicit deletions", func(t *testing.T) {
		sync, store, source, vectors := newSyncHarness(t)
		source.AddFile(remoteFile("a", "ha"), nil)
		source.AddFile(remoteFile("b", "hb"), nil)

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("full Run() error = %v", err)
		}
		vectors.Upsert(context.Background(), &model.ProcessedDocument{
			ID: "b", Embedding: []float32{1},
		})

		source.AddFile(remoteFile("a", "ha-v2"), nil) // modified
		source.AddFile(remoteFile("c", "hc"), nil)    // new
		source.RemoveFile("b")

		if err := sync.Run(context.Background(), false); err != nil {
			t.Fatalf("incremental Run() error = %v", err)
		}

		a, _ := store.Get("a")
		if a == nil || a.ContentHash != "ha-v2" {
			t.Errorf("modified file hash = %v, want ha-v2", a)
		}
		if c, _ := store.Get("c"); c == nil {
			t.Error("new file from delta not cached")
		}
		if b, _ := store.Get("b"); b != nil {
			t.Error("explicitly deleted file still cached")
		}
		if vectors.Get("b") != nil {
			t.Error("deletion not propagated to the vector database")
		}

		cur, _ := store.Cursor()
		if cur.LastIncrementalSyncAt == nil {
			t.Error("incremental sync time not stamped")
		}
	})

	t.Run("applies a delete-and-reupload at the same path", func(t *testing.T) {
		sync, store, source, vectors := newSyncHarness(t)
		old := remoteFile("old", "h1")
		source.AddFile(old, nil)

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("full Run() error = %v", err)
		}
		vectors.Upsert(context.Background(), &model.ProcessedDocument{
			ID: "old", Embedding: []float32{1},
		})

		source.RemoveFile("old")
		reupload := remoteFile("new", "h2")
		reupload.Path = old.Path
		source.AddFile(reupload, nil)

		if err := sync.Run(context.Background(), false); err != nil {
			t.Fatalf("incremental Run() error = %v", err)
		}

		if got, _ := store.Get("old"); got != nil {
			t.Error("replaced file still cached")
		}
		got, _ := store.Get("new")
		if got == nil || got.Path != old.Path {
			t.Errorf("re-uploaded file = %+v, want it at %s", got, old.Path)
		}
		if vectors.Get("old") != nil {
			t.Error("replaced file's document not removed from the vector database")
		}

		// The cursor advanced past the page, so the next run has nothing left.
		if err := sync.Run(context.Background(), false); err != nil {
			t.Fatalf("follow-up Run() error = %v", err)
		}
	})

	t.Run("only content changes mark files for reprocessing", func(t *testing.T) {
		sync, store, source, _ := newSyncHarness(t)
		source.AddFile(remoteFile("a", "ha"), nil)
		source.AddFile(remoteFile("b", "hb"), nil)
		source.AddFile(remoteFile("c", "hc"), nil)

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("full Run() error = %v", err)
		}
		for _, id := range []string{"a", "b", "c"} {
			rec, _ := store.Get(id)
			if err := store.MarkProcessed(id, rec.ContentHash); err != nil {
				t.Fatalf("MarkProcessed(%s) error = %v", id, err)
			}
		}

		source.AddFile(remoteFile("b", "hb-v2"), nil) // content changed
		source.RemoveFile("c")
		source.AddFile(remoteFile("d", "hd"), nil) // new

		if err := sync.Run(context.Background(), false); err != nil {
			t.Fatalf("incremental Run() error = %v", err)
		}

		stale, err := store.ListStale("")
		if err != nil {
			t.Fatalf("ListStale() error = %v", err)
		}
		if len(stale) != 2 {
			t.Fatalf("ListStale() returned %d files, want 2 (modified b, new d)", len(stale))
		}
		staleIDs := map[string]bool{}
		for _, rec := range stale {
			staleIDs[rec.ID] = true
		}
		if !staleIDs["b"] || !staleIDs["d"] {
			t.Errorf("stale set = %v, want {b, d}", staleIDs)
		}
	})

	t.Run("falls back to full sync on an invalid cursor", func(t *testing.T) {
		sync, store, source, _ := newSyncHarness(t)
		source.AddFile(remoteFile("a", "ha"), nil)

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("full Run() error = %v", err)
		}

		source.AddFile(remoteFile("b", "hb"), nil)
		source.RemoveFile("a")
		source.InvalidateCursors()

		if err := sync.Run(context.Background(), false); err != nil {
			t.Fatalf("incremental Run() with invalid cursor error = %v", err)
		}

		if b, _ := store.Get("b"); b == nil {
			t.Error("new file not cached by fallback full sync")
		}
		if a, _ := store.Get("a"); a != nil {
			t.Error("removed file survived fallback full sync")
		}
	})

	t.Run("a failed run leaves the cursor at the last applied page", func(t *testing.T) {
		sync, store, source, _ := newSyncHarness(t)
		source.AddFile(remoteFile("a", "ha"), nil)

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("full Run() error = %v", err)
		}

		source.SetPageSize(1)
		source.AddFile(remoteFile("b", "hb"), nil)
		source.AddFile(remoteFile("c", "hc"), nil)

		// Every attempt of the first delta page fails; nothing is applied
		// and the cursor stays put.
		source.FailNextLists(5)
		if err := sync.Run(context.Background(), false); err == nil {
			t.Fatal("Run() succeeded despite exhausted retries")
		}
		if b, _ := store.Get("b"); b != nil {
			t.Error("delta applied despite listing failure")
		}

		// The next run re-delivers from the committed cursor: the two
		// leftover failures are absorbed by retries.
		if err := sync.Run(context.Background(), false); err != nil {
			t.Fatalf("recovery Run() error = %v", err)
		}
		if b, _ := store.Get("b"); b == nil {
			t.Error("delta not re-delivered after recovery")
		}
		if c, _ := store.Get("c"); c == nil {
			t.Error("second delta page not applied after recovery")
		}
	})
}

func TestSynchronizer_PauseResume(t *testing.T) {
	t.Run("resumes a paused full sync from its page token", func(t *testing.T) {
		sync, store, source, _ := newSyncHarness(t)
		for _, id := range []string{"a", "b", "c"} {
			source.AddFile(remoteFile(id, "h-"+id), nil)
		}
		source.SetPageSize(1)

		listCalls := 0
		source.SetPageHook(func(pageToken string) {
			listCalls++
			if listCalls == 1 {
				sync.Pause()
			}
		})

		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := sync.Status().State; got != index.JobPaused {
			t.Fatalf("State = %q, want paused", got)
		}

		if err := sync.Resume(context.Background()); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if got := sync.Status().State; got != index.JobCompleted {
			t.Errorf("State = %q, want completed", got)
		}

		ids, _ := store.AllIDs()
		if len(ids) != 3 {
			t.Errorf("cached %d files after resume, want 3", len(ids))
		}
		// One page before the pause, two after: the applied page is not
		// re-listed.
		if listCalls != 3 {
			t.Errorf("ListAll called %d times, want 3", listCalls)
		}
	})

	t.Run("a second run while paused is rejected", func(t *testing.T) {
		sync, _, source, _ := newSyncHarness(t)
		source.AddFile(remoteFile("a", "ha"), nil)
		source.SetPageSize(1)
		source.AddFile(remoteFile("b", "hb"), nil)

		source.SetPageHook(func(string) { sync.Pause() })
		if err := sync.Run(context.Background(), true); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := sync.Status().State; got != index.JobPaused {
			t.Fatalf("State = %q, want paused", got)
		}

		if err := sync.Run(context.Background(), true); err != index.ErrJobActive {
			t.Errorf("Run() while paused error = %v, want ErrJobActive", err)
		}
	})
}
