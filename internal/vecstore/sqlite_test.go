package vecstore_test

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"mediadex/internal/model"
	"mediadex/internal/testutil"
	"mediadex/internal/vecstore"
)

func document(id, caption string, embedding []float32) *model.ProcessedDocument {
	return &model.ProcessedDocument{
		ID:            id,
		Path:          "/photos/" + id + ".jpg",
		Name:          id + ".jpg",
		FileType:      model.FileTypeImage,
		Size:          10,
		ModifiedAt:    time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		ProcessedAt:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Caption:       caption,
		CaptionOrigin: model.CaptionGenerated,
		Tags:          []string{"photo"},
		ContentHash:   "h-" + id,
		Embedding:     embedding,
	}
}

func TestStore_Upsert(t *testing.T) {
	t.Run("stores and overwrites documents", func(t *testing.T) {
		store := testutil.NewTestVectorDB(t)
		ctx := context.Background()

		doc := document("sunset", "a sunset over the beach", []float32{1, 0, 0})
		if err := store.Upsert(ctx, doc); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		update := document("sunset", "a vivid sunset over the beach", []float32{0, 1, 0})
		update.Tags = []string{"vivid", "sunset"}
		if err := store.Upsert(ctx, update); err != nil {
			t.Fatalf("overwrite Upsert() error = %v", err)
		}

		docs, err := store.MatchText(ctx, "vivid", 10, "")
		if err != nil {
			t.Fatalf("MatchText() error = %v", err)
		}
		if len(docs) != 1 {
			t.Fatalf("got %d documents, want 1 after overwrite", len(docs))
		}
		got := docs[0]
		if got.Caption != "a vivid sunset over the beach" {
			t.Errorf("Caption = %q", got.Caption)
		}
		if !reflect.DeepEqual(got.Tags, []string{"vivid", "sunset"}) {
			t.Errorf("Tags = %v", got.Tags)
		}
		if !reflect.DeepEqual(got.Embedding, []float32{0, 1, 0}) {
			t.Errorf("Embedding = %v", got.Embedding)
		}
	})

	t.Run("rejects an empty embedding", func(t *testing.T) {
		store := testutil.NewTestVectorDB(t)
		doc := document("bad", "caption", nil)
		if err := store.Upsert(context.Background(), doc); err == nil {
			t.Error("Upsert() accepted a document without an embedding")
		}
	})
}

func TestStore_Nearest(t *testing.T) {
	store := testutil.NewTestVectorDB(t)
	ctx := context.Background()

	store.Upsert(ctx, document("close", "a beach", []float32{1, 0, 0}))
	store.Upsert(ctx, document("far", "a spreadsheet", []float32{0, 0, 1}))

	t.Run("orders by cosine distance and applies the threshold", func(t *testing.T) {
		// Similarity 0.6 to "close", 0 to "far".
		hits, err := store.Nearest(ctx, []float32{0.6, 0.8, 0}, 10, 0.8, "")
		if err != nil {
			t.Fatalf("Nearest() error = %v", err)
		}
		if len(hits) != 1 {
			t.Fatalf("got %d hits, want 1 (orthogonal document excluded)", len(hits))
		}
		if hits[0].Document.ID != "close" {
			t.Errorf("hit = %q, want close", hits[0].Document.ID)
		}
		if math.Abs(hits[0].Distance-0.4) > 1e-6 {
			t.Errorf("Distance = %v, want 0.4", hits[0].Distance)
		}
	})

	t.Run("respects the limit", func(t *testing.T) {
		hits, err := store.Nearest(ctx, []float32{1, 1, 1}, 1, 2.0, "")
		if err != nil {
			t.Fatalf("Nearest() error = %v", err)
		}
		if len(hits) != 1 {
			t.Errorf("got %d hits, want limit of 1", len(hits))
		}
	})

	t.Run("filters by file type", func(t *testing.T) {
		vid := document("clip", "a beach clip", []float32{1, 0, 0})
		vid.FileType = model.FileTypeVideo
		store.Upsert(ctx, vid)

		hits, err := store.Nearest(ctx, []float32{1, 0, 0}, 10, 1.0, model.FileTypeVideo)
		if err != nil {
			t.Fatalf("Nearest() error = %v", err)
		}
		if len(hits) != 1 || hits[0].Document.ID != "clip" {
			t.Errorf("hits = %v, want only the video", hits)
		}
	})
}

func TestStore_MatchText(t *testing.T) {
	store := testutil.NewTestVectorDB(t)
	ctx := context.Background()

	store.Upsert(ctx, document("sunset", "A Golden Sunset", []float32{1, 0, 0}))
	pct := document("discount", "50% off sale sign", []float32{1, 0, 0})
	store.Upsert(ctx, pct)

	t.Run("matches case-insensitively", func(t *testing.T) {
		docs, err := store.MatchText(ctx, "golden", 10, "")
		if err != nil {
			t.Fatalf("MatchText() error = %v", err)
		}
		if len(docs) != 1 || docs[0].ID != "sunset" {
			t.Errorf("docs = %v, want [sunset]", docs)
		}
	})

	t.Run("treats wildcards in the query literally", func(t *testing.T) {
		docs, err := store.MatchText(ctx, "50% off", 10, "")
		if err != nil {
			t.Fatalf("MatchText() error = %v", err)
		}
		if len(docs) != 1 || docs[0].ID != "discount" {
			t.Fatalf("docs = %v, want [discount]", docs)
		}

		// A bare % must not match everything.
		docs, err = store.MatchText(ctx, "99% off", 10, "")
		if err != nil {
			t.Fatalf("MatchText() error = %v", err)
		}
		if len(docs) != 0 {
			t.Errorf("got %d documents for a non-matching wildcard query, want 0", len(docs))
		}
	})
}

func TestStore_Delete(t *testing.T) {
	store := testutil.NewTestVectorDB(t)
	ctx := context.Background()

	store.Upsert(ctx, document("a", "a beach", []float32{1, 0, 0}))
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "a"); err != nil {
		t.Errorf("repeated Delete() error = %v, want no-op", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalDocuments != 0 {
		t.Errorf("TotalDocuments = %d after delete, want 0", stats.TotalDocuments)
	}
}

func TestStore_Stats(t *testing.T) {
	store := testutil.NewTestVectorDB(t)
	ctx := context.Background()

	store.Upsert(ctx, document("a", "one", []float32{1, 0}))
	store.Upsert(ctx, document("b", "two", []float32{0, 1}))
	vid := document("c", "three", []float32{1, 1})
	vid.FileType = model.FileTypeVideo
	store.Upsert(ctx, vid)

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalDocuments != 3 {
		t.Errorf("TotalDocuments = %d, want 3", stats.TotalDocuments)
	}
	if stats.ByType[model.FileTypeImage] != 2 || stats.ByType[model.FileTypeVideo] != 1 {
		t.Errorf("ByType = %v", stats.ByType)
	}
}

func TestStore_CheckVectors(t *testing.T) {
	store := testutil.NewTestVectorDB(t)
	ctx := context.Background()

	store.Upsert(ctx, document("a", "one", []float32{1, 0, 0}))
	store.Upsert(ctx, document("b", "two", []float32{0, 1, 0}))

	report, err := store.CheckVectors(ctx)
	if err != nil {
		t.Fatalf("CheckVectors() error = %v", err)
	}
	if report.Documents != 2 || report.WellFormed != 2 || report.Malformed != 0 {
		t.Errorf("report = %+v, want 2 well-formed documents", report)
	}
	if report.SampleDims[3] != 2 {
		t.Errorf("SampleDims = %v, want {3: 2}", report.SampleDims)
	}
}

func TestDecodeEmbedding(t *testing.T) {
	t.Run("round-trips", func(t *testing.T) {
		vec := []float32{0.25, -1.5, 3}
		got, err := vecstore.DecodeEmbedding(vecstore.EncodeEmbedding(vec))
		if err != nil {
			t.Fatalf("DecodeEmbedding() error = %v", err)
		}
		if !reflect.DeepEqual(got, vec) {
			t.Errorf("DecodeEmbedding() = %v, want %v", got, vec)
		}
	})

	t.Run("rejects truncated blobs", func(t *testing.T) {
		if _, err := vecstore.DecodeEmbedding([]byte{1, 2, 3}); err == nil {
			t.Error("DecodeEmbedding() accepted a truncated blob")
		}
	})
}
