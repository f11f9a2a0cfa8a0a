package testutil

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"mediadex/internal/model"
)

// StubCaptioner returns canned captions keyed by image content. Safe for
// concurrent use.
type StubCaptioner struct {
	mu       sync.Mutex
	captions map[string]string
	err      error
	calls    int
}

// NewStubCaptioner creates a captioner with no canned captions.
func NewStubCaptioner() *StubCaptioner {
	return &StubCaptioner{captions: make(map[string]string)}
}

// Set maps an exact image payload to a caption.
func (c *StubCaptioner) Set(image []byte, caption string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captions[string(image)] = caption
}

// Fail makes every Caption call return err (nil restores normal operation).
func (c *StubCaptioner) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Calls returns how many times Caption was invoked.
func (c *StubCaptioner) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *StubCaptioner) Caption(ctx context.Context, image []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	caption, ok := c.captions[string(image)]
	if !ok {
		return "", fmt.Errorf("no caption configured for image %q", string(image))
	}
	return caption, nil
}

// StubEmbedder returns canned vectors keyed by exact text, with a fallback
// default vector. Safe for concurrent use.
type StubEmbedder struct {
	mu      sync.Mutex
	dim     int
	vectors map[string][]float32
	deflt   []float32
	err     error
	calls   int
}

// NewStubEmbedder creates an embedder reporting the given dimensionality,
// defaulting to a unit vector of that length.
func NewStubEmbedder(dim int) *StubEmbedder {
	deflt := make([]float32, dim)
	if dim > 0 {
		deflt[0] = 1
	}
	return &StubEmbedder{dim: dim, vectors: make(map[string][]float32), deflt: deflt}
}

// Set maps exact text to a vector.
func (e *StubEmbedder) Set(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

// SetDefault sets the vector returned for unmapped text.
func (e *StubEmbedder) SetDefault(vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deflt = vec
}

// Fail makes every Embed call return err (nil restores normal operation).
func (e *StubEmbedder) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns how many times Embed was invoked.
func (e *StubEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return e.deflt, nil
}

func (e *StubEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

// MemoryVectorStore is an in-memory implementation of the vector database
// interface with real cosine distance, plus failure injection for write-path
// tests. Safe for concurrent use.
type MemoryVectorStore struct {
	mu        sync.Mutex
	docs      map[string]*model.ProcessedDocument
	upsertErr error
}

// NewMemoryVectorStore creates an empty in-memory vector store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{docs: make(map[string]*model.ProcessedDocument)}
}

// FailUpserts makes every Upsert call return err (nil restores writes).
func (m *MemoryVectorStore) FailUpserts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// Get returns the stored document with the given ID, or nil.
func (m *MemoryVectorStore) Get(id string) *model.ProcessedDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id]
}

// Len returns the number of stored documents.
func (m *MemoryVectorStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *MemoryVectorStore) Upsert(ctx context.Context, doc *model.ProcessedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document %s has empty embedding", doc.ID)
	}
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *MemoryVectorStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *MemoryVectorStore) Nearest(ctx context.Context, vector []float32, limit int, maxDistance float64, fileType model.FileType) ([]model.VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits []model.VectorHit
	for _, doc := range m.docs {
		if fileType != "" && doc.FileType != fileType {
			continue
		}
		dist, ok := cosineDistance(vector, doc.Embedding)
		if !ok || dist > maxDistance {
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

func (m *MemoryVectorStore) MatchText(ctx context.Context, query string, limit int, fileType model.FileType) ([]*model.ProcessedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := strings.ToLower(query)
	var docs []*model.ProcessedDocument
	for _, doc := range m.docs {
		if fileType != "" && doc.FileType != fileType {
			continue
		}
		if strings.Contains(strings.ToLower(doc.Caption), q) ||
			strings.Contains(strings.ToLower(doc.Name), q) ||
			strings.Contains(strings.ToLower(doc.Path), q) {
			docs = append(docs, doc)
		}
		if len(docs) == limit {
			break
		}
	}
	return docs, nil
}

func (m *MemoryVectorStore) Stats(ctx context.Context) (*model.IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &model.IndexStats{ByType: make(map[model.FileType]int64)}
	for _, doc := range m.docs {
		stats.TotalDocuments++
		stats.ByType[doc.FileType]++
	}
	return stats, nil
}

func (m *MemoryVectorStore) CheckVectors(ctx context.Context) (*model.VectorReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &model.VectorReport{SampleDims: make(map[int]int64)}
	for id, doc := range m.docs {
		report.Documents++
		if len(doc.Embedding) == 0 {
			report.Malformed++
			if report.MalformedID == "" {
				report.MalformedID = id
			}
			continue
		}
		report.WellFormed++
		report.SampleDims[len(doc.Embedding)]++
	}
	return report, nil
}

func cosineDistance(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, false
	}
	return 1 - dot/(math.Sqrt(na2)*math.Sqrt(nb2)), true
}
