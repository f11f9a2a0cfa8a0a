package index

import (
	"context"
	"sort"
	"strings"

	"mediadex/internal/config"
	"mediadex/internal/model"
)

// Engine answers natural-language queries against the vector database,
// blending semantic nearest-neighbour search with substring text matching.
// Read-only: it never writes to any store.
type Engine struct {
	vectors  VectorStore
	embedder Embedder
	cfg      config.SearchConfig
	logger   Logger
}

// NewEngine creates a search engine over the given vector database.
func NewEngine(vectors VectorStore, embedder Embedder, cfg config.SearchConfig, logger Logger) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	return &Engine{vectors: vectors, embedder: embedder, cfg: cfg, logger: logger}
}

// SearchResponse carries the merged results plus whether the semantic path
// actually ran. VectorSearched false means the response is text-only because
// the embedding service or vector search was unavailable.
type SearchResponse struct {
	Results        []*model.SearchResult
	VectorSearched bool
}

// Search runs the hybrid query. limit <= 0 uses the configured default;
// fileType "" searches all types. A blank query returns ErrEmptyQuery.
//
// The two paths degrade independently: an embedding or vector-search failure
// is logged and the engine falls through to text matching alone, never an
// error to the caller.
func (e *Engine) Search(ctx context.Context, query string, limit int, fileType model.FileType) (*SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	resp := &SearchResponse{}

	vectorResults := e.vectorSearch(ctx, query, limit, fileType, resp)
	textResults := e.textSearch(ctx, query, limit, fileType)

	resp.Results = mergeResults(vectorResults, textResults, limit)
	return resp, nil
}

// vectorSearch embeds the query and collects nearest-neighbour matches,
// converting distance to a similarity score.
func (e *Engine) vectorSearch(ctx context.Context, query string, limit int, fileType model.FileType, resp *SearchResponse) []*model.SearchResult {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("embedding query failed, text-only search", "error", err)
		return nil
	}

	hits, err := e.vectors.Nearest(ctx, vec, limit, e.cfg.DistanceThreshold, fileType)
	if err != nil {
		e.logger.Warn("vector search failed, text-only search", "error", err)
		return nil
	}
	resp.VectorSearched = true

	results := make([]*model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, &model.SearchResult{
			Document: hit.Document,
			Score:    clamp01(1 - hit.Distance),
			Source:   model.MatchVector,
		})
	}
	return results
}

// textSearch collects substring matches and scores them by where the query
// appears: captions weigh most, then names, then paths.
func (e *Engine) textSearch(ctx context.Context, query string, limit int, fileType model.FileType) []*model.SearchResult {
	docs, err := e.vectors.MatchText(ctx, query, limit, fileType)
	if err != nil {
		e.logger.Warn("text search failed", "error", err)
		return nil
	}

	results := make([]*model.SearchResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, &model.SearchResult{
			Document: doc,
			Score:    e.textScore(query, doc),
			Source:   model.MatchText,
		})
	}
	return results
}

func (e *Engine) textScore(query string, doc *model.ProcessedDocument) float64 {
	q := strings.ToLower(query)

	var score float64
	if strings.Contains(strings.ToLower(doc.Caption), q) {
		score += e.cfg.CaptionWeight
	}
	if strings.Contains(strings.ToLower(doc.Name), q) {
		score += e.cfg.NameWeight
	}
	if strings.Contains(strings.ToLower(doc.Path), q) {
		score += e.cfg.PathWeight
	}
	if score > 1 {
		score = 1
	}
	return score
}

// mergeResults deduplicates by document ID with vector matches winning, sorts
// by score descending (ties broken by most recently modified), and truncates
// to limit.
func mergeResults(vector, text []*model.SearchResult, limit int) []*model.SearchResult {
	merged := make([]*model.SearchResult, 0, len(vector)+len(text))
	seen := make(map[string]struct{}, len(vector))

	for _, r := range vector {
		seen[r.Document.ID] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range text {
		if _, dup := seen[r.Document.ID]; dup {
			continue
		}
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Document.ModifiedAt.After(merged[j].Document.ModifiedAt)
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
