// Package embed provides the client for the text embedding service.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediadex/internal/config"
	"mediadex/internal/index"
)

// Client talks to the embedding service over HTTP. The expected vector
// dimensionality comes from configuration; responses of any other length are
// rejected downstream by the writer.
type Client struct {
	baseURL    string
	dimensions int
	http       *http.Client
}

// NewClient creates an embedding client from service config and the expected
// vector dimensionality.
func NewClient(cfg config.ServiceConfig, dimensions int) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		dimensions: dimensions,
		http:       &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed turns text into a vector. All failures wrap ErrEmbeddingUnavailable:
// the pipeline treats them as a hard per-file failure, the search engine as a
// signal to degrade to text-only matching.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", index.ErrEmbeddingUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", index.ErrEmbeddingUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", index.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: service returned %d: %s",
			index.ErrEmbeddingUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", index.ErrEmbeddingUnavailable, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: service returned empty embedding", index.ErrEmbeddingUnavailable)
	}
	return out.Embedding, nil
}

// Dimensions is the configured embedding length.
func (c *Client) Dimensions() int { return c.dimensions }

// Compile-time check that Client implements the embedder interface.
var _ index.Embedder = (*Client)(nil)
