// Package caption provides the client for the image captioning service.
package caption

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediadex/internal/config"
	"mediadex/internal/index"
)

// Client talks to the captioning service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a captioning client from service config.
func NewClient(cfg config.ServiceConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type captionRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type captionResponse struct {
	Caption string `json:"caption"`
}

// Caption describes the given image in natural language. All failures wrap
// ErrCaptionUnavailable so the pipeline can degrade to a fallback caption.
func (c *Client) Caption(ctx context.Context, image []byte) (string, error) {
	body, err := json.Marshal(captionRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding request: %v", index.ErrCaptionUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/caption", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: building request: %v", index.ErrCaptionUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", index.ErrCaptionUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: service returned %d: %s",
			index.ErrCaptionUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out captionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", index.ErrCaptionUnavailable, err)
	}
	if out.Caption == "" {
		return "", fmt.Errorf("%w: service returned empty caption", index.ErrCaptionUnavailable)
	}
	return out.Caption, nil
}

// Compile-time check that Client implements the captioner interface.
var _ index.Captioner = (*Client)(nil)
