package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mediadex/internal/api"
	"mediadex/internal/app"
	"mediadex/internal/config"
	"mediadex/internal/index"
)

// newTestServer wires a full app against the in-memory remote and in-memory
// databases. The captioner and embedder endpoints are unconfigured, so vector
// search degrades to text-only.
func newTestServer(t *testing.T) (*app.App, http.Handler) {
	t.Helper()

	cfg := config.NewConfig(t.TempDir())
	cfg.Remote.Type = "memory"
	cfg.Cache.Path = ":memory:"
	cfg.Vector.Path = ":memory:"

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })

	return a, api.NewServer(a).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Search(t *testing.T) {
	t.Run("rejects an empty query", func(t *testing.T) {
		_, handler := newTestServer(t)
		rec := postJSON(t, handler, "/api/search", map[string]string{"query": "   "})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("answers with text matches when the embedder is unreachable", func(t *testing.T) {
		_, handler := newTestServer(t)
		rec := postJSON(t, handler, "/api/search", map[string]string{"query": "sunset"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Results        []json.RawMessage `json:"results"`
			VectorSearched bool              `json:"vector_searched"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.VectorSearched {
			t.Error("vector_searched = true despite unreachable embedder")
		}
		if resp.Results == nil {
			t.Error("results missing from response")
		}
	})
}

func TestServer_Stats(t *testing.T) {
	_, handler := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var stats struct {
		Cache *struct {
			TotalFiles int64 `json:"total_files"`
		} `json:"cache"`
		Index *struct {
			TotalDocuments int64 `json:"total_documents"`
		} `json:"index"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if stats.Cache == nil || stats.Index == nil {
		t.Errorf("stats missing sections: %s", rec.Body.String())
	}
}

func TestServer_Jobs(t *testing.T) {
	_, handler := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Jobs []index.JobStatus `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Fatalf("got %d jobs, want sync and process", len(resp.Jobs))
	}
	for _, job := range resp.Jobs {
		if job.State != index.JobIdle {
			t.Errorf("job %q state = %q, want idle", job.Kind, job.State)
		}
	}
}

func TestServer_SyncStart(t *testing.T) {
	a, handler := newTestServer(t)

	rec := postJSON(t, handler, "/api/jobs/sync/start", map[string]bool{"full": true})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	waitForJob(t, a, 0)
	if st := a.JobStatuses()[0]; st.State != index.JobCompleted {
		t.Errorf("sync state = %q, want completed", st.State)
	}
}

func TestServer_SyncResumeWithoutPause(t *testing.T) {
	_, handler := newTestServer(t)
	rec := postJSON(t, handler, "/api/jobs/sync/resume", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when nothing is paused", rec.Code)
	}
}

func TestServer_CheckVectors(t *testing.T) {
	_, handler := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/debug/vectors", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var report struct {
		Documents  int64 `json:"documents"`
		WellFormed int64 `json:"well_formed"`
		Malformed  int64 `json:"malformed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if report.Documents != 0 {
		t.Errorf("documents = %d, want 0 on a fresh index", report.Documents)
	}
}

// waitForJob blocks until the background job at idx leaves the running state.
func waitForJob(t *testing.T, a *app.App, idx int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := a.JobStatuses()[idx]
		if st.State != index.JobRunning && st.State != index.JobIdle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %d did not finish in time", idx)
}
