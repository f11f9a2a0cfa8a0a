package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mediadex/internal/index"
	"mediadex/internal/model"
)

type searchRequest struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

type searchResult struct {
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	Name          string    `json:"name"`
	FileType      string    `json:"file_type"`
	ModifiedAt    time.Time `json:"modified_at"`
	Caption       string    `json:"caption"`
	CaptionOrigin string    `json:"caption_origin"`
	Tags          []string  `json:"tags,omitempty"`
	Score         float64   `json:"score"`
	Source        string    `json:"source"`
}

type searchResponse struct {
	Results        []searchResult `json:"results"`
	VectorSearched bool           `json:"vector_searched"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.app.Search(r.Context(), req.Query, req.Limit, model.FileType(req.FileType))
	if err != nil {
		if errors.Is(err, index.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := searchResponse{
		Results:        make([]searchResult, 0, len(resp.Results)),
		VectorSearched: resp.VectorSearched,
	}
	for _, res := range resp.Results {
		doc := res.Document
		out.Results = append(out.Results, searchResult{
			ID:            doc.ID,
			Path:          doc.Path,
			Name:          doc.Name,
			FileType:      string(doc.FileType),
			ModifiedAt:    doc.ModifiedAt,
			Caption:       doc.Caption,
			CaptionOrigin: string(doc.CaptionOrigin),
			Tags:          doc.Tags,
			Score:         res.Score,
			Source:        string(res.Source),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.app.JobStatuses()})
}

type startSyncRequest struct {
	Full bool `json:"full,omitempty"`
}

func (s *Server) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	var req startSyncRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	s.startJob(w, func() error { return s.app.StartSync(req.Full) })
}

func (s *Server) handleSyncStop(w http.ResponseWriter, r *http.Request) {
	s.app.StopSync()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stop requested"})
}

func (s *Server) handleSyncPause(w http.ResponseWriter, r *http.Request) {
	s.app.PauseSync()
	writeJSON(w, http.StatusOK, map[string]string{"status": "pause requested"})
}

func (s *Server) handleSyncResume(w http.ResponseWriter, r *http.Request) {
	s.startJob(w, s.app.ResumeSync)
}

type startProcessRequest struct {
	FileType string `json:"file_type,omitempty"`
}

func (s *Server) handleProcessStart(w http.ResponseWriter, r *http.Request) {
	var req startProcessRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	s.startJob(w, func() error { return s.app.StartProcess(model.FileType(req.FileType)) })
}

func (s *Server) handleProcessStop(w http.ResponseWriter, r *http.Request) {
	s.app.StopProcess()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stop requested"})
}

func (s *Server) handleProcessPause(w http.ResponseWriter, r *http.Request) {
	s.app.PauseProcess()
	writeJSON(w, http.StatusOK, map[string]string{"status": "pause requested"})
}

func (s *Server) handleProcessResume(w http.ResponseWriter, r *http.Request) {
	s.startJob(w, s.app.ResumeProcess)
}

func (s *Server) handleCheckVectors(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.CheckVectors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":    report.Documents,
		"well_formed":  report.WellFormed,
		"malformed":    report.Malformed,
		"sample_dims":  report.SampleDims,
		"malformed_id": report.MalformedID,
	})
}

// startJob runs a job-start function and maps an already-active job to 409.
func (s *Server) startJob(w http.ResponseWriter, start func() error) {
	if err := start(); err != nil {
		if errors.Is(err, index.ErrJobActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
