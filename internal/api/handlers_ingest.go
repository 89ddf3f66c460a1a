package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/vertexrag/internal/pipeline"
)

const maxRequestBytes = 1 << 20

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req pipeline.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SourceDir == "" {
		jsonError(w, "source_dir is required", http.StatusBadRequest)
		return
	}
	if !filepath.IsAbs(req.SourceDir) {
		jsonError(w, "source_dir must be an absolute path", http.StatusBadRequest)
		return
	}
	req.SourceDir = filepath.Clean(req.SourceDir)
	if info, err := os.Stat(req.SourceDir); err != nil || !info.IsDir() {
		jsonError(w, fmt.Sprintf("source_dir %s is not a readable directory", req.SourceDir), http.StatusBadRequest)
		return
	}
	if req.BatchSize < 0 {
		jsonError(w, "batch_size must be positive", http.StatusBadRequest)
		return
	}
	req.Extensions = normalizeExtensions(req.Extensions)
	req.Files = nil

	job := pipeline.NewJob(req)
	if err := s.deps.Jobs.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/ingest/%s/status", job.ID),
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.deps.Jobs.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.deps.Jobs.Jobs()
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":        jobs,
		"queue_depth": s.deps.Jobs.QueueDepth(),
	})
}

// normalizeExtensions lowercases extensions and adds the leading dot.
func normalizeExtensions(exts []string) []string {
	var out []string
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
