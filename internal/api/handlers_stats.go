package api

import (
	"net/http"
)

func (s *Server) handleIndexStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"queue_depth": s.deps.Jobs.QueueDepth(),
	}
	if s.deps.Stats != nil {
		out["calls"] = s.deps.Stats.Snapshot()
	}
	if s.deps.Documents != nil {
		runs, err := s.deps.Documents.Runs(r.Context(), 10)
		if err != nil {
			s.log.Warn("run history unavailable", "error", err)
		} else {
			out["recent_runs"] = runs
		}
		docs, err := s.deps.Documents.List(r.Context())
		if err == nil {
			chunks := 0
			for _, d := range docs {
				chunks += d.ChunkCount
			}
			out["documents"] = len(docs)
			out["chunks"] = chunks
		}
	}
	writeJSON(w, http.StatusOK, out)
}
