package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// handleListDocuments lists every indexed document.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Documents == nil {
		jsonError(w, "document manifest unavailable", http.StatusServiceUnavailable)
		return
	}
	docs, err := s.deps.Documents.List(r.Context())
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

// handleDeleteDocument removes a document's datapoints from the index and
// forgets it in the manifest.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if s.deps.Documents == nil || s.deps.Remover == nil {
		jsonError(w, "document deletion unavailable", http.StatusServiceUnavailable)
		return
	}
	docID := chi.URLParam(r, "docID")
	ctx := r.Context()

	entry, err := s.deps.Documents.Get(ctx, docID)
	if errors.Is(err, rag.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to read manifest: "+err.Error(), http.StatusInternalServerError)
		return
	}

	ids := entry.ChunkIDs()
	if err := s.deps.Remover.Remove(ctx, ids); err != nil {
		s.log.Error("datapoint removal failed", "doc_id", docID, "error", err)
		jsonError(w, "failed to remove datapoints: "+err.Error(), http.StatusBadGateway)
		return
	}
	if err := s.deps.Documents.Delete(ctx, docID); err != nil {
		jsonError(w, "failed to update manifest: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.log.Info("document deleted", "doc_id", docID, "datapoints", len(ids))
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":             docID,
		"datapoints_removed": len(ids),
	})
}
