package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/vertexrag/internal/manifest"
	"github.com/dgallion1/vertexrag/internal/pipeline"
	"github.com/dgallion1/vertexrag/internal/rag"
	"github.com/dgallion1/vertexrag/internal/vertex"
)

// JobQueue accepts ingestion jobs and reports on them.
type JobQueue interface {
	Submit(job *pipeline.Job) error
	GetJob(id string) *pipeline.Job
	Jobs() []pipeline.JobSnapshot
	QueueDepth() int
}

// Searcher answers similarity queries.
type Searcher interface {
	QueryFiltered(ctx context.Context, text string, k int, filter map[string]string) ([]rag.QueryResult, error)
}

// DocumentStore lists indexed documents and past runs.
type DocumentStore interface {
	List(ctx context.Context) ([]manifest.Entry, error)
	Get(ctx context.Context, docID string) (manifest.Entry, error)
	Delete(ctx context.Context, docID string) error
	Runs(ctx context.Context, limit int) ([]manifest.Run, error)
}

// Deps are the services the API exposes. Documents, Remover and Stats may
// be nil; the routes that need them then answer 503.
type Deps struct {
	Jobs      JobQueue
	Searcher  Searcher
	Documents DocumentStore
	Remover   pipeline.ChunkRemover
	Stats     *vertex.CallStats
}

// Server is the HTTP API server for vertexrag.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	apiKey string
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		deps:   deps,
		log:    log,
		apiKey: apiKey,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/ingest", s.handleListJobs)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)

		r.Post("/api/query", s.handleQuery)

		r.Get("/api/documents", s.handleListDocuments)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)

		r.Get("/api/stats/index", s.handleIndexStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
