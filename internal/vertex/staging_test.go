package vertex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"

	"github.com/dgallion1/vertexrag/internal/rag"
)

func testStaging(t *testing.T, h http.HandlerFunc) *Staging {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	svc, err := storage.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return newStaging(svc, testCaller(0), "rag-staging")
}

func TestStagingCheck_MissingBucketIsPrecondition(t *testing.T) {
	s := testStaging(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, map[string]any{"error": map[string]any{"code": 404, "message": "The specified bucket does not exist."}})
	})

	err := s.Check(context.Background())
	assert.ErrorIs(t, err, rag.ErrPrecondition)
	assert.Contains(t, err.Error(), "gs://rag-staging")
}

func TestStagingGet_DecodesDocument(t *testing.T) {
	s := testStaging(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/b/rag-staging/o/documents/d1-0"), r.URL.Path)
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		w.Write([]byte(`{"page_content":"hello","metadata":{"source":"a.txt"}}`))
	})

	doc, err := s.Get(context.Background(), "d1-0")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Text)
	assert.Equal(t, "a.txt", doc.Metadata["source"])
}

func TestStagingGet_MissingObjectIsNotFound(t *testing.T) {
	s := testStaging(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 404, map[string]any{"error": map[string]any{"code": 404, "message": "No such object"}})
	})

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, rag.ErrNotFound)
	assert.NotErrorIs(t, err, rag.ErrPrecondition)
}
