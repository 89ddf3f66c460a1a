package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/dgallion1/vertexrag/internal/rag"
)

func validVertex() Config {
	cfg := Defaults()
	cfg.GCPProjectID = "proj"
	cfg.IndexID = "idx"
	cfg.IndexEndpointID = "ep"
	cfg.DeployedIndexID = "deployed"
	cfg.StagingBucket = "bucket"
	return cfg
}

func TestValidate_ReportsAllMissingFields(t *testing.T) {
	err := Defaults().Validate()

	var cfgErr *rag.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	want := []string{
		"GCP_PROJECT_ID",
		"VECTOR_SEARCH_INDEX_ID",
		"VECTOR_SEARCH_INDEX_ENDPOINT_ID",
		"VECTOR_SEARCH_DEPLOYED_INDEX_ID",
		"GCS_STAGING_BUCKET_NAME",
	}
	if !reflect.DeepEqual(cfgErr.Missing, want) {
		t.Errorf("expected missing %v, got %v", want, cfgErr.Missing)
	}
}

func TestValidate_Complete(t *testing.T) {
	if err := validVertex().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_OverlapMustBeSmallerThanSize(t *testing.T) {
	cfg := validVertex()
	cfg.ChunkOverlap = cfg.ChunkSize
	if err := cfg.Validate(); !errors.Is(err, rag.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestValidate_MemoryBackendNeedsOnlyProject(t *testing.T) {
	cfg := Defaults()
	cfg.IndexBackend = BackendMemory
	cfg.GCPProjectID = "proj"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.IndexBackend = "pinecone"
	if err := cfg.Validate(); !errors.Is(err, rag.ErrConfig) {
		t.Fatalf("expected error for unknown backend, got %v", err)
	}
}

func TestValidateServer_RequiresAPIKey(t *testing.T) {
	cfg := validVertex()
	if err := cfg.ValidateServer(); err == nil {
		t.Fatal("expected error without API key")
	}
	cfg.APIKey = "secret"
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("GCP_PROJECT_ID", "env-proj")
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("ALLOWED_EXTENSIONS", ".md, .html")
	t.Setenv("JOB_TTL", "30m")
	t.Setenv("WORKER_COUNT", "0")
	t.Setenv("INDEX_BACKEND", "MEMORY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GCPProjectID != "env-proj" {
		t.Errorf("expected env-proj, got %q", cfg.GCPProjectID)
	}
	if cfg.ChunkSize != 800 {
		t.Errorf("expected chunk size 800, got %d", cfg.ChunkSize)
	}
	if !reflect.DeepEqual(cfg.AllowedExtensions, []string{".md", ".html"}) {
		t.Errorf("unexpected extensions %v", cfg.AllowedExtensions)
	}
	if cfg.JobTTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %s", cfg.JobTTL)
	}
	if cfg.WorkerCount != 1 {
		t.Errorf("expected worker count floor of 1, got %d", cfg.WorkerCount)
	}
	if cfg.DeployedIndexID != "local" {
		t.Errorf("expected memory backend to default deployed index, got %q", cfg.DeployedIndexID)
	}
}

func TestLoadFile_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag.yaml")
	data := "gcp_project_id: file-proj\nchunk_size: 1200\nindex_id: file-index\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VECTOR_SEARCH_INDEX_ID", "env-index")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GCPProjectID != "file-proj" || cfg.ChunkSize != 1200 {
		t.Errorf("expected file values, got project=%q size=%d", cfg.GCPProjectID, cfg.ChunkSize)
	}
	if cfg.IndexID != "env-index" {
		t.Errorf("expected environment to win, got %q", cfg.IndexID)
	}
	if cfg.ChunkOverlap != 100 {
		t.Errorf("expected default overlap to survive, got %d", cfg.ChunkOverlap)
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag.toml")
	data := "gcp_region = \"europe-west4\"\nallowed_extensions = [\".pdf\"]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GCPRegion != "europe-west4" {
		t.Errorf("expected europe-west4, got %q", cfg.GCPRegion)
	}
	if !reflect.DeepEqual(cfg.AllowedExtensions, []string{".pdf"}) {
		t.Errorf("unexpected extensions %v", cfg.AllowedExtensions)
	}
}

func TestLevel(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "debug"
	if cfg.Level().String() != "DEBUG" {
		t.Errorf("expected DEBUG, got %s", cfg.Level())
	}
	cfg.LogLevel = "loud"
	if cfg.Level().String() != "INFO" {
		t.Errorf("expected INFO fallback, got %s", cfg.Level())
	}
}
