package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// Index backends.
const (
	BackendVertex = "vertex"
	BackendMemory = "memory"
)

// FileEnv names the environment variable pointing at an optional YAML or
// TOML config file. Environment variables override values from the file.
const FileEnv = "VERTEXRAG_CONFIG"

type Config struct {
	Port   string `yaml:"port" toml:"port"`
	APIKey string `yaml:"-" toml:"-"`

	// Google Cloud
	GCPProjectID    string `yaml:"gcp_project_id" toml:"gcp_project_id"`
	GCPRegion       string `yaml:"gcp_region" toml:"gcp_region"`
	CredentialsFile string `yaml:"credentials_file" toml:"credentials_file"`

	// Embeddings
	EmbeddingModel     string `yaml:"embedding_model" toml:"embedding_model"`
	EmbeddingBatchSize int    `yaml:"embedding_batch_size" toml:"embedding_batch_size"`

	// Vector Search
	IndexBackend      string `yaml:"index_backend" toml:"index_backend"`
	IndexID           string `yaml:"index_id" toml:"index_id"`
	IndexEndpointID   string `yaml:"index_endpoint_id" toml:"index_endpoint_id"`
	DeployedIndexID   string `yaml:"deployed_index_id" toml:"deployed_index_id"`
	IndexPublicDomain string `yaml:"index_public_domain" toml:"index_public_domain"`
	DistanceMeasure   string `yaml:"distance_measure" toml:"distance_measure"`
	StagingBucket     string `yaml:"staging_bucket" toml:"staging_bucket"`

	// Loading and splitting
	AllowedExtensions []string `yaml:"allowed_extensions" toml:"allowed_extensions"`
	RecursiveLoad     bool     `yaml:"recursive_load" toml:"recursive_load"`
	LoaderWorkers     int      `yaml:"loader_workers" toml:"loader_workers"`
	ChunkSize         int      `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap" toml:"chunk_overlap"`

	// Ingestion and retrieval
	UpsertBatchSize int `yaml:"upsert_batch_size" toml:"upsert_batch_size"`
	DefaultSearchK  int `yaml:"default_search_k" toml:"default_search_k"`
	QueryCacheSize  int `yaml:"query_cache_size" toml:"query_cache_size"`

	// Remote call policy
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries" toml:"max_retries"`
	VerifyOnStart     bool    `yaml:"verify_on_start" toml:"verify_on_start"`

	// Local state
	ManifestPath string `yaml:"manifest_path" toml:"manifest_path"`

	// Job queue
	WorkerCount  int           `yaml:"worker_count" toml:"worker_count"`
	MaxQueueSize int           `yaml:"max_queue_size" toml:"max_queue_size"`
	JobTTL       time.Duration `yaml:"-" toml:"-"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext" toml:"pdf_fallback_pdftotext"`

	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:                 "8090",
		GCPRegion:            "us-central1",
		EmbeddingModel:       "textembedding-gecko@003",
		EmbeddingBatchSize:   100,
		IndexBackend:         BackendVertex,
		DistanceMeasure:      "DOT_PRODUCT_DISTANCE",
		AllowedExtensions:    []string{".pdf", ".txt", ".md"},
		RecursiveLoad:        true,
		LoaderWorkers:        4,
		ChunkSize:            1000,
		ChunkOverlap:         100,
		UpsertBatchSize:      500,
		DefaultSearchK:       5,
		QueryCacheSize:       256,
		RequestsPerSecond:    10,
		MaxRetries:           3,
		ManifestPath:         defaultManifestPath(),
		WorkerCount:          1,
		MaxQueueSize:         100,
		JobTTL:               time.Hour,
		PDFFallbackPdftotext: true,
		LogLevel:             "INFO",
	}
}

// Load builds the configuration from defaults, the optional config file and
// the environment, in increasing precedence.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.mergeEnv()
	cfg.applyFloors()
	return cfg, nil
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if err := cfg.mergeFile(path); err != nil {
		return cfg, err
	}
	cfg.mergeEnv()
	cfg.applyFloors()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	c.Port = envOr("PORT", c.Port)
	c.APIKey = envOr("RAG_API_KEY", c.APIKey)

	c.GCPProjectID = envOr("GCP_PROJECT_ID", c.GCPProjectID)
	c.GCPRegion = envOr("GCP_REGION", c.GCPRegion)
	c.CredentialsFile = envOr("GOOGLE_CREDENTIALS_FILE", c.CredentialsFile)

	c.EmbeddingModel = envOr("VERTEX_EMBEDDING_MODEL", c.EmbeddingModel)
	c.EmbeddingBatchSize = envInt("EMBEDDING_BATCH_SIZE", c.EmbeddingBatchSize)

	c.IndexBackend = strings.ToLower(envOr("INDEX_BACKEND", c.IndexBackend))
	c.IndexID = envOr("VECTOR_SEARCH_INDEX_ID", c.IndexID)
	c.IndexEndpointID = envOr("VECTOR_SEARCH_INDEX_ENDPOINT_ID", c.IndexEndpointID)
	c.DeployedIndexID = envOr("VECTOR_SEARCH_DEPLOYED_INDEX_ID", c.DeployedIndexID)
	c.IndexPublicDomain = envOr("VECTOR_SEARCH_PUBLIC_DOMAIN", c.IndexPublicDomain)
	c.DistanceMeasure = strings.ToUpper(envOr("VECTOR_SEARCH_DISTANCE", c.DistanceMeasure))
	c.StagingBucket = envOr("GCS_STAGING_BUCKET_NAME", c.StagingBucket)

	c.AllowedExtensions = envList("ALLOWED_EXTENSIONS", c.AllowedExtensions)
	c.RecursiveLoad = envBool("RECURSIVE_LOAD", c.RecursiveLoad)
	c.LoaderWorkers = envInt("LOADER_WORKERS", c.LoaderWorkers)
	c.ChunkSize = envInt("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = envInt("CHUNK_OVERLAP", c.ChunkOverlap)

	c.UpsertBatchSize = envInt("UPSERT_BATCH_SIZE", c.UpsertBatchSize)
	c.DefaultSearchK = envInt("DEFAULT_SEARCH_K", c.DefaultSearchK)
	c.QueryCacheSize = envInt("QUERY_CACHE_SIZE", c.QueryCacheSize)

	c.RequestsPerSecond = envFloat("VERTEX_REQUESTS_PER_SECOND", c.RequestsPerSecond)
	c.MaxRetries = envInt("MAX_RETRIES", c.MaxRetries)
	c.VerifyOnStart = envBool("VERIFY_ON_START", c.VerifyOnStart)

	c.ManifestPath = envOr("MANIFEST_PATH", c.ManifestPath)

	c.WorkerCount = envInt("WORKER_COUNT", c.WorkerCount)
	c.MaxQueueSize = envInt("MAX_QUEUE_SIZE", c.MaxQueueSize)
	c.JobTTL = envDuration("JOB_TTL", c.JobTTL)

	c.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", c.PDFFallbackPdftotext)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
}

func (c *Config) applyFloors() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.LoaderWorkers <= 0 {
		c.LoaderWorkers = 4
	}
	if c.UpsertBatchSize <= 0 {
		c.UpsertBatchSize = 500
	}
	if c.DefaultSearchK <= 0 {
		c.DefaultSearchK = 5
	}
	if c.EmbeddingBatchSize <= 0 {
		c.EmbeddingBatchSize = 100
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
	if c.IndexBackend == BackendMemory && c.DeployedIndexID == "" {
		c.DeployedIndexID = "local"
	}
}

// Validate reports every missing required setting in a single ConfigError.
// The vertex backend needs the project, index, endpoint, deployed index and
// staging bucket; both backends need the project for embeddings.
func (c Config) Validate() error {
	var missing []string
	require := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}

	require("GCP_PROJECT_ID", c.GCPProjectID)
	require("GCP_REGION", c.GCPRegion)
	switch c.IndexBackend {
	case BackendVertex:
		require("VECTOR_SEARCH_INDEX_ID", c.IndexID)
		require("VECTOR_SEARCH_INDEX_ENDPOINT_ID", c.IndexEndpointID)
		require("VECTOR_SEARCH_DEPLOYED_INDEX_ID", c.DeployedIndexID)
		require("GCS_STAGING_BUCKET_NAME", c.StagingBucket)
	case BackendMemory:
	default:
		return &rag.ConfigError{Reason: fmt.Sprintf("unknown INDEX_BACKEND %q", c.IndexBackend)}
	}

	var reason string
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		reason = fmt.Sprintf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if len(missing) > 0 || reason != "" {
		return &rag.ConfigError{Missing: missing, Reason: reason}
	}
	return nil
}

// ValidateServer adds the HTTP API requirements to Validate.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return &rag.ConfigError{Missing: []string{"RAG_API_KEY"}}
	}
	return nil
}

// Level parses LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func defaultManifestPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "manifest.db"
	}
	return filepath.Join(home, ".vertexrag", "manifest.db")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
