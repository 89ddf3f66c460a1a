package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"

	"github.com/dgallion1/vertexrag/internal/config"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Operation names used for stats and error messages.
const (
	opEmbed         = "embed"
	opUpsert        = "upsert_datapoints"
	opRemove        = "remove_datapoints"
	opFindNeighbors = "find_neighbors"
	opBucket        = "staging_bucket"
	opStagePut      = "stage_put"
	opStageGet      = "stage_get"
	opStageDelete   = "stage_delete"
)

// Clients bundles the Vertex AI handles. It is built once at start-up and
// passed to whatever needs it.
type Clients struct {
	Embedder *Embedder
	Index    *Index
	Staging  *Staging
	Stats    *CallStats
}

// NewClients authenticates and builds the embedder, index and staging store.
// Extra options are appended to every service, after the defaults.
func NewClients(ctx context.Context, cfg config.Config, log *slog.Logger, opts ...option.ClientOption) (*Clients, error) {
	ts, err := tokenSource(ctx, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	base := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)

	regional := fmt.Sprintf("https://%s-aiplatform.googleapis.com/", cfg.GCPRegion)
	api, err := aiplatform.NewService(ctx, append([]option.ClientOption{option.WithEndpoint(regional)}, base...)...)
	if err != nil {
		return nil, fmt.Errorf("create aiplatform service: %w", err)
	}

	queryEndpoint := regional
	if cfg.IndexPublicDomain != "" {
		queryEndpoint = "https://" + cfg.IndexPublicDomain + "/"
	}
	queryAPI, err := aiplatform.NewService(ctx, append([]option.ClientOption{option.WithEndpoint(queryEndpoint)}, base...)...)
	if err != nil {
		return nil, fmt.Errorf("create vector search query service: %w", err)
	}

	gcs, err := storage.NewService(ctx, base...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}

	stats := NewCallStats(time.Hour)
	call := newCaller(cfg.RequestsPerSecond, cfg.MaxRetries, stats, log)
	staging := newStaging(gcs, call, NormalizeBucket(cfg.StagingBucket, log))

	c := &Clients{
		Embedder: newEmbedder(api, call, ModelResource(cfg.GCPProjectID, cfg.GCPRegion, cfg.EmbeddingModel), cfg.EmbeddingBatchSize),
		Index: &Index{
			svc:          api,
			querySvc:     queryAPI,
			call:         call,
			docs:         staging,
			indexName:    IndexResource(cfg.GCPProjectID, cfg.GCPRegion, cfg.IndexID),
			endpointName: IndexEndpointResource(cfg.GCPProjectID, cfg.GCPRegion, cfg.IndexEndpointID),
			distance:     cfg.DistanceMeasure,
			log:          log,
		},
		Staging: staging,
		Stats:   stats,
	}

	log.Info("vertex clients ready",
		"project", cfg.GCPProjectID,
		"region", cfg.GCPRegion,
		"index", c.Index.indexName,
		"endpoint", c.Index.endpointName,
		"staging", staging.URI())
	return c, nil
}

// Verify runs the start-up smoke test: one embedding call and a bucket check.
func (c *Clients) Verify(ctx context.Context) error {
	if err := c.Embedder.Ping(ctx); err != nil {
		return fmt.Errorf("embedding smoke test: %w", err)
	}
	if err := c.Staging.Check(ctx); err != nil {
		return err
	}
	return nil
}

func tokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if credentialsFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("find default credentials: %w", err)
		}
		return creds.TokenSource, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	return creds.TokenSource, nil
}
