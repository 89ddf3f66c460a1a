package vertex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/aiplatform/v1"

	"github.com/dgallion1/vertexrag/internal/rag"
)

const stagingConcurrency = 8

// Distance measures configured on a Vector Search index.
const (
	DistanceDotProduct = "DOT_PRODUCT_DISTANCE"
	DistanceCosine     = "COSINE_DISTANCE"
	DistanceSquaredL2  = "SQUARED_L2_DISTANCE"
	DistanceL1         = "L1_DISTANCE"
)

// Index implements rag.Index on Vertex AI Vector Search with streaming
// updates. Text and metadata are staged in a DocStore before the vectors are
// upserted, so a datapoint is never visible without its text.
type Index struct {
	svc          *aiplatform.Service // regional API: upsert, remove
	querySvc     *aiplatform.Service // public endpoint domain: findNeighbors
	call         *caller
	docs         DocStore
	indexName    string
	endpointName string
	distance     string
	log          *slog.Logger
}

// IndexResource and IndexEndpointResource build full resource names.
func IndexResource(project, region, id string) string {
	return fmt.Sprintf("projects/%s/locations/%s/indexes/%s", project, region, id)
}

func IndexEndpointResource(project, region, id string) string {
	return fmt.Sprintf("projects/%s/locations/%s/indexEndpoints/%s", project, region, id)
}

// Upsert stages every entry's text, then upserts the vectors in one request.
// String metadata values become restricts so queries can filter on them.
func (ix *Index) Upsert(ctx context.Context, entries []rag.IndexEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stagingConcurrency)
	for _, e := range entries {
		g.Go(func() error {
			return ix.docs.Put(gctx, e.ExternalID, StagedDoc{Text: e.Chunk.Text, Metadata: e.Chunk.Metadata})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, len(entries))
	points := make([]*aiplatform.GoogleCloudAiplatformV1IndexDatapoint, len(entries))
	for i, e := range entries {
		ids[i] = e.ExternalID
		points[i] = &aiplatform.GoogleCloudAiplatformV1IndexDatapoint{
			DatapointId:   e.ExternalID,
			FeatureVector: toFloat64(e.Embedding),
			Restricts:     restrictsFor(e.Chunk.Metadata),
		}
	}

	req := &aiplatform.GoogleCloudAiplatformV1UpsertDatapointsRequest{Datapoints: points}
	err := ix.call.do(ctx, opUpsert, func(ctx context.Context) error {
		_, err := ix.svc.Projects.Locations.Indexes.UpsertDatapoints(ix.indexName, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Query finds the k nearest datapoints on the deployed index and joins them
// with their staged text. Neighbors whose text is missing are skipped.
func (ix *Index) Query(ctx context.Context, vector []float32, k int, deployedIndexID string, filter map[string]string) ([]rag.Neighbor, error) {
	req := &aiplatform.GoogleCloudAiplatformV1FindNeighborsRequest{
		DeployedIndexId: deployedIndexID,
		Queries: []*aiplatform.GoogleCloudAiplatformV1FindNeighborsRequestQuery{{
			NeighborCount: int64(k),
			Datapoint: &aiplatform.GoogleCloudAiplatformV1IndexDatapoint{
				FeatureVector: toFloat64(vector),
				Restricts:     restrictsForFilter(filter),
			},
		}},
	}

	var resp *aiplatform.GoogleCloudAiplatformV1FindNeighborsResponse
	err := ix.call.do(ctx, opFindNeighbors, func(ctx context.Context) error {
		var err error
		resp, err = ix.querySvc.Projects.Locations.IndexEndpoints.FindNeighbors(ix.endpointName, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.NearestNeighbors) == 0 {
		return []rag.Neighbor{}, nil
	}

	hits := resp.NearestNeighbors[0].Neighbors
	out := make([]rag.Neighbor, len(hits))
	found := make([]bool, len(hits))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stagingConcurrency)
	for i, h := range hits {
		if h.Datapoint == nil {
			continue
		}
		id := h.Datapoint.DatapointId
		g.Go(func() error {
			doc, err := ix.docs.Get(gctx, id)
			if errors.Is(err, rag.ErrNotFound) {
				ix.log.Warn("neighbor has no staged document, skipping", "datapoint_id", id)
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out[i] = rag.Neighbor{ID: id, Text: doc.Text, Metadata: doc.Metadata, Score: ix.score(h.Distance)}
			found[i] = true
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	neighbors := make([]rag.Neighbor, 0, len(out))
	for i, n := range out {
		if found[i] {
			neighbors = append(neighbors, n)
		}
	}
	return neighbors, nil
}

// Remove deletes datapoints and their staged documents.
func (ix *Index) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	req := &aiplatform.GoogleCloudAiplatformV1RemoveDatapointsRequest{DatapointIds: ids}
	err := ix.call.do(ctx, opRemove, func(ctx context.Context) error {
		_, err := ix.svc.Projects.Locations.Indexes.RemoveDatapoints(ix.indexName, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stagingConcurrency)
	for _, id := range ids {
		g.Go(func() error { return ix.docs.Delete(gctx, id) })
	}
	return g.Wait()
}

// score converts a Vector Search distance into a higher-is-better score.
// Dot product and cosine are already similarities; L1 and squared L2 are
// negated.
func (ix *Index) score(distance float64) float64 {
	switch ix.distance {
	case DistanceSquaredL2, DistanceL1:
		return -distance
	default:
		return distance
	}
}

func restrictsFor(meta map[string]any) []*aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction {
	var out []*aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction
	for _, key := range restrictKeys {
		if v, ok := meta[key].(string); ok && v != "" {
			out = append(out, &aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction{
				Namespace: key,
				AllowList: []string{v},
			})
		}
	}
	return out
}

func restrictsForFilter(filter map[string]string) []*aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction {
	var out []*aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction
	for _, key := range slices.Sorted(maps.Keys(filter)) {
		out = append(out, &aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction{
			Namespace: key,
			AllowList: []string{filter[key]},
		})
	}
	return out
}

// restrictKeys are the metadata fields indexed as restrict namespaces.
var restrictKeys = []string{"doc_id", "format", "source", "title"}
