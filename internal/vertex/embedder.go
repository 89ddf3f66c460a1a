package vertex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/api/aiplatform/v1"
)

const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Embedder calls a Vertex AI text-embedding publisher model.
type Embedder struct {
	svc       *aiplatform.Service
	call      *caller
	model     string
	batchSize int
}

// ModelResource returns the resource name of a Google publisher model.
func ModelResource(project, region, model string) string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", project, region, model)
}

func newEmbedder(svc *aiplatform.Service, call *caller, model string, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Embedder{svc: svc, call: call, model: model, batchSize: batchSize}
}

// Embed returns the embedding of a search query.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns document embeddings in input order, splitting the input
// into requests of at most batchSize instances.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embed(ctx, texts[start:end], taskRetrievalDocument)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Ping embeds a single word to verify credentials and model access.
func (e *Embedder) Ping(ctx context.Context) error {
	_, err := e.Embed(ctx, "test")
	return err
}

type predictionEmbedding struct {
	Embeddings struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

func (e *Embedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	instances := make([]interface{}, len(texts))
	for i, t := range texts {
		instances[i] = map[string]any{"content": t, "task_type": task}
	}
	req := &aiplatform.GoogleCloudAiplatformV1PredictRequest{Instances: instances}

	var resp *aiplatform.GoogleCloudAiplatformV1PredictResponse
	err := e.call.do(ctx, opEmbed, func(ctx context.Context) error {
		var err error
		resp, err = e.svc.Projects.Locations.Endpoints.Predict(e.model, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Predictions) != len(texts) {
		return nil, translate(opEmbed, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Predictions)))
	}

	vecs := make([][]float32, len(resp.Predictions))
	for i, p := range resp.Predictions {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, translate(opEmbed, err)
		}
		var pe predictionEmbedding
		if err := json.Unmarshal(raw, &pe); err != nil {
			return nil, translate(opEmbed, fmt.Errorf("decode prediction %d: %w", i, err))
		}
		if len(pe.Embeddings.Values) == 0 {
			return nil, translate(opEmbed, errors.New("empty embedding in prediction"))
		}
		vecs[i] = toFloat32(pe.Embeddings.Values)
	}
	return vecs, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
