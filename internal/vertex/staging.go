package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"google.golang.org/api/storage/v1"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// StagedDoc is the text and metadata kept for one datapoint. Vector Search
// only stores vectors, so the text lives in the staging bucket.
type StagedDoc struct {
	Text     string         `json:"page_content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DocStore keeps StagedDocs by datapoint ID.
type DocStore interface {
	Put(ctx context.Context, id string, doc StagedDoc) error
	Get(ctx context.Context, id string) (StagedDoc, error)
	Delete(ctx context.Context, id string) error
}

// NormalizeBucket strips a gs:// prefix and any trailing slash, warning when
// the prefix was present.
func NormalizeBucket(bucket string, log *slog.Logger) string {
	if strings.HasPrefix(bucket, "gs://") {
		if log != nil {
			log.Warn("staging bucket should be a bare name, stripping gs:// prefix", "bucket", bucket)
		}
		bucket = strings.TrimPrefix(bucket, "gs://")
	}
	return strings.TrimSuffix(bucket, "/")
}

// Staging is a DocStore backed by a Cloud Storage bucket. Objects are JSON
// under documents/<id>.
type Staging struct {
	svc    *storage.Service
	call   *caller
	bucket string
	prefix string
}

func newStaging(svc *storage.Service, call *caller, bucket string) *Staging {
	return &Staging{svc: svc, call: call, bucket: bucket, prefix: "documents/"}
}

// URI returns the gs:// URI of the bucket.
func (s *Staging) URI() string { return "gs://" + s.bucket }

// Check verifies the bucket exists. A missing bucket is a precondition failure.
func (s *Staging) Check(ctx context.Context) error {
	err := s.call.do(ctx, opBucket, func(ctx context.Context) error {
		_, err := s.svc.Buckets.Get(s.bucket).Context(ctx).Do()
		return err
	})
	return s.bucketMissing(opBucket, err)
}

func (s *Staging) Put(ctx context.Context, id string, doc StagedDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal staged doc %s: %w", id, err)
	}
	err = s.call.do(ctx, opStagePut, func(ctx context.Context) error {
		obj := &storage.Object{Name: s.prefix + id, ContentType: "application/json"}
		_, err := s.svc.Objects.Insert(s.bucket, obj).Media(bytes.NewReader(data)).Context(ctx).Do()
		return err
	})
	return s.bucketMissing(opStagePut, err)
}

func (s *Staging) Get(ctx context.Context, id string) (StagedDoc, error) {
	var data []byte
	err := s.call.do(ctx, opStageGet, func(ctx context.Context) error {
		resp, err := s.svc.Objects.Get(s.bucket, s.prefix+id).Context(ctx).Download()
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return StagedDoc{}, err
	}

	var doc StagedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return StagedDoc{}, fmt.Errorf("decode staged doc %s: %w", id, err)
	}
	return doc, nil
}

func (s *Staging) Delete(ctx context.Context, id string) error {
	err := s.call.do(ctx, opStageDelete, func(ctx context.Context) error {
		return s.svc.Objects.Delete(s.bucket, s.prefix+id).Context(ctx).Do()
	})
	if errors.Is(err, rag.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Staging) bucketMissing(op string, err error) error {
	if errors.Is(err, rag.ErrNotFound) {
		return &rag.PreconditionError{Op: op, Err: fmt.Errorf("staging bucket %s does not exist", s.URI())}
	}
	return err
}
