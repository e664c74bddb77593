package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps objects in one Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	tracer trace.Tracer
}

// NewGCSClient builds a storage client, using credentialsFile when set and
// application default credentials otherwise.
func NewGCSClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return client, nil
}

func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{
		client: client,
		bucket: bucket,
		tracer: otel.Tracer("github.com/couchcryptid/air-quality-etl/internal/adapter/objstore"),
	}
}

func (s *GCSStore) List(ctx context.Context, p domain.PartitionKey) ([]domain.RawArtifactRef, error) {
	ctx, span := s.tracer.Start(ctx, "objstore.gcsList", trace.WithAttributes(
		attribute.String("bucket", s.bucket),
		attribute.String("partition", p.String()),
	))
	defer span.End()

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: p.Prefix(), Delimiter: "/"})
	var refs []domain.RawArtifactRef
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", s.bucket, p.Prefix(), err)
		}
		if attrs.Name == "" {
			// synthetic directory entry such as "bad/"
			continue
		}
		if ref, ok := toRef(p, attrs.Name, attrs.Size); ok {
			refs = append(refs, ref)
		}
	}
	sortRefs(refs)
	return refs, nil
}

func (s *GCSStore) Read(ctx context.Context, name string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "objstore.gcsRead", trace.WithAttributes(
		attribute.String("bucket", s.bucket),
		attribute.String("key", name),
	))
	defer span.End()

	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucket, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucket, name, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucket, name, err)
	}
	return data, nil
}

func (s *GCSStore) Put(ctx context.Context, name string, data []byte) error {
	return s.write(ctx, s.client.Bucket(s.bucket).Object(name), name, data)
}

// Create uses a does-not-exist precondition so concurrent writers cannot
// clobber each other.
func (s *GCSStore) Create(ctx context.Context, name string, data []byte) error {
	obj := s.client.Bucket(s.bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	err := s.write(ctx, obj, name, data)
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("create gs://%s/%s: %w", s.bucket, name, ErrExists)
	}
	return err
}

func (s *GCSStore) write(ctx context.Context, obj *storage.ObjectHandle, name string, data []byte) error {
	ctx, span := s.tracer.Start(ctx, "objstore.gcsWrite", trace.WithAttributes(
		attribute.String("bucket", s.bucket),
		attribute.String("key", name),
	))
	defer span.End()

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", s.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", s.bucket, name, err)
	}
	return nil
}
