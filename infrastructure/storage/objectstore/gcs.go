// Package objectstore downloads source document binaries from a Google
// Cloud Storage bucket or a local directory.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/ahrav/go-verity/internal/ports"
)

// DefaultMaxObjectSize bounds a single download.
const DefaultMaxObjectSize int64 = 200 << 20

// ErrObjectTooLarge is returned when an object exceeds the size limit.
var ErrObjectTooLarge = errors.New("object exceeds size limit")

// objectReader opens one object of a bucket.
type objectReader interface {
	NewReader(ctx context.Context, name string) (io.ReadCloser, error)
}

type bucketHandle struct {
	h *storage.BucketHandle
}

func (b bucketHandle) NewReader(ctx context.Context, name string) (io.ReadCloser, error) {
	return b.h.Object(name).NewReader(ctx)
}

// GCS implements ports.ObjectStore for one bucket.
type GCS struct {
	bucket  string
	objects objectReader
	maxSize int64
}

// NewGCS reads objects from bucket using client.
func NewGCS(client *storage.Client, bucket string) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newGCS(bucketHandle{h: client.Bucket(bucket)}, bucket)
}

func newGCS(objects objectReader, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &GCS{bucket: bucket, objects: objects, maxSize: DefaultMaxObjectSize}, nil
}

// Download implements ports.ObjectStore. Paths may be object names or
// gs:// URIs within the configured bucket.
func (g *GCS) Download(ctx context.Context, path string) ([]byte, error) {
	name, err := g.objectName(path)
	if err != nil {
		return nil, ports.NewObjectStoreError("gcs", path, err)
	}

	r, err := g.objects.NewReader(ctx, name)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, ports.NewObjectStoreError("gcs", path, ports.ErrObjectNotFound)
	}
	if err != nil {
		return nil, ports.NewObjectStoreError("gcs", path, err)
	}
	defer r.Close()

	return readLimited(r, g.maxSize, "gcs", path)
}

func (g *GCS) objectName(path string) (string, error) {
	if rest, ok := strings.CutPrefix(path, "gs://"); ok {
		bucket, name, _ := strings.Cut(rest, "/")
		if bucket != g.bucket {
			return "", fmt.Errorf("object is in bucket %q, store reads %q", bucket, g.bucket)
		}
		path = name
	}
	name := strings.TrimPrefix(path, "/")
	if name == "" {
		return "", fmt.Errorf("empty object name")
	}
	return name, nil
}

func readLimited(r io.Reader, limit int64, backend, path string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, ports.NewObjectStoreError(backend, path, err)
	}
	if int64(len(data)) > limit {
		return nil, ports.NewObjectStoreError(backend, path, ErrObjectTooLarge)
	}
	return data, nil
}

var _ ports.ObjectStore = (*GCS)(nil)
