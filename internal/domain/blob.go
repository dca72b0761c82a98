package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage. Used to archive submitted bulk
// feed documents.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage. Used by the S3-backed floor
// price feed source.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Stat(ctx context.Context, path string) (BlobInfo, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
