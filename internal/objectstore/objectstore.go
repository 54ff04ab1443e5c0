// Package objectstore abstracts the blob storage that holds uploaded
// agent documents. Each agent owns one bucket; object keys are the
// stored file names.
package objectstore

import (
	"context"
	"fmt"
	"time"
)

// DefaultPresignTTL is how long a download link stays valid.
const DefaultPresignTTL = time.Hour

// ObjectStore is the blob storage surface the document handlers and
// the indexing pipeline depend on.
type ObjectStore interface {
	// CreateBucket provisions the bucket for a new agent. Creating a
	// bucket that already exists is not an error.
	CreateBucket(ctx context.Context, bucket string) error
	// DeleteBucket removes a bucket and everything in it.
	DeleteBucket(ctx context.Context, bucket string) error

	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error

	// PresignGet returns a time-limited download URL for an object.
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// ErrObjectNotFound is returned by Get and PresignGet for missing keys.
type ErrObjectNotFound struct {
	Bucket string
	Key    string
}

func (e *ErrObjectNotFound) Error() string {
	return fmt.Sprintf("object %s/%s not found", e.Bucket, e.Key)
}
