package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const defaultWriteTimeout = 30 * time.Second

// Archive stores generated documents in a Cloud Storage bucket.
type Archive struct {
	client  *storage.Client
	bucket  string
	timeout time.Duration
}

// ArchiveOption customises Archive behaviour.
type ArchiveOption func(*Archive)

// WithWriteTimeout bounds each object write.
func WithWriteTimeout(d time.Duration) ArchiveOption {
	return func(a *Archive) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewArchive constructs an Archive bound to a bucket.
func NewArchive(client *storage.Client, bucket string, opts ...ArchiveOption) (*Archive, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	archive := &Archive{
		client:  client,
		bucket:  bucket,
		timeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(archive)
		}
	}
	return archive, nil
}

// Put writes an object under the given name, replacing any previous version.
func (a *Archive) Put(ctx context.Context, object string, contentType string, data []byte) error {
	if a == nil || a.client == nil {
		return errors.New("storage: archive not initialised")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return errors.New("storage: object name is required")
	}

	writeCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(object).NewWriter(writeCtx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: finalize object %s: %w", object, err)
	}
	return nil
}
