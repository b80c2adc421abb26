// Package gcs publishes batch artifacts to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// DefaultCacheControl keeps CDN copies of the news document short-lived.
const DefaultCacheControl = "public, max-age=60"

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket       string
	CacheControl string
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client       *storage.Client
	bucket       string
	cacheControl string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	cc := cfg.CacheControl
	if cc == "" {
		cc = DefaultCacheControl
	}
	return &BlobStore{
		client:       client,
		bucket:       cfg.Bucket,
		cacheControl: cc,
	}, nil
}

// Dial opens a storage client with application default credentials.
func Dial(ctx context.Context, cfg Config) (*BlobStore, func() error, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("storage client: %w", err)
	}
	store, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client.Close, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	path = strings.TrimLeft(path, "/")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	writer.CacheControl = s.cacheControl
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return objectURI(s.bucket, path), nil
}

func objectURI(bucket, path string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, path)
}
