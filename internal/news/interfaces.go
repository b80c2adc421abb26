package news

import (
	"context"
	"io"
	"time"
)

// Fetcher is the extraction contract shared by markup and feed sources.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) (Harvest, error)
}

// Downloader retrieves one document over the network.
type Downloader interface {
	Download(ctx context.Context, url string) (Page, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Task is one source scheduled on the worker pool.
type Task struct {
	Index   int
	Source  Source
	Fetcher Fetcher
}

// Queue provides enqueue/dequeue semantics for fetch tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// BlobStore persists output artifacts and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, body io.Reader) (string, error)
}

// NewsStore persists a batch and its records in a database.
type NewsStore interface {
	SaveBatch(ctx context.Context, batch Batch) error
}

// Publisher announces a written batch.
type Publisher interface {
	Publish(ctx context.Context, notice Notice) (string, error)
}
