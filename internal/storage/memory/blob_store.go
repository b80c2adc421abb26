// Package memory keeps batch artifacts in memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Object is a stored artifact.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore stores artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject persists the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, data io.Reader) (string, error) {
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{ContentType: contentType, Data: byteData}
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns a copy of the object stored at path.
func (s *BlobStore) Get(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return Object{}, false
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, true
}

// Paths lists stored object paths in sorted order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.objects))
	for p := range s.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
