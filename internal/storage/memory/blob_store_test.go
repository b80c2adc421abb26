package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "out/news.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://out/news.json", uri)

	payload[0] = 'C'
	obj, ok := store.Get("out/news.json")
	require.True(t, ok)
	assert.Equal(t, "content", string(obj.Data))
	assert.Equal(t, "application/json", obj.ContentType)

	obj.Data[0] = 'X'
	again, _ := store.Get("out/news.json")
	assert.Equal(t, "content", string(again.Data), "Get returns a copy")
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.txt", "a.json"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a.json", "b.txt"}, store.Paths())

	_, ok := store.Get("missing")
	assert.False(t, ok)
}
