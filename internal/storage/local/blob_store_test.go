// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-aggregator/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "data", "out")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- reverting permissions to allow cleanup in the test environment.
			_ = os.Chmod(tempDir, 0o700)
		})

		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("ValidPut", func(t *testing.T) {
		data := []byte(`{"total":0}`)
		uri, err := store.PutObject(context.Background(), "news.json", "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "news.json"), uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(filepath.Join(tempDir, "news.json"))
		require.NoError(t, err)
		assert.Equal(t, data, readData)
	})

	t.Run("Overwrite", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "news.json", "", bytes.NewReader([]byte("second")))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(filepath.Join(tempDir, "news.json"))
		require.NoError(t, err)
		assert.Equal(t, "second", string(readData))
	})

	t.Run("NestedPath", func(t *testing.T) {
		path := "2025/06/01/news.json"
		_, err := store.PutObject(context.Background(), path, "", bytes.NewReader([]byte("nested")))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(filepath.Join(tempDir, path))
		require.NoError(t, err)
		assert.Equal(t, "nested", string(readData))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/plain", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.json", "", bytes.NewReader([]byte("data")))
		require.EqualError(t, err, "path traversal detected")
	})

	t.Run("ReaderFailureLeavesNoFile", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "broken.json", "", failingReader{})
		require.Error(t, err)
		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), "broken")
		}
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }
