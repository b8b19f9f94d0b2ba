package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBlobLogger creates a logger for blob tests.
func newTestBlobLogger() *common.Logger {
	return common.NewLogger("error")
}

func TestFileBlobStore_PutGet(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	store, err := NewFileBlobStore(logger, &FileBlobConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := "job-123/source.py"
	data := []byte(`print("hello")`)

	// Put
	err = store.Put(ctx, key, data)
	require.NoError(t, err)

	// Get
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Verify file was created
	path := filepath.Join(tmpDir, "job-123", "source.py")
	assert.FileExists(t, path)
}

func TestFileBlobStore_GetNotFound(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	store, err := NewFileBlobStore(logger, &FileBlobConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.Get(ctx, "nonexistent.py")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestFileBlobStore_Delete(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	store, err := NewFileBlobStore(logger, &FileBlobConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := "delete-me.py"
	data := []byte(`pass`)

	// Create
	err = store.Put(ctx, key, data)
	require.NoError(t, err)

	// Verify exists
	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	// Delete
	err = store.Delete(ctx, key)
	require.NoError(t, err)

	// Verify gone
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileBlobStore_DeleteNonexistent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	store, err := NewFileBlobStore(logger, &FileBlobConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	// Should not error on delete of nonexistent key
	err = store.Delete(ctx, "nonexistent.py")
	assert.NoError(t, err)
}

func TestFileBlobStore_Exists(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	store, err := NewFileBlobStore(logger, &FileBlobConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := "exists-test.py"

	// Should not exist initially
	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	// Create
	err = store.Put(ctx, key, []byte("pass"))
	require.NoError(t, err)

	// Should exist now
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileBlobStore_Metadata(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	store, err := NewFileBlobStore(logger, &FileBlobConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := "metadata-test.py"
	data := []byte(`x = 1`)

	err = store.Put(ctx, key, data)
	require.NoError(t, err)

	meta, err := store.Metadata(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, key, meta.Key)
	assert.Equal(t, int64(len(data)), meta.Size)
	assert.NotEmpty(t, meta.ETag)
	assert.False(t, meta.LastModified.IsZero())
}

func TestFileBlobStore_List(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	store, err := NewFileBlobStore(logger, &FileBlobConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	// Create some test blobs
	testData := map[string][]byte{
		"job-aaa/source.py": []byte(`print(1)`),
		"job-bbb/source.py": []byte(`print(2)`),
		"job-ccc/source.py": []byte(`print(3)`),
		"job-ddd/source.py": []byte(`print(4)`),
	}

	for key, data := range testData {
		err := store.Put(ctx, key, data)
		require.NoError(t, err)
	}

	// List all
	result, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Blobs, 4)

	// List with prefix
	result, err = store.List(ctx, ListOptions{Prefix: "job-aaa/"})
	require.NoError(t, err)
	assert.Len(t, result.Blobs, 1)

	// List with prefix (no results)
	result, err = store.List(ctx, ListOptions{Prefix: "nonexistent/"})
	require.NoError(t, err)
	assert.Len(t, result.Blobs, 0)
}

func TestFileBlobStore_ListWithLimit(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	store, err := NewFileBlobStore(logger, &FileBlobConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	// Create test blobs
	for i := 0; i < 5; i++ {
		key := filepath.Join("test", "file"+string(rune('0'+i))+".py")
		err := store.Put(ctx, key, []byte(`pass`))
		require.NoError(t, err)
	}

	// List with limit
	result, err := store.List(ctx, ListOptions{MaxKeys: 2})
	require.NoError(t, err)
	assert.Len(t, result.Blobs, 2)
	assert.True(t, result.Truncated)
}

func TestFileBlobStore_SanitizeKey(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	store, err := NewFileBlobStore(logger, &FileBlobConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer store.Close()

	// Test path traversal protection
	tests := []struct {
		input    string
		expected string
	}{
		{"normal/key.py", "normal/key.py"},
		{"../escape.py", "escape.py"},
		{"foo/../bar.py", "foo/bar.py"},
		{"foo/../../bar.py", "bar.py"},
		{"/absolute/path.py", "absolute/path.py"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			result := store.sanitizeKey(tc.input)
			// The result should not allow escaping the base path
			assert.NotContains(t, result, "..")
		})
	}
}

func TestFileBlobStore_AtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	store, err := NewFileBlobStore(logger, &FileBlobConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := "atomic-test.py"

	// Write initial data
	err = store.Put(ctx, key, []byte(`v = 1`))
	require.NoError(t, err)

	// Overwrite with new data
	err = store.Put(ctx, key, []byte(`v = 2`))
	require.NoError(t, err)

	// Verify final content
	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `v = 2`, string(data))

	// Verify no temp files left behind
	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, filepath.HasPrefix(e.Name(), ".tmp-"))
	}
}

func TestNewBlobStore_FileFallback(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newTestBlobLogger()

	cfg := &common.ArtifactStoreConfig{}

	store, err := NewBlobStore(context.Background(), logger, cfg, tmpDir)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	err = store.Put(ctx, "test.py", []byte(`ok = True`))
	require.NoError(t, err)

	data, err := store.Get(ctx, "test.py")
	require.NoError(t, err)
	assert.Equal(t, `ok = True`, string(data))
}
