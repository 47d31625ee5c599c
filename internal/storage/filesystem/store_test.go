package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileoff/backend/internal/storage"
)

func TestFilesystemStore_SaveOpenDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	content := "hello blob store"

	// Test Save
	written, err := store.Save(context.Background(), "abc123", strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), written)
	assert.True(t, store.Exists("abc123"))

	// Test Open
	rc, err := store.Open("abc123")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, string(data))

	// Test Delete
	require.NoError(t, store.Delete("abc123"))
	assert.False(t, store.Exists("abc123"))

	_, err = store.Open("abc123")
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)

	err = store.Delete("abc123")
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)
}

func TestFilesystemStore_EmptyBasePath(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}

func TestFilesystemStore_Sharding(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "abcdef", strings.NewReader("x"))
	require.NoError(t, err)

	// 按 ID 前两位分片存放
	_, err = os.Stat(filepath.Join(base, "blobs", "ab", "abcdef"))
	assert.NoError(t, err)
}

type failingReader struct {
	data []byte
	read bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.read {
		f.read = true
		return copy(p, f.data), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestFilesystemStore_FailedSaveLeavesNothing(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "broken", &failingReader{data: []byte("partial data")})
	require.Error(t, err)

	// 最终路径和临时目录都不该留下残留
	assert.False(t, store.Exists("broken"))

	entries, err := os.ReadDir(filepath.Join(base, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFilesystemStore_SaveCancelled(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Save(ctx, "cancelled", strings.NewReader("never written"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, store.Exists("cancelled"))
}

func TestFilesystemStore_OverwriteSameID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "id1", strings.NewReader("first"))
	require.NoError(t, err)

	// 同一 ID 再写入直接替换，rename 保证原子切换
	_, err = store.Save(context.Background(), "id1", strings.NewReader("second"))
	require.NoError(t, err)

	rc, err := store.Open("id1")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "second", string(data))
}
