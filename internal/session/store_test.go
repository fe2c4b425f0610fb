package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	_, ok := store.Token()
	assert.False(t, ok)

	require.NoError(t, store.SetToken("tok-1"))
	tok, ok := store.Token()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", tok)

	require.NoError(t, store.SetAvatarHint("https://cdn.example/a.png"))
	hint, ok := store.AvatarHint()
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example/a.png", hint)

	require.NoError(t, store.Clear())
	_, ok = store.Token()
	assert.False(t, ok)
	_, ok = store.AvatarHint()
	assert.False(t, ok)
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetToken("tok-1"))
	require.NoError(t, store.SetAvatarHint("https://cdn.example/a.png"))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	tok, ok := reopened.Token()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", tok)

	hint, ok := reopened.AvatarHint()
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example/a.png", hint)
}

func TestFileStoreClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetToken("tok-1"))

	require.NoError(t, store.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing an already-empty store is fine.
	require.NoError(t, store.Clear())
	_, ok := store.Token()
	assert.False(t, ok)
}

func TestFileStoreToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, ok := store.Token()
	assert.False(t, ok)

	// The next write repairs the file.
	require.NoError(t, store.SetToken("tok-2"))
	tok, ok := store.Token()
	assert.True(t, ok)
	assert.Equal(t, "tok-2", tok)
}

func TestFileStoreRestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetToken("tok-1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
