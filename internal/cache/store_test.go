package cache_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"htlpack/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGet(t *testing.T) {
	s, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get("/src/html.htl")
	require.NoError(t, err)
	assert.False(t, ok)

	built := time.UnixMilli(1700000000000)
	require.NoError(t, s.Put(cache.Record{
		Entry:        "/src/html.htl",
		Fingerprint:  "fp1",
		Artifact:     "/dist/html.go",
		ArtifactHash: "ah1",
		BuiltAt:      built,
	}))

	rec, ok, err := s.Get("/src/html.htl")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fp1", rec.Fingerprint)
	assert.Equal(t, "/dist/html.go", rec.Artifact)
	assert.True(t, rec.BuiltAt.Equal(built))
}

func TestStore_PutReplaces(t *testing.T) {
	s, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(cache.Record{Entry: "e", Fingerprint: "a", Artifact: "x", ArtifactHash: "1"}))
	require.NoError(t, s.Put(cache.Record{Entry: "e", Fingerprint: "b", Artifact: "x", ArtifactHash: "2"}))

	rec, ok, err := s.Get("e")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", rec.Fingerprint)
	assert.Equal(t, "2", rec.ArtifactHash)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_Delete(t *testing.T) {
	s, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(cache.Record{Entry: "e", Fingerprint: "a", Artifact: "x", ArtifactHash: "1"}))
	require.NoError(t, s.Delete("e"))
	require.NoError(t, s.Delete("never-stored"))

	_, ok, err := s.Get("e")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()

	s, err := cache.Open(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, cache.FileName), s.Path())
	require.NoError(t, s.Put(cache.Record{Entry: "e", Fingerprint: "a", Artifact: "x", ArtifactHash: "1"}))
	require.NoError(t, s.Close())

	s2, err := cache.Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	rec, ok, err := s2.Get("e")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", rec.Fingerprint)
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := filepath.Join("/src", string(rune('a'+i))+".htl")
			assert.NoError(t, s.Put(cache.Record{Entry: entry, Fingerprint: "f", Artifact: "a", ArtifactHash: "h"}))
		}(i)
	}
	wg.Wait()

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}
