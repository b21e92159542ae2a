package roicache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/kittimot/pkg/storage"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	Name  string
	Boxes [][4]uint16
}

func newTestCache(t *testing.T, policy Policy) (*Cache[[]testRecord], storage.Storage) {
	log := logs.NewTestingLog(t)
	store, err := storage.NewStorageFS(log, t.TempDir())
	require.NoError(t, err)
	return New[[]testRecord](log, store, policy), store
}

func TestStoreAndLoad(t *testing.T) {
	cache, _ := newTestCache(t, nil)

	_, ok, err := cache.Load("cache/x.gob", "")
	require.NoError(t, err)
	require.False(t, ok)

	records := []testRecord{
		{Name: "a", Boxes: [][4]uint16{{1, 2, 3, 4}}},
		{Name: "b", Boxes: [][4]uint16{{5, 6, 7, 8}, {0, 0, 0, 0}}},
	}
	require.NoError(t, cache.Store("cache/x.gob", "", records))

	loaded, ok, err := cache.Load("cache/x.gob", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, records, loaded)

	require.NoError(t, cache.Invalidate("cache/x.gob"))
	_, ok, err = cache.Load("cache/x.gob", "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMaxAge(t *testing.T) {
	cache, _ := newTestCache(t, MaxAge(time.Hour))
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	cache.SetClock(func() time.Time { return now })

	require.NoError(t, cache.Store("cache/x.gob", "", []testRecord{{Name: "a"}}))

	now = now.Add(59 * time.Minute)
	_, ok, err := cache.Load("cache/x.gob", "")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = cache.Load("cache/x.gob", "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSourcesUnchanged(t *testing.T) {
	cache, _ := newTestCache(t, All(SourcesUnchanged(), UntilDeleted()))
	require.NoError(t, cache.Store("cache/x.gob", "abc", []testRecord{{Name: "a"}}))

	_, ok, err := cache.Load("cache/x.gob", "abc")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = cache.Load("cache/x.gob", "def")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCorruptCacheIsMiss(t *testing.T) {
	cache, store := newTestCache(t, nil)
	require.NoError(t, storage.WriteFile(store, "cache/x.gob", bytes.NewReader([]byte("not a gob stream"))))
	_, ok, err := cache.Load("cache/x.gob", "")
	require.NoError(t, err)
	require.False(t, ok)

	// An artifact stored under a different name is also rejected
	require.NoError(t, cache.Store("cache/y.gob", "", []testRecord{{Name: "y"}}))
	raw, err := storage.ReadFile(store, "cache/y.gob")
	require.NoError(t, err)
	require.NoError(t, storage.WriteFile(store, "cache/x.gob", bytes.NewReader(raw)))
	_, ok, err = cache.Load("cache/x.gob", "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetOrBuild(t *testing.T) {
	cache, _ := newTestCache(t, nil)
	nBuilds := 0
	build := func() ([]testRecord, error) {
		nBuilds++
		return []testRecord{{Name: "built"}}, nil
	}
	v, hit, err := cache.GetOrBuild("cache/x.gob", "", build)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, "built", v[0].Name)

	v, hit, err = cache.GetOrBuild("cache/x.gob", "", build)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "built", v[0].Name)
	require.Equal(t, 1, nBuilds)
}

func TestFileFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("1"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("2"), 0644))

	f1, err := FileFingerprint([]string{a, b})
	require.NoError(t, err)
	f2, err := FileFingerprint([]string{a, b})
	require.NoError(t, err)
	require.Equal(t, f1, f2)

	require.NoError(t, os.WriteFile(b, []byte("22"), 0644))
	f3, err := FileFingerprint([]string{a, b})
	require.NoError(t, err)
	require.NotEqual(t, f1, f3)

	_, err = FileFingerprint([]string{filepath.Join(dir, "missing.txt")})
	require.Error(t, err)
}
