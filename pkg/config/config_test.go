package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/kittimot/pkg/kitti"
	"github.com/cyclopcam/kittimot/pkg/roicache"
	"github.com/cyclopcam/kittimot/pkg/storage"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	fn := filepath.Join(t.TempDir(), "kittimot.json")
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	return fn
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"dataPath": "data/kitti_mot", "imageSet": "val"}`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "auto", cfg.IndexFormat)
	require.Equal(t, 0.5, cfg.OverlapThreshold)
	require.Equal(t, CachePolicyUntilDeleted, cfg.Cache.Policy)
	require.NotNil(t, cfg.Storage.Filesystem)

	opt, err := cfg.DatasetOptions()
	require.NoError(t, err)
	require.Equal(t, kitti.IndexFormatAuto, opt.IndexFormat)
	require.Equal(t, "data/kitti_mot", opt.DataPath)
	require.False(t, opt.TrackSources)

	root := filepath.Join(t.TempDir(), "artifacts")
	cfg.Storage.Filesystem.Root = root
	store, err := cfg.OpenStorage(logs.NewTestingLog(t))
	require.NoError(t, err)
	require.IsType(t, &storage.StorageFS{}, store)
	require.DirExists(t, root)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	_, err = Load(writeConfig(t, `{"imageSet": `))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{ImageSet: "val"}
		cfg.SetDefaults()
		return cfg
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.ImageSet = ""
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.IndexFormat = "triplets"
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.OverlapThreshold = 1.5
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Storage.GCS = &StorageConfigGCS{Bucket: "b"}
	require.ErrorContains(t, cfg.Validate(), "Exactly one")

	cfg = valid()
	cfg.Storage.Filesystem = nil
	cfg.Storage.GCS = &StorageConfigGCS{}
	require.ErrorContains(t, cfg.Validate(), "bucket")

	cfg = valid()
	cfg.Storage.Filesystem = nil
	cfg.Storage.GCS = &StorageConfigGCS{Bucket: "b", LocalCache: "/tmp/x"}
	cfg.SetDefaults()
	require.Equal(t, "256 MB", cfg.Storage.GCS.LocalCacheSize)
	require.NoError(t, cfg.Validate())
	cfg.Storage.GCS.LocalCacheSize = "lots"
	require.ErrorContains(t, cfg.Validate(), "localCacheSize")

	cfg = valid()
	cfg.Cache.Policy = "forever"
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Cache.Policy = CachePolicyMaxAge
	require.Error(t, cfg.Validate())
	cfg.Cache.MaxAge = "2h"
	require.NoError(t, cfg.Validate())
}

func TestCachePolicy(t *testing.T) {
	now := time.Now()
	header := roicache.Header{CreatedAt: now.Add(-3 * time.Hour), Fingerprint: "abc"}

	cfg := &Config{Cache: CacheConfig{Policy: CachePolicyMaxAge, MaxAge: "2h"}}
	p, err := cfg.CachePolicy()
	require.NoError(t, err)
	require.False(t, p.Fresh(header, now, ""))

	cfg = &Config{Cache: CacheConfig{Policy: CachePolicySourcesUnchanged}}
	p, err = cfg.CachePolicy()
	require.NoError(t, err)
	require.True(t, p.Fresh(header, now, "abc"))
	require.False(t, p.Fresh(header, now, "abd"))
	opt, err := cfg.DatasetOptions()
	require.NoError(t, err)
	require.True(t, opt.TrackSources)

	cfg = &Config{Cache: CacheConfig{Policy: CachePolicyUntilDeleted}}
	p, err = cfg.CachePolicy()
	require.NoError(t, err)
	require.True(t, p.Fresh(header, now, "anything"))
}
