// Package config holds the JSON configuration of the kittimot tool
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cyclopcam/kittimot/pkg/kibi"
	"github.com/cyclopcam/kittimot/pkg/kitti"
	"github.com/cyclopcam/kittimot/pkg/nn"
	"github.com/cyclopcam/kittimot/pkg/roicache"
	"github.com/cyclopcam/kittimot/pkg/storage"
	"github.com/cyclopcam/logs"
)

// Cache policies
const (
	CachePolicyUntilDeleted     = "untilDeleted"     // Reuse the cache until somebody deletes it
	CachePolicyMaxAge           = "maxAge"           // Rebuild the cache when it is older than Cache.MaxAge
	CachePolicySourcesUnchanged = "sourcesUnchanged" // Rebuild the cache when any label file changes
)

type Config struct {
	DataPath             string        `json:"dataPath"`             // Directory holding the split files (train.txt, val.txt, ...)
	ImageRoot            string        `json:"imageRoot"`            // Image IDs in the split files are relative to this directory
	ImageSet             string        `json:"imageSet"`             // train, val, trainval, or test
	IndexFormat          string        `json:"indexFormat"`          // auto, paired, or segmented
	IgnoreUnknownClasses bool          `json:"ignoreUnknownClasses"` // Skip label objects whose class we don't know, instead of failing
	OverlapThreshold     float64       `json:"overlapThreshold"`     // IoU needed for a true positive
	Cache                CacheConfig   `json:"cache"`
	Storage              StorageConfig `json:"storage"`     // Where caches, result files, and evaluation indexes are kept
	EvalDB               string        `json:"evalDB"`      // If not empty, evaluation runs are recorded in this sqlite DB
	MetricsFile          string        `json:"metricsFile"` // If not empty, metrics are written here in the Prometheus text format
}

type CacheConfig struct {
	Policy string `json:"policy"` // untilDeleted, maxAge, or sourcesUnchanged
	MaxAge string `json:"maxAge"` // Go duration, eg "24h". Only used by the maxAge policy.
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket         string `json:"bucket"`         // Name of the GCS bucket
	Prefix         string `json:"prefix"`         // Objects are stored under this prefix
	LocalCache     string `json:"localCache"`     // If not empty, objects that we read are cached in this directory
	LocalCacheSize string `json:"localCacheSize"` // Size limit of LocalCache, eg "256 MB"
}

// Load reads a config file, and fills in defaults
func Load(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.IndexFormat == "" {
		c.IndexFormat = string(kitti.IndexFormatAuto)
	}
	if c.OverlapThreshold == 0 {
		c.OverlapThreshold = nn.DefaultOverlapThreshold
	}
	if c.Cache.Policy == "" {
		c.Cache.Policy = CachePolicyUntilDeleted
	}
	if c.Storage.Filesystem == nil && c.Storage.GCS == nil {
		c.Storage.Filesystem = &StorageConfigFS{Root: "."}
	}
	if c.Storage.GCS != nil && c.Storage.GCS.LocalCache != "" && c.Storage.GCS.LocalCacheSize == "" {
		c.Storage.GCS.LocalCacheSize = "256 MB"
	}
}

// Validate checks the config for errors that would otherwise only show up halfway through a run
func (c *Config) Validate() error {
	if c.ImageSet == "" {
		return errors.New("imageSet is required")
	}
	if _, err := kitti.ParseIndexFormat(c.IndexFormat); err != nil {
		return err
	}
	if c.OverlapThreshold <= 0 || c.OverlapThreshold > 1 {
		return fmt.Errorf("overlapThreshold must be in (0, 1], but is %v", c.OverlapThreshold)
	}
	if _, err := c.CachePolicy(); err != nil {
		return err
	}
	if (c.Storage.Filesystem == nil) == (c.Storage.GCS == nil) {
		return errors.New("Exactly one of storage.filesystem or storage.gcs must be configured")
	}
	if c.Storage.GCS != nil {
		if c.Storage.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket is required")
		}
		if c.Storage.GCS.LocalCache != "" {
			if _, err := kibi.ParseBytes(c.Storage.GCS.LocalCacheSize); err != nil {
				return fmt.Errorf("Invalid storage.gcs.localCacheSize '%v': %w", c.Storage.GCS.LocalCacheSize, err)
			}
		}
	}
	return nil
}

func (c *Config) CachePolicy() (roicache.Policy, error) {
	switch c.Cache.Policy {
	case CachePolicyUntilDeleted:
		return roicache.UntilDeleted(), nil
	case CachePolicyMaxAge:
		maxAge, err := time.ParseDuration(c.Cache.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("Invalid cache.maxAge '%v': %w", c.Cache.MaxAge, err)
		}
		return roicache.MaxAge(maxAge), nil
	case CachePolicySourcesUnchanged:
		return roicache.SourcesUnchanged(), nil
	}
	return nil, fmt.Errorf("Unknown cache policy '%v' (expected %v, %v, or %v)", c.Cache.Policy,
		CachePolicyUntilDeleted, CachePolicyMaxAge, CachePolicySourcesUnchanged)
}

// OpenStorage creates the configured blob store
func (c *Config) OpenStorage(log logs.Log) (storage.Storage, error) {
	if c.Storage.GCS != nil {
		log.Infof("Using GCS bucket %v for artifacts", c.Storage.GCS.Bucket)
		gcs, err := storage.NewStorageGCS(log, c.Storage.GCS.Bucket, c.Storage.GCS.Prefix)
		if err != nil {
			return nil, err
		}
		if c.Storage.GCS.LocalCache == "" {
			return gcs, nil
		}
		maxBytes, err := kibi.ParseBytes(c.Storage.GCS.LocalCacheSize)
		if err != nil {
			return nil, err
		}
		return storage.NewStorageCache(log, gcs, c.Storage.GCS.LocalCache, maxBytes)
	} else if c.Storage.Filesystem != nil {
		log.Infof("Using filesystem %v for artifacts", c.Storage.Filesystem.Root)
		return storage.NewStorageFS(log, c.Storage.Filesystem.Root)
	}
	return nil, errors.New("No storage configured")
}

// DatasetOptions converts the config into the options of kitti.Open
func (c *Config) DatasetOptions() (kitti.Options, error) {
	format, err := kitti.ParseIndexFormat(c.IndexFormat)
	if err != nil {
		return kitti.Options{}, err
	}
	return kitti.Options{
		DataPath:             c.DataPath,
		ImageRoot:            c.ImageRoot,
		ImageSet:             c.ImageSet,
		IndexFormat:          format,
		IgnoreUnknownClasses: c.IgnoreUnknownClasses,
		TrackSources:         c.Cache.Policy == CachePolicySourcesUnchanged,
		OverlapThreshold:     c.OverlapThreshold,
	}, nil
}
