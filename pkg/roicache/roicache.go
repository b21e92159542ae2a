package roicache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/cyclopcam/kittimot/pkg/storage"
	"github.com/cyclopcam/logs"
)

// Bump this whenever the layout of a cached type changes
const FormatVersion = 1

// Header precedes the payload of every cached artifact
type Header struct {
	Version     int
	Name        string
	CreatedAt   time.Time
	Fingerprint string
}

// Cache stores parsed datasets in a blob store, so that we don't need to
// parse the annotation files on every run.
// Whether an existing artifact is reused is decided by the Policy, using
// the injected clock.
type Cache[T any] struct {
	log    logs.Log
	store  storage.Storage
	policy Policy
	now    func() time.Time
}

func New[T any](log logs.Log, store storage.Storage, policy Policy) *Cache[T] {
	if policy == nil {
		policy = UntilDeleted()
	}
	return &Cache[T]{
		log:    log,
		store:  store,
		policy: policy,
		now:    time.Now,
	}
}

// SetClock replaces the clock that is used to stamp and age artifacts
func (c *Cache[T]) SetClock(now func() time.Time) {
	c.now = now
}

// Load returns the artifact 'name' if it exists and the policy accepts it.
// A corrupt or outdated artifact is reported as a miss, not an error.
func (c *Cache[T]) Load(name, fingerprint string) (value T, ok bool, err error) {
	raw, err := storage.ReadFile(c.store, name)
	if errors.Is(err, storage.ErrNotFound) {
		return value, false, nil
	} else if err != nil {
		return value, false, fmt.Errorf("Failed to read cache %v: %w", name, err)
	}

	dec := gob.NewDecoder(bytes.NewReader(raw))
	hdr := Header{}
	if err := dec.Decode(&hdr); err != nil {
		c.log.Warnf("Ignoring unreadable cache %v: %v", name, err)
		return value, false, nil
	}
	if hdr.Version != FormatVersion || hdr.Name != name {
		c.log.Warnf("Ignoring cache %v (version %v, name '%v')", name, hdr.Version, hdr.Name)
		return value, false, nil
	}
	if !c.policy.Fresh(hdr, c.now(), fingerprint) {
		c.log.Infof("Cache %v (created %v) is stale", name, hdr.CreatedAt.Format(time.RFC3339))
		return value, false, nil
	}
	if err := dec.Decode(&value); err != nil {
		c.log.Warnf("Ignoring unreadable cache %v: %v", name, err)
		var zero T
		return zero, false, nil
	}
	return value, true, nil
}

// Store writes 'value' as the artifact 'name', replacing any previous version
func (c *Cache[T]) Store(name, fingerprint string, value T) error {
	buf := bytes.Buffer{}
	enc := gob.NewEncoder(&buf)
	hdr := Header{
		Version:     FormatVersion,
		Name:        name,
		CreatedAt:   c.now(),
		Fingerprint: fingerprint,
	}
	if err := enc.Encode(&hdr); err != nil {
		return err
	}
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("Failed to encode cache %v: %w", name, err)
	}
	if err := storage.WriteFile(c.store, name, &buf); err != nil {
		return fmt.Errorf("Failed to write cache %v: %w", name, err)
	}
	return nil
}

// Invalidate deletes the artifact 'name'
func (c *Cache[T]) Invalidate(name string) error {
	return c.store.DeleteFile(name)
}

// GetOrBuild loads the artifact 'name', or builds and stores it if there is no usable artifact.
// 'hit' is true if the value came from the cache.
func (c *Cache[T]) GetOrBuild(name, fingerprint string, build func() (T, error)) (value T, hit bool, err error) {
	value, hit, err = c.Load(name, fingerprint)
	if err != nil || hit {
		return
	}
	value, err = build()
	if err != nil {
		return
	}
	err = c.Store(name, fingerprint, value)
	return
}
