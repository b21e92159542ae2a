package storage

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cyclopcam/kittimot/pkg/kibi"
	"github.com/cyclopcam/logs"
)

// StorageCache keeps local copies of files read from an upstream store,
// so that repeated reads of the same artifact (eg a ground truth cache in GCS)
// don't go over the network every time.
// Writes and deletes go straight to the upstream store, and drop the local copy.
type StorageCache struct {
	log       logs.Log
	upstream  Storage
	cacheRoot string
	maxBytes  int64

	itemsLock sync.Mutex
	bytesUsed int64
	items     map[string]*cacheItem
	tick      int64
}

type cacheItem struct {
	filename   string
	size       int64
	modifiedAt time.Time
	lock       int
	lastUsed   int64
}

type cacheItemReader struct {
	store *StorageCache
	item  *cacheItem
	f     *os.File
}

func (r *cacheItemReader) Read(p []byte) (n int, err error) {
	return r.f.Read(p)
}

func (r *cacheItemReader) Close() error {
	r.store.itemsLock.Lock()
	r.item.lock--
	defer r.store.itemsLock.Unlock()
	return r.f.Close()
}

// NewStorageCache wipes cacheRoot, and uses it to hold up to maxBytes of upstream files.
// Files that are open for reading are never evicted, so the limit can be exceeded temporarily.
func NewStorageCache(log logs.Log, upstream Storage, cacheRoot string, maxBytes int64) (*StorageCache, error) {
	os.RemoveAll(cacheRoot)
	if err := os.MkdirAll(cacheRoot, 0755); err != nil {
		return nil, err
	}
	log.Infof("Caching up to %v of remote files in %v", kibi.FormatBytes(maxBytes), cacheRoot)
	c := &StorageCache{
		log:       log,
		upstream:  upstream,
		cacheRoot: cacheRoot,
		maxBytes:  maxBytes,
		items:     map[string]*cacheItem{},
	}
	return c, nil
}

func (s *StorageCache) WriteFile(name string) (io.WriteCloser, error) {
	s.itemsLock.Lock()
	s.drop(name)
	s.itemsLock.Unlock()
	return s.upstream.WriteFile(name)
}

func (s *StorageCache) DeleteFile(name string) error {
	s.itemsLock.Lock()
	s.drop(name)
	s.itemsLock.Unlock()
	return s.upstream.DeleteFile(name)
}

func (s *StorageCache) ReadFile(name string) (*File, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	s.itemsLock.Lock()
	defer s.itemsLock.Unlock()
	item := s.items[name]
	if item == nil {
		s.purgeStale()
		var err error
		if item, err = s.acquire(name); err != nil {
			return nil, err
		}
	} else {
		s.log.Debugf("Reading %v from local cache", name)
	}
	f, err := os.Open(s.localPath(name))
	if err != nil {
		return nil, err
	}
	item.lock++
	item.lastUsed = s.tick
	s.tick++
	return &File{
		Reader: &cacheItemReader{
			store: s,
			item:  item,
			f:     f,
		},
		ModifiedAt: item.modifiedAt,
		Size:       item.size,
	}, nil
}

// BytesUsed is the total size of the local copies
func (s *StorageCache) BytesUsed() int64 {
	s.itemsLock.Lock()
	defer s.itemsLock.Unlock()
	return s.bytesUsed
}

func (s *StorageCache) localPath(name string) string {
	return filepath.Join(s.cacheRoot, name)
}

func (s *StorageCache) acquire(name string) (*cacheItem, error) {
	src, err := s.upstream.ReadFile(name)
	if err != nil {
		return nil, err
	}
	defer src.Reader.Close()
	ondiskFilename := s.localPath(name)
	if err := os.MkdirAll(filepath.Dir(ondiskFilename), 0755); err != nil {
		return nil, err
	}
	dst, err := os.Create(ondiskFilename)
	if err != nil {
		return nil, err
	}
	size, err := io.Copy(dst, src.Reader)
	if err == nil {
		err = dst.Close()
	} else {
		dst.Close()
	}
	if err != nil {
		os.Remove(dst.Name())
		return nil, err
	}
	item := &cacheItem{
		filename:   name,
		size:       size,
		modifiedAt: src.ModifiedAt,
		lastUsed:   s.tick,
	}
	s.bytesUsed += size
	s.items[name] = item
	return item, nil
}

// drop must be called with itemsLock held
func (s *StorageCache) drop(name string) {
	item := s.items[name]
	if item == nil {
		return
	}
	// Open readers keep their handle on the old file
	s.bytesUsed -= item.size
	delete(s.items, name)
	os.Remove(s.localPath(name))
}

func (s *StorageCache) purgeStale() {
	if s.bytesUsed > s.maxBytes {
		unused := []*cacheItem{}
		for _, item := range s.items {
			if item.lock == 0 {
				unused = append(unused, item)
			}
		}
		sort.Slice(unused, func(i, j int) bool {
			return unused[i].lastUsed < unused[j].lastUsed
		})
		for _, item := range unused {
			if s.bytesUsed <= s.maxBytes {
				break
			}
			s.log.Debugf("Evicting %v (%v) from local cache", item.filename, kibi.FormatBytes(item.size))
			s.drop(item.filename)
		}
	}
}
