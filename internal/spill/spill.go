// Package spill implements a bounded on-disk cache for evicted volume
// payloads. A payload written here can be read back without touching the
// original source or its decode path; entries are lz4-framed since volume
// data compresses well and decompression is much cheaper than a gzip
// re-decode or an object-storage fetch.
package spill

import (
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/semaphore"
)

// Cache is a disk-backed LRU of spilled payloads. It maintains an in-memory
// index of the files on disk; sizes are accounted in compressed bytes.
type Cache struct {
	mu          sync.Mutex
	dir         string
	maxSize     int64
	currentSize int64

	items   map[string]*lruEntry
	lruHead *lruEntry
	lruTail *lruEntry

	// writeSem limits concurrent background spill writes.
	writeSem *semaphore.Weighted
	wg       sync.WaitGroup

	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry struct {
	key        string
	size       int64
	filePath   string
	next, prev *lruEntry
}

// New creates a spill cache in dir with the given compressed-size bound.
// Leftover files from a previous session are removed; the cache is
// session-scoped and spilled entries cannot be verified across restarts.
func New(dir string, maxBytes int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lz4" {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}

	return &Cache{
		dir:      dir,
		maxSize:  maxBytes,
		items:    make(map[string]*lruEntry),
		writeSem: semaphore.NewWeighted(4),
	}, nil
}

func (c *Cache) pathFor(key string) string {
	h := fnv.New64a()
	_, _ = io.WriteString(h, key)
	return filepath.Join(c.dir, strconv.FormatUint(h.Sum64(), 16)+".lz4")
}

// Get reads a spilled payload back. size must be the expected uncompressed
// length; a mismatch is treated as a miss and the entry is dropped.
func (c *Cache) Get(key string, size int64) ([]byte, bool) {
	c.mu.Lock()
	ent, ok := c.items[key]
	if ok {
		c.moveToFront(ent)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	f, err := os.Open(ent.filePath)
	if err != nil {
		c.drop(ent)
		c.misses.Add(1)
		return nil, false
	}
	defer f.Close()

	buf := make([]byte, size)
	zr := lz4.NewReader(f)
	if _, err := io.ReadFull(zr, buf); err != nil {
		c.drop(ent)
		c.misses.Add(1)
		return nil, false
	}
	// Anything beyond the expected length means the entry is not what the
	// caller thinks it is.
	if n, _ := zr.Read(make([]byte, 1)); n != 0 {
		c.drop(ent)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return buf, true
}

// Put spills a payload. The write happens on a bounded background
// goroutine; the caller must not modify data afterwards. Oversized or
// duplicate entries are ignored.
func (c *Cache) Put(key string, data []byte) {
	c.mu.Lock()
	if _, ok := c.items[key]; ok {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if !c.writeSem.TryAcquire(1) {
		// Spilling is best-effort; skip rather than queue up.
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.writeSem.Release(1)
		c.write(key, data)
	}()
}

func (c *Cache) write(key string, data []byte) {
	absPath := c.pathFor(key)

	tmp, err := os.CreateTemp(c.dir, "spill-*")
	if err != nil {
		return
	}
	tmpName := tmp.Name()
	defer func() {
		if _, err := os.Stat(tmpName); err == nil {
			_ = os.Remove(tmpName)
		}
	}()

	zw := lz4.NewWriter(tmp)
	if _, err := zw.Write(data); err != nil {
		_ = tmp.Close()
		return
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return
	}
	info, err := tmp.Stat()
	if err != nil {
		_ = tmp.Close()
		return
	}
	size := info.Size()
	if err := tmp.Close(); err != nil {
		return
	}

	if size > c.maxSize {
		return
	}
	if err := os.Rename(tmpName, absPath); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for c.currentSize+size > c.maxSize {
		if c.lruTail == nil {
			break
		}
		c.evictOne()
	}
	c.addToLRU(key, absPath, size)
}

// Close waits for all background writes to finish.
func (c *Cache) Close() error {
	c.wg.Wait()
	return nil
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the compressed bytes currently accounted on disk.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

func (c *Cache) drop(ent *lruEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[ent.key]; !ok {
		return
	}
	_ = os.Remove(ent.filePath)
	c.removeEntry(ent)
}

// Internal LRU helpers (must hold mu).

func (c *Cache) addToLRU(key, path string, size int64) {
	ent := &lruEntry{key: key, filePath: path, size: size}
	c.items[key] = ent
	c.currentSize += size

	if c.lruHead == nil {
		c.lruHead = ent
		c.lruTail = ent
		return
	}
	ent.next = c.lruHead
	c.lruHead.prev = ent
	c.lruHead = ent
}

func (c *Cache) moveToFront(ent *lruEntry) {
	if c.lruHead == ent {
		return
	}
	if ent.prev != nil {
		ent.prev.next = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	}
	if c.lruTail == ent {
		c.lruTail = ent.prev
	}
	ent.next = c.lruHead
	ent.prev = nil
	if c.lruHead != nil {
		c.lruHead.prev = ent
	}
	c.lruHead = ent
	if c.lruTail == nil {
		c.lruTail = ent
	}
}

func (c *Cache) removeEntry(ent *lruEntry) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		c.lruHead = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		c.lruTail = ent.prev
	}
	delete(c.items, ent.key)
	c.currentSize -= ent.size
}

func (c *Cache) evictOne() {
	if c.lruTail == nil {
		return
	}
	_ = os.Remove(c.lruTail.filePath)
	c.removeEntry(c.lruTail)
}
