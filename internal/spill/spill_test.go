package spill

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// payload returns n pseudo-random bytes; random data does not compress,
// which keeps on-disk sizes predictable for the bound tests.
func payload(n int, seed int64) []byte {
	p := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(p)
	return p
}

// put spills an entry and waits for the background write.
func put(t *testing.T, c *Cache, key string, data []byte) {
	t.Helper()
	c.Put(key, data)
	require.NoError(t, c.Close())
}

func TestCache_RoundTrip(t *testing.T) {
	c, err := New(t.TempDir(), 1<<20)
	require.NoError(t, err)

	data := payload(4096, 3)
	put(t, c, "vol-a", data)

	got, ok := c.Get("vol-a", int64(len(data)))
	require.True(t, ok)
	assert.Equal(t, data, got)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(0), misses)
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c, err := New(t.TempDir(), 1<<20)
	require.NoError(t, err)

	_, ok := c.Get("never-spilled", 64)
	assert.False(t, ok)

	_, misses := c.Stats()
	assert.Equal(t, int64(1), misses)
}

func TestCache_WrongSizeIsAMiss(t *testing.T) {
	c, err := New(t.TempDir(), 1<<20)
	require.NoError(t, err)

	put(t, c, "vol-a", payload(4096, 1))

	// Asking for a different uncompressed length drops the entry.
	_, ok := c.Get("vol-a", 100)
	assert.False(t, ok)

	// The entry is gone for good, even at the right size.
	_, ok = c.Get("vol-a", 4096)
	assert.False(t, ok)
}

func TestCache_EvictsUnderPressure(t *testing.T) {
	// Incompressible-ish entries of ~4KB against a tight bound: adding a
	// third entry must push the least recently used one out.
	c, err := New(t.TempDir(), 9<<10)
	require.NoError(t, err)

	a, b, d := payload(4096, 1), payload(4096, 2), payload(4096, 3)
	put(t, c, "a", a)
	put(t, c, "b", b)

	// Touch "a" so "b" is the LRU entry.
	_, ok := c.Get("a", 4096)
	require.True(t, ok)

	put(t, c, "d", d)

	_, ok = c.Get("b", 4096)
	assert.False(t, ok, "LRU entry must be evicted")
	got, ok := c.Get("a", 4096)
	require.True(t, ok)
	assert.Equal(t, a, got)
	got, ok = c.Get("d", 4096)
	require.True(t, ok)
	assert.Equal(t, d, got)
}

func TestCache_OversizedEntrySkipped(t *testing.T) {
	c, err := New(t.TempDir(), 16)
	require.NoError(t, err)

	put(t, c, "big", payload(1<<20, 9))
	_, ok := c.Get("big", 1<<20)
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Size())
}

func TestCache_DuplicatePutIgnored(t *testing.T) {
	c, err := New(t.TempDir(), 1<<20)
	require.NoError(t, err)

	data := payload(1024, 5)
	put(t, c, "k", data)
	size := c.Size()

	put(t, c, "k", payload(1024, 6))
	assert.Equal(t, size, c.Size())

	got, ok := c.Get("k", 1024)
	require.True(t, ok)
	assert.Equal(t, data, got, "the first spill wins")
}

func TestNew_WipesLeftoverEntries(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "deadbeef.lz4")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))
	unrelated := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))

	_, err := New(dir, 1<<20)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale spill files are removed")
	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
}
