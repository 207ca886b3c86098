package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_MemoryTrackingOnly(t *testing.T) {
	c := NewController(Config{})

	assert.True(t, c.TryAcquireMemory(100))
	assert.True(t, c.TryAcquireMemory(1<<40), "no hard limit means any size fits")
	assert.Equal(t, int64(100+(1<<40)), c.MemoryUsage())

	c.ReleaseMemory(100)
	assert.Equal(t, int64(1<<40), c.MemoryUsage())
}

func TestController_MemoryHardLimit(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	assert.True(t, c.TryAcquireMemory(60))
	assert.False(t, c.TryAcquireMemory(50), "would exceed the hard limit")
	assert.True(t, c.TryAcquireMemory(40))
	assert.Equal(t, int64(100), c.MemoryUsage())

	c.ReleaseMemory(100)
	assert.True(t, c.TryAcquireMemory(100))
}

func TestController_ReleaseClampsToTracked(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.True(t, c.TryAcquireMemory(40))
	// Advisory callers may release more than they acquired; the excess is
	// dropped instead of underflowing the semaphore.
	c.ReleaseMemory(1000)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.True(t, c.TryAcquireMemory(100))
}

func TestController_AcquireMemoryBlocking(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})
	require.True(t, c.TryAcquireMemory(100))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.AcquireMemory(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestController_BackgroundSlots(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 2})

	assert.True(t, c.TryAcquireBackground())
	assert.True(t, c.TryAcquireBackground())
	assert.False(t, c.TryAcquireBackground())

	c.ReleaseBackground()
	assert.True(t, c.TryAcquireBackground())
}

func TestController_BackgroundDefaultsToOne(t *testing.T) {
	c := NewController(Config{})
	assert.True(t, c.TryAcquireBackground())
	assert.False(t, c.TryAcquireBackground())
}

func TestController_NilReceiver(t *testing.T) {
	var c *Controller

	assert.True(t, c.TryAcquireMemory(100))
	assert.NoError(t, c.AcquireMemory(context.Background(), 100))
	c.ReleaseMemory(100)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()
	assert.NoError(t, c.AcquireBackground(context.Background()))
	assert.NoError(t, c.AcquireIO(context.Background(), 1<<20))
}

func TestController_AcquireIOUnlimited(t *testing.T) {
	c := NewController(Config{})
	assert.NoError(t, c.AcquireIO(context.Background(), 1<<30))
}

func TestController_AcquireIOClampsToBurst(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1024})
	// A request larger than the burst must not error out; it is clamped.
	assert.NoError(t, c.AcquireIO(context.Background(), 1<<20))
}

func TestRateLimitedReader_PassesDataThrough(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	src := make([]byte, 300<<10) // forces chunking past maxChunk
	for i := range src {
		src[i] = byte(i)
	}

	r := NewRateLimitedReader(bytes.NewReader(src), c, context.Background())
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestRateLimitedReader_ContextCancel(t *testing.T) {
	// A tiny limit forces the reader to wait, so cancellation surfaces.
	c := NewController(Config{IOLimitBytesPerSec: 1})
	require.NoError(t, c.AcquireIO(context.Background(), 1)) // drain the burst

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r := NewRateLimitedReader(bytes.NewReader(make([]byte, 10)), c, ctx)
	_, err := io.ReadAll(r)
	assert.Error(t, err)
}
