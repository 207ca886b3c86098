package resource

import (
	"context"
	"io"
)

// RateLimitedReader wraps an io.Reader with the controller's IO limit.
// Background payload reads go through this so a cache warm-up cannot
// saturate the disk under a foreground load.
type RateLimitedReader struct {
	r   io.Reader
	rc  *Controller
	ctx context.Context
}

// NewRateLimitedReader creates a new RateLimitedReader.
func NewRateLimitedReader(r io.Reader, rc *Controller, ctx context.Context) *RateLimitedReader {
	return &RateLimitedReader{
		r:   r,
		rc:  rc,
		ctx: ctx,
	}
}

// maxChunk bounds a single charged read. Payload reads hand in
// whole-volume buffers; charging those in one WaitN would overflow the
// limiter's burst.
const maxChunk = 256 << 10

func (r *RateLimitedReader) Read(p []byte) (n int, err error) {
	if len(p) > maxChunk {
		p = p[:maxChunk]
	}
	// The limiter charges for the buffer size rather than the bytes
	// actually read, which errs on the conservative side.
	if err := r.rc.AcquireIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
