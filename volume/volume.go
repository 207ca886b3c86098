// Package volume provides the handle type for one entry of a volumetric
// time series. A handle is cheap: it owns a source reference and parsed
// header metadata, and loads or drops its payload on demand. The timeline
// in the parent package decides when that happens.
package volume

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxline/voxline/blobstore"
	"github.com/voxline/voxline/internal/spill"
	"github.com/voxline/voxline/nrrd"
	"github.com/voxline/voxline/resource"
)

// headerBufSize is the buffered-reader size used for header parsing and
// attached payload reads.
const headerBufSize = 64 << 10

// Bounds is the axis-aligned extent of a volume in world coordinates.
type Bounds struct {
	XMin, XMax float64
	YMin, YMax float64
	ZMin, ZMax float64
}

// Union expands b to cover o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		XMin: min(b.XMin, o.XMin), XMax: max(b.XMax, o.XMax),
		YMin: min(b.YMin, o.YMin), YMax: max(b.YMax, o.YMax),
		ZMin: min(b.ZMin, o.ZMin), ZMax: max(b.ZMax, o.ZMax),
	}
}

// Volume is a handle to an individual volume file. The source reference is
// immutable; metadata becomes immutable once ReadHeader succeeds; the
// payload comes and goes under the owning timeline's direction.
//
// Load, Unload and Data are safe for concurrent use. The remaining
// accessors require ReadHeader to have succeeded and panic otherwise;
// calling them earlier is a programming error, not bad input data.
type Volume struct {
	store  blobstore.BlobStore
	source string
	spill  *spill.Cache // may be nil

	hdr   *nrrd.Header
	label string

	// mu prevents the payload from being unloaded mid-load and vice versa.
	mu          sync.Mutex
	data        []byte
	placeholder bool
	loaded      atomic.Bool

	// accessTime orders residents for eviction; unix nanoseconds.
	accessTime atomic.Int64
}

// New creates an empty handle for the given source. ReadHeader must be
// called before the handle is usable.
func New(store blobstore.BlobStore, source string, sp *spill.Cache) *Volume {
	return &Volume{store: store, source: source, spill: sp}
}

// Source returns the source reference this handle was created with.
func (v *Volume) Source() string { return v.source }

func (v *Volume) assertHeader() {
	if v.hdr == nil {
		panic("volume: ReadHeader must be called first")
	}
}

// ReadHeader opens the source and parses metadata only; no payload data is
// read and no file state is retained. On failure the handle should be
// discarded.
func (v *Volume) ReadHeader(ctx context.Context) error {
	blob, err := v.store.Open(ctx, v.source)
	if err != nil {
		return fmt.Errorf("failed to open the file: %w", err)
	}
	defer blob.Close()

	hdr, err := nrrd.ReadHeader(bufio.NewReaderSize(blob, headerBufSize))
	if err != nil {
		return err
	}
	v.hdr = hdr
	return nil
}

// GroupIndex returns the slow time-axis index.
func (v *Volume) GroupIndex() int { v.assertHeader(); return v.hdr.GroupIndex }

// CycleIndex returns the fast time-axis index within the group.
func (v *Volume) CycleIndex() int { v.assertHeader(); return v.hdr.CycleIndex }

// CycleLength returns the number of fast-axis entries in this group.
func (v *Volume) CycleLength() int { v.assertHeader(); return v.hdr.CycleLength }

// Period returns the duration of one fast-axis step.
func (v *Volume) Period() float64 { v.assertHeader(); return v.hdr.Period }

// PeriodUnit returns the unit Period is expressed in.
func (v *Volume) PeriodUnit() string { v.assertHeader(); return v.hdr.PeriodUnit }

// Timestamp returns the optional acquisition timestamp.
func (v *Volume) Timestamp() string { v.assertHeader(); return v.hdr.Timestamp }

// Phase returns the fraction of the cycle this entry represents, in [0, 1).
func (v *Volume) Phase() float64 {
	v.assertHeader()
	return float64(v.hdr.CycleIndex) / float64(v.hdr.CycleLength)
}

// EstimateMemory returns the byte cost of the loaded payload.
func (v *Volume) EstimateMemory() int64 {
	v.assertHeader()
	return v.hdr.EstimateBytes()
}

// Channels returns the number of color channels.
func (v *Volume) Channels() int { v.assertHeader(); return v.hdr.Channels() }

// ScalarRange returns the lowest and highest possible sample values for
// this volume's pixel type.
func (v *Volume) ScalarRange() (float64, float64) {
	v.assertHeader()
	return v.hdr.Type.ScalarRange()
}

// Scale returns the voxel dimensions per spatial axis.
func (v *Volume) Scale() [3]float64 { v.assertHeader(); return v.hdr.Scale }

// Voxels returns the spatial sample count.
func (v *Volume) Voxels() int64 { v.assertHeader(); return v.hdr.Voxels() }

// Bounds returns the extents of the volume in world coordinates.
func (v *Volume) Bounds() Bounds {
	v.assertHeader()
	h := v.hdr
	var b Bounds
	b.XMin = h.Origin[0]
	b.YMin = h.Origin[1]
	b.ZMin = h.Origin[2]
	b.XMax = h.Origin[0] + h.Scale[0]*float64(h.Sizes[1])
	b.YMax = h.Origin[1] + h.Scale[1]*float64(h.Sizes[2])
	b.ZMax = h.Origin[2] + h.Scale[2]*float64(h.Sizes[3])
	return b
}

// ViewScale determines the window scale that will fit this volume; the
// value is half the viewport height in world units.
func (v *Volume) ViewScale() float64 {
	v.assertHeader()
	h := v.hdr
	longest := 0.0
	for i := 0; i < 3; i++ {
		if ext := h.Scale[i] * float64(h.Sizes[i+1]); ext > longest {
			longest = ext
		}
	}
	return 1.5 * longest / 2
}

// IsLoaded reports whether the payload is resident.
func (v *Volume) IsLoaded() bool { return v.loaded.Load() }

// AccessTime returns when the payload was last obtained for active use.
func (v *Volume) AccessTime() time.Time {
	return time.Unix(0, v.accessTime.Load())
}

// Touch records that a consumer obtained the payload for active use.
func (v *Volume) Touch() {
	v.accessTime.Store(time.Now().UnixNano())
}

// Load reads the payload into memory. It is idempotent and returns nil
// immediately when already resident.
//
// On a read failure the payload is substituted with a zero-filled buffer of
// the expected shape so consumers never observe a missing payload; the
// handle still counts as loaded and the error is returned.
func (v *Volume) Load(ctx context.Context) error {
	return v.load(ctx, nil)
}

// LoadLimited behaves like Load but reads through the controller's IO
// limit. The caching daemon uses this so warm-up reads yield to foreground
// disk traffic.
func (v *Volume) LoadLimited(ctx context.Context, rc *resource.Controller) error {
	return v.load(ctx, rc)
}

func (v *Volume) load(ctx context.Context, rc *resource.Controller) error {
	v.assertHeader()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.loaded.Load() {
		return nil
	}

	if v.spill != nil {
		if data, ok := v.spill.Get(v.source, v.hdr.EstimateBytes()); ok {
			v.data = data
			v.placeholder = false
			v.loaded.Store(true)
			return nil
		}
	}

	data, err := v.read(ctx, rc)
	if err != nil {
		// Never leave a consumer without a payload: install zeros of the
		// expected shape and surface the error.
		v.data = make([]byte, v.hdr.EstimateBytes())
		v.placeholder = true
		v.loaded.Store(true)
		return err
	}

	v.data = data
	v.placeholder = false
	v.loaded.Store(true)
	return nil
}

func (v *Volume) read(ctx context.Context, rc *resource.Controller) ([]byte, error) {
	var src io.Reader
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	if dl, ok := v.store.(blobstore.Downloader); ok && rc == nil {
		raw, err := dl.Download(ctx, v.source)
		if err != nil {
			return nil, fmt.Errorf("failed to open the file: %w", err)
		}
		src = bytes.NewReader(raw)
	} else {
		blob, err := v.store.Open(ctx, v.source)
		if err != nil {
			return nil, fmt.Errorf("failed to open the file: %w", err)
		}
		closers = append(closers, blob)
		src = blob
	}

	br := bufio.NewReaderSize(src, headerBufSize)
	hdr, err := nrrd.ReadHeader(br)
	if err != nil {
		return nil, err
	}
	// A different file may have replaced the one whose header was read, but
	// at least the payload must still have the expected shape.
	if !hdr.SameShape(v.hdr) {
		return nil, fmt.Errorf("file has changed since the header was initially read")
	}

	var payload io.Reader = br
	if hdr.DataFile != "" {
		name := v.siblingName(hdr.DataFile)
		blob, err := v.store.Open(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to open the file: %w", err)
		}
		closers = append(closers, blob)
		payload = bufio.NewReaderSize(blob, headerBufSize)
	}
	if rc != nil {
		payload = resource.NewRateLimitedReader(payload, rc, ctx)
	}

	return nrrd.ReadPayload(hdr, payload)
}

// siblingName resolves a detached data file reference relative to the
// header's location.
func (v *Volume) siblingName(dataFile string) string {
	if path.IsAbs(dataFile) || filepath.IsAbs(dataFile) {
		return dataFile
	}
	return path.Join(path.Dir(filepath.ToSlash(v.source)), dataFile)
}

// Unload frees the payload. Idempotent; safe on a never-loaded handle.
// Real payloads are offered to the spill cache on the way out so a re-load
// can skip the decode path; placeholders are not spilled.
func (v *Volume) Unload() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.loaded.Load() {
		return
	}
	if v.spill != nil && !v.placeholder {
		v.spill.Put(v.source, v.data)
	}
	v.data = nil
	v.placeholder = false
	v.loaded.Store(false)
}

// Data returns the payload, loading it first if needed, and touches the
// access time. Like Load, a read failure still yields a usable zero-filled
// buffer alongside the error.
//
// A load triggered here happens outside any timeline's memory accounting:
// the payload becomes resident but is not charged against the memory
// target and is invisible to the eviction scan. Callers that want the
// budget to hold should obtain residency through Timeline.Get with
// preload set and use Data only on the returned handle; CheckMemory
// reports any drift a direct load introduced.
func (v *Volume) Data(ctx context.Context) ([]byte, error) {
	v.Touch()
	err := v.Load(ctx)
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.data, err
}

// IsPlaceholder reports whether the resident payload is a zero-filled
// substitute from a failed load.
func (v *Volume) IsPlaceholder() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.placeholder
}

// Label returns the display label computed by MakeLabel.
func (v *Volume) Label() string { return v.label }

// MakeLabel stores the display label for the timeline info tag. timeSum is
// the accumulated cyclic time within the group, index the position in the
// timeline and total the timeline length.
func (v *Volume) MakeLabel(timeSum float64, index, total int) {
	v.assertHeader()

	t2 := fmt.Sprintf("%d", v.hdr.GroupIndex)
	if v.hdr.Timestamp != "" {
		t2 += " (" + v.hdr.Timestamp + ")"
	}
	v.label = fmt.Sprintf("φ = %.1f%%, t1 = %d/%d (%.3f %s), t2 = %s, i = %d/%d",
		v.Phase()*100,
		v.hdr.CycleIndex, v.hdr.CycleLength,
		timeSum, v.hdr.PeriodUnit,
		t2,
		index+1, total,
	)
}
