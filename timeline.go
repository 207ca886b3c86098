package voxline

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/voxline/voxline/blobstore"
	"github.com/voxline/voxline/internal/spill"
	"github.com/voxline/voxline/resource"
	"github.com/voxline/voxline/volume"
)

// ProgressFunc is called during metadata ingestion with the number of
// headers read so far. Returning true cancels the remaining sources;
// already-processed volumes are kept.
type ProgressFunc func(done int) (cancel bool)

// Timeline arranges and manages the list of volumes in a 5D time series.
//
// It keeps track of the full volume list, the current volume, and the
// memory used by resident payloads. It loads volumes on demand, unloads the
// least recently used ones to stay under the memory target, preemptively
// caches volumes from a daemon goroutine, and computes the display labels.
//
// Typical use:
//
//	tl, _ := voxline.New(voxline.WithMemoryTarget(8 << 30))
//	tl.SetFilePaths(ctx, paths, nil)
//	tl.SetPriorityTasks(tasks)
//	tl.StartCaching()
//	defer tl.Close()
type Timeline struct {
	logger   *Logger
	metrics  MetricsCollector
	reporter ErrorReporter
	store    blobstore.BlobStore
	rc       *resource.Controller
	spill    *spill.Cache

	idleInterval time.Duration

	// memoryTarget can be changed at any time, but shrinking it takes
	// effect on the next load request.
	memoryTarget atomic.Int64

	// loadMu serializes all loading and unloading. Without it, concurrent
	// loads would corrupt the memory tally and could push residency past
	// the target.
	loadMu sync.Mutex
	// memoryUsed is the byte estimate of resident payloads. Mutated only
	// under loadMu; read freely.
	memoryUsed atomic.Int64
	// resident tracks the indices of loaded volumes. Guarded by loadMu.
	resident *roaring.Bitmap

	// volMu covers replacement of the volume list against concurrent reads
	// by the daemon and by navigation queries.
	volMu      sync.RWMutex
	volumes    []*volume.Volume
	index      int
	priorities []int
	// generation increments on every list replacement so in-flight daemon
	// iterations can detect that their snapshot went stale.
	generation uint64

	// available becomes true once volumes exist; it never reverts.
	available atomic.Bool

	tasks     []PriorityTask
	cacheOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Timeline. It returns an error only when an option needs
// setup that can fail (the spill cache directory).
func New(optFns ...Option) (*Timeline, error) {
	o := applyOptions(optFns)

	t := &Timeline{
		logger:       o.logger,
		metrics:      o.metrics,
		reporter:     o.reporter,
		store:        o.store,
		rc:           o.rc,
		idleInterval: o.idleInterval,
		resident:     roaring.New(),
	}
	t.memoryTarget.Store(o.memoryTarget)

	if o.spillDir != "" {
		sc, err := spill.New(o.spillDir, o.spillMax)
		if err != nil {
			return nil, err
		}
		t.spill = sc
	}

	return t, nil
}

// Len returns the number of volumes this timeline manages.
func (t *Timeline) Len() int {
	t.volMu.RLock()
	defer t.volMu.RUnlock()
	return len(t.volumes)
}

// Available reports whether volumes are ready for use. It becomes true on
// the first successful SetFilePaths and never reverts.
func (t *Timeline) Available() bool { return t.available.Load() }

// Index returns the current cursor position.
func (t *Timeline) Index() int {
	t.volMu.RLock()
	defer t.volMu.RUnlock()
	return t.index
}

// MemoryTarget returns the byte budget for resident payloads.
func (t *Timeline) MemoryTarget() int64 { return t.memoryTarget.Load() }

// SetMemoryTarget changes the byte budget. Shrinking it does not evict
// immediately; the next load request settles the difference.
func (t *Timeline) SetMemoryTarget(bytes int64) { t.memoryTarget.Store(bytes) }

// MemoryUsage returns the running byte estimate of resident payloads.
func (t *Timeline) MemoryUsage() int64 { return t.memoryUsed.Load() }

func (t *Timeline) mustBeAvailable() {
	if !t.available.Load() {
		panic("voxline: SetFilePaths must be called first")
	}
}

// SetFilePaths sets up the volumes given a list of source files, one per
// volume. This can be slow since potentially thousands of files are
// touched; progress (if non-nil) is invoked after each header read and may
// cancel the remainder.
//
// Sources whose metadata fails to parse are dropped and reported in the
// returned slice; partial success is normal. Survivors are sorted by
// (group index, cycle index) and labeled. Any previously managed volumes
// are unloaded and replaced wholesale.
func (t *Timeline) SetFilePaths(ctx context.Context, paths []string, progress ProgressFunc) []FileError {
	if len(paths) == 0 {
		panic("voxline: no file paths were passed")
	}

	vols := make([]*volume.Volume, len(paths))
	for i, p := range paths {
		vols[i] = volume.New(t.store, p, t.spill)
	}

	var fileErrors []FileError
	var badIndices []int
	for i, v := range vols {
		start := time.Now()
		err := v.ReadHeader(ctx)
		t.metrics.RecordHeaderRead(time.Since(start), err)
		t.logger.LogHeaderRead(i, v.Source(), err)
		if err != nil {
			fileErrors = append(fileErrors, FileError{Message: err.Error(), Path: v.Source()})
			badIndices = append(badIndices, i)
		}

		if progress != nil && progress(i+1) {
			// Canceled mid-batch; whatever has been read so far still
			// makes a usable timeline.
			vols = vols[:i+1]
			break
		}
		if ctx.Err() != nil {
			vols = vols[:i+1]
			break
		}
	}

	// Remove erroneous volumes, highest index first so the remaining
	// indices stay valid.
	for j := len(badIndices) - 1; j >= 0; j-- {
		i := badIndices[j]
		vols = append(vols[:i], vols[i+1:]...)
	}

	// Sort ascending by group index (the slow axis), then cycle index.
	sort.SliceStable(vols, func(a, b int) bool {
		ga, gb := vols[a].GroupIndex(), vols[b].GroupIndex()
		if ga != gb {
			return ga < gb
		}
		return vols[a].CycleIndex() < vols[b].CycleIndex()
	})

	// Accumulate cyclic time per group and label each volume.
	group := -1
	first := true
	timeSum := 0.0
	for i, v := range vols {
		if first || v.GroupIndex() != group {
			group = v.GroupIndex()
			first = false
			timeSum = 0
		}
		v.MakeLabel(timeSum, i, len(vols))
		timeSum += v.Period()
	}

	// The caching daemon may be running if this is a second call with a
	// new list, so the swap happens under both locks.
	t.loadMu.Lock()
	defer t.loadMu.Unlock()

	if len(vols) == 0 {
		t.logger.Info("all volumes were erroneous")
		return fileErrors
	}

	t.volMu.Lock()
	old := t.volumes
	t.volumes = vols
	t.index = 0
	t.priorities = cachePriorityOrder(len(vols), 0)
	t.generation++
	t.volMu.Unlock()

	// Unload the old list explicitly so per-volume locks settle before the
	// handles are dropped.
	for _, v := range old {
		v.Unload()
	}
	if t.rc != nil {
		t.rc.ReleaseMemory(t.memoryUsed.Load())
	}
	t.memoryUsed.Store(0)
	t.resident = roaring.New()
	t.available.Store(true)

	t.logger.Info("volumes are now available", "count", len(vols), "errors", len(fileErrors))
	return fileErrors
}

// Seek sets the current volume to the given index and recomputes the cache
// priorities, which depend on the cursor.
func (t *Timeline) Seek(index int) {
	t.mustBeAvailable()

	t.volMu.Lock()
	defer t.volMu.Unlock()
	if index < 0 || index >= len(t.volumes) {
		panic("voxline: seek index out of range")
	}
	t.index = index
	t.priorities = cachePriorityOrder(len(t.volumes), index)
	t.logger.Debug("sought", "index", index)
}

// Get returns the volume at index and touches its access time. When
// preload is true the payload is loaded synchronously first, evicting other
// volumes if the memory target requires it.
func (t *Timeline) Get(ctx context.Context, index int, preload bool) *volume.Volume {
	t.mustBeAvailable()

	if preload {
		t.loadVolume(ctx, index)
	}

	t.volMu.RLock()
	if index < 0 || index >= len(t.volumes) {
		t.volMu.RUnlock()
		panic("voxline: volume index out of range")
	}
	v := t.volumes[index]
	t.volMu.RUnlock()

	v.Touch()
	return v
}

// GetCurrent returns the volume at the cursor; see Get.
func (t *Timeline) GetCurrent(ctx context.Context, preload bool) *volume.Volume {
	return t.Get(ctx, t.Index(), preload)
}

// loadVolume loads the volume at index into memory, evicting least
// recently used residents first when the estimate would exceed the target.
// The requested volume itself is never an eviction candidate, and a single
// volume larger than the whole target is still loaded.
func (t *Timeline) loadVolume(ctx context.Context, index int) {
	t.loadMu.Lock()
	defer t.loadMu.Unlock()

	t.volMu.RLock()
	vols := t.volumes
	t.volMu.RUnlock()
	if index < 0 || index >= len(vols) {
		panic("voxline: volume index out of range")
	}

	v := vols[index]
	if v.IsLoaded() {
		return
	}

	t.memoryUsed.Add(v.EstimateMemory())

	for t.memoryUsed.Load() > t.memoryTarget.Load() {
		victim := t.oldestResident(vols, index)
		if victim < 0 {
			break
		}
		// Take the estimate before unloading; the handle needs its header
		// either way, but the tally must match what was added at load time.
		recovered := vols[victim].EstimateMemory()
		vols[victim].Unload()
		t.resident.Remove(uint32(victim))
		t.memoryUsed.Add(-recovered)
		if t.rc != nil {
			t.rc.ReleaseMemory(recovered)
		}
		t.metrics.RecordEviction(recovered)
		t.logger.LogEviction(victim, recovered, t.memoryUsed.Load(), t.memoryTarget.Load())
	}

	start := time.Now()
	err := v.Load(ctx)
	t.metrics.RecordLoad(time.Since(start), err)
	t.logger.LogLoad(index, v.EstimateMemory(), err)
	t.resident.Add(uint32(index))
	if t.rc != nil {
		t.rc.TryAcquireMemory(v.EstimateMemory())
	}
	if err != nil {
		t.reporter.FileErrors([]FileError{{Message: err.Error(), Path: v.Source()}})
	}
}

// oldestResident returns the loaded volume with the smallest access time,
// excluding the given index, or -1 when nothing is evictable.
func (t *Timeline) oldestResident(vols []*volume.Volume, exclude int) int {
	best := -1
	var bestTime time.Time
	it := t.resident.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		if i == exclude || i >= len(vols) || !vols[i].IsLoaded() {
			continue
		}
		at := vols[i].AccessTime()
		if best < 0 || at.Before(bestTime) {
			best = i
			bestTime = at
		}
	}
	return best
}

// UnloadVolume unloads the volume at index and settles the memory tally.
func (t *Timeline) UnloadVolume(index int) {
	t.mustBeAvailable()

	t.loadMu.Lock()
	defer t.loadMu.Unlock()

	t.volMu.RLock()
	vols := t.volumes
	t.volMu.RUnlock()
	if index < 0 || index >= len(vols) {
		panic("voxline: volume index out of range")
	}

	v := vols[index]
	if !v.IsLoaded() {
		return
	}
	v.Unload()
	t.resident.Remove(uint32(index))
	t.memoryUsed.Add(-v.EstimateMemory())
	if t.rc != nil {
		t.rc.ReleaseMemory(v.EstimateMemory())
	}
}

// Label returns the display label of the current volume: the timestamp,
// phase info, etc. associated with it.
func (t *Timeline) Label() string {
	t.mustBeAvailable()

	t.volMu.RLock()
	defer t.volMu.RUnlock()
	return t.volumes[t.index].Label()
}

// CheckMemory recomputes residency from scratch and returns the number of
// loaded volumes and their actual byte estimate. It exists to reconcile
// the running tally during debugging.
func (t *Timeline) CheckMemory() (loaded int, actualBytes int64) {
	if !t.available.Load() {
		return 0, 0
	}

	t.volMu.RLock()
	defer t.volMu.RUnlock()
	for _, v := range t.volumes {
		if v.IsLoaded() {
			loaded++
			actualBytes += v.EstimateMemory()
		}
	}
	t.logger.Debug("check memory",
		"loaded", loaded,
		"actual", actualBytes,
		"tallied", t.memoryUsed.Load(),
	)
	return loaded, actualBytes
}

// GroupLengths counts the volumes in each sequential group, e.g.
// [70, 70, 73, 66].
func (t *Timeline) GroupLengths() []int {
	t.volMu.RLock()
	defer t.volMu.RUnlock()

	var lengths []int
	if len(t.volumes) == 0 {
		return lengths
	}

	lastGroup := t.volumes[0].GroupIndex()
	run := 1
	for _, v := range t.volumes[1:] {
		if v.GroupIndex() != lastGroup {
			lengths = append(lengths, run)
			lastGroup = v.GroupIndex()
			run = 0
		}
		run++
	}
	return append(lengths, run)
}

// ExtremeBounds returns the bounds that encompass all volumes.
func (t *Timeline) ExtremeBounds() volume.Bounds {
	t.mustBeAvailable()

	t.volMu.RLock()
	defer t.volMu.RUnlock()
	b := t.volumes[0].Bounds()
	for _, v := range t.volumes[1:] {
		b = b.Union(v.Bounds())
	}
	return b
}

// MinScale returns the smallest voxel scale per axis across all volumes.
func (t *Timeline) MinScale() [3]float64 {
	t.mustBeAvailable()

	t.volMu.RLock()
	defer t.volMu.RUnlock()
	s := t.volumes[0].Scale()
	for _, v := range t.volumes[1:] {
		vs := v.Scale()
		for i := range s {
			if vs[i] < s[i] {
				s[i] = vs[i]
			}
		}
	}
	return s
}

// MaxVoxels returns the largest spatial sample count across all volumes.
func (t *Timeline) MaxVoxels() int64 {
	t.mustBeAvailable()

	t.volMu.RLock()
	defer t.volMu.RUnlock()
	var most int64
	for _, v := range t.volumes {
		if n := v.Voxels(); n > most {
			most = n
		}
	}
	return most
}

// ViewScale determines the window scale that fits the current volume.
func (t *Timeline) ViewScale() float64 {
	t.mustBeAvailable()

	t.volMu.RLock()
	defer t.volMu.RUnlock()
	return t.volumes[t.index].ViewScale()
}
