// Package voxline implements a memory-budgeted cache and navigation engine
// for 5-dimensional volumetric time series: 3D scans repeated across a fast
// cycle axis and a slow acquisition-group axis.
//
// Individual volumes run to hundreds of megabytes or more, so a series
// never fits in memory at once. The Timeline owns the ordered collection of
// volume handles, decides which payloads are resident, evicts the least
// recently used ones under memory pressure, and warms the cache from a
// background daemon that always works on the volume most likely to be
// viewed next.
//
// # Quick start
//
//	tl, err := voxline.New(
//	    voxline.WithMemoryTarget(8 << 30),
//	    voxline.WithLogLevel(slog.LevelInfo),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tl.Close()
//
//	fileErrors := tl.SetFilePaths(ctx, paths, func(done int) bool {
//	    updateProgressBar(done)
//	    return false
//	})
//	showErrors(fileErrors)
//
//	tl.SetPriorityTasks(nil)
//	tl.StartCaching()
//
//	tl.Seek(0)
//	vol := tl.GetCurrent(ctx, true)
//	data, err := vol.Data(ctx)
//
// # Preload priorities
//
// On every Seek the timeline ranks all volumes by wrapping distance from
// the cursor, weighting the forward direction four to one because playback
// moves forward. The daemon loads one not-yet-resident volume per
// iteration in that order, defers to registered priority tasks, and never
// evicts; eviction belongs exclusively to the synchronous load path.
//
// # Group navigation
//
// PrevGroupIndex and NextGroupIndex jump between acquisition groups while
// preserving the cyclic phase: within the adjacent group they pick the
// member whose phase is closest to the current one under circular
// distance, so stepping through the groups of a beating-heart series stays
// on the same beat phase.
//
// # Storage
//
// Volume files are NRRD (see the nrrd subpackage) and can live on the
// local disk or in object storage (see blobstore). An optional lz4 spill
// cache keeps evicted payloads on local disk so re-loads skip the decode
// path, and a resource.Controller can throttle background IO.
package voxline
