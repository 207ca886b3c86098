package voxline

import (
	"context"
	"time"
)

// PriorityTask is an external long-running operation the caching daemon
// yields to. While any registered task reports itself active, the daemon
// holds off loading so it does not compete for disk and CPU.
type PriorityTask interface {
	Active() bool
}

// taskPollInterval is how often the daemon re-checks an active priority
// task.
const taskPollInterval = 50 * time.Millisecond

// SetPriorityTasks assigns the tasks the caching daemon defers to.
// Call before StartCaching; the slice is not copied.
func (t *Timeline) SetPriorityTasks(tasks []PriorityTask) {
	t.tasks = tasks
}

// StartCaching spawns the volume caching daemon. The daemon preemptively
// loads volumes into memory by cache priority but never frees memory;
// freeing is the loader's job. Call SetPriorityTasks first. A second call
// returns ErrCachingStarted.
//
// The daemon runs until Close.
func (t *Timeline) StartCaching() error {
	started := false
	t.cacheOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		t.done = make(chan struct{})
		go t.runCache(ctx)
		started = true
	})
	if !started {
		return ErrCachingStarted
	}
	return nil
}

// Close stops the caching daemon and flushes the spill cache. Safe to call
// whether or not StartCaching ran.
func (t *Timeline) Close() error {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	if t.spill != nil {
		return t.spill.Close()
	}
	return nil
}

// runCache loads volumes in the background, highest priority first, one
// per iteration so the load lock is never held across a full scan.
func (t *Timeline) runCache(ctx context.Context) {
	defer close(t.done)

	if t.rc != nil {
		if err := t.rc.AcquireBackground(ctx); err != nil {
			return
		}
		defer t.rc.ReleaseBackground()
	}

	t.logger.Info("cache daemon started")
	for {
		if !t.waitForPriorityTasks(ctx) {
			return
		}

		if !t.available.Load() {
			// No volumes have been added, so there is nothing to do yet.
			if !t.idle(ctx) {
				return
			}
			continue
		}

		if used, target := t.memoryUsed.Load(), t.memoryTarget.Load(); used >= target {
			t.logger.Debug("memory full", "used", used, "target", target)
			if !t.idle(ctx) {
				return
			}
			continue
		}

		if !t.cacheOne(ctx) {
			// No volume worth loading. Check again later.
			if !t.idle(ctx) {
				return
			}
		}
	}
}

// cacheOne loads the highest-priority volume that is not yet resident.
// It reports whether it found one. The lock is held only around the single
// load; if the volume list was replaced after the priority snapshot was
// taken, the stale step is abandoned.
func (t *Timeline) cacheOne(ctx context.Context) bool {
	t.volMu.RLock()
	vols := t.volumes
	order := append([]int(nil), t.priorities...)
	gen := t.generation
	t.volMu.RUnlock()

	for _, i := range order {
		v := vols[i]
		if v.IsLoaded() {
			continue
		}

		t.loadMu.Lock()
		t.volMu.RLock()
		stale := t.generation != gen
		t.volMu.RUnlock()
		if stale {
			t.loadMu.Unlock()
			return true // snapshot went stale; rescan next iteration
		}
		if v.IsLoaded() {
			t.loadMu.Unlock()
			continue
		}

		start := time.Now()
		err := v.LoadLimited(ctx, t.rc)
		t.memoryUsed.Add(v.EstimateMemory())
		t.resident.Add(uint32(i))
		if t.rc != nil {
			t.rc.TryAcquireMemory(v.EstimateMemory())
		}
		t.loadMu.Unlock()

		t.metrics.RecordPreload(time.Since(start), err)
		t.logger.LogPreload(i, v.EstimateMemory(), t.memoryUsed.Load(), t.memoryTarget.Load(), err)
		if err != nil {
			t.reporter.FileErrors([]FileError{{Message: err.Error(), Path: v.Source()}})
		}
		return true
	}
	return false
}

// waitForPriorityTasks blocks while any registered priority task is
// active. Returns false when ctx is canceled. The check is not
// race-proof; the worst case is a momentary lag in the loader.
func (t *Timeline) waitForPriorityTasks(ctx context.Context) bool {
	for _, task := range t.tasks {
		for task.Active() {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(taskPollInterval):
			}
		}
	}
	return ctx.Err() == nil
}

// idle sleeps for the standard idle interval. Returns false when ctx is
// canceled.
func (t *Timeline) idle(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(t.idleInterval):
		return true
	}
}
