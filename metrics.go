package voxline

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordHeaderRead is called after each metadata read during ingestion.
	RecordHeaderRead(duration time.Duration, err error)

	// RecordLoad is called after each foreground volume load.
	RecordLoad(duration time.Duration, err error)

	// RecordPreload is called after each background cache load.
	RecordPreload(duration time.Duration, err error)

	// RecordEviction is called for each evicted volume with the bytes
	// recovered.
	RecordEviction(bytes int64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordHeaderRead(time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(time.Duration, error)       {}
func (NoopMetricsCollector) RecordPreload(time.Duration, error)    {}
func (NoopMetricsCollector) RecordEviction(int64)                  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	HeaderReadCount  atomic.Int64
	HeaderReadErrors atomic.Int64
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	LoadTotalNanos   atomic.Int64
	PreloadCount     atomic.Int64
	PreloadErrors    atomic.Int64
	EvictionCount    atomic.Int64
	EvictionBytes    atomic.Int64
}

// RecordHeaderRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHeaderRead(duration time.Duration, err error) {
	b.HeaderReadCount.Add(1)
	if err != nil {
		b.HeaderReadErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordPreload implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPreload(duration time.Duration, err error) {
	b.PreloadCount.Add(1)
	if err != nil {
		b.PreloadErrors.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(bytes int64) {
	b.EvictionCount.Add(1)
	b.EvictionBytes.Add(bytes)
}

// BasicMetricsStats is a snapshot of collected metrics.
type BasicMetricsStats struct {
	HeaderReadCount  int64
	HeaderReadErrors int64
	LoadCount        int64
	LoadErrors       int64
	LoadAvgNanos     int64
	PreloadCount     int64
	PreloadErrors    int64
	EvictionCount    int64
	EvictionBytes    int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		HeaderReadCount:  b.HeaderReadCount.Load(),
		HeaderReadErrors: b.HeaderReadErrors.Load(),
		LoadCount:        b.LoadCount.Load(),
		LoadErrors:       b.LoadErrors.Load(),
		PreloadCount:     b.PreloadCount.Load(),
		PreloadErrors:    b.PreloadErrors.Load(),
		EvictionCount:    b.EvictionCount.Load(),
		EvictionBytes:    b.EvictionBytes.Load(),
	}
	if s.LoadCount > 0 {
		s.LoadAvgNanos = b.LoadTotalNanos.Load() / s.LoadCount
	}
	return s
}
