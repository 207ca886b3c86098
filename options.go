package voxline

import (
	"log/slog"
	"time"

	"github.com/voxline/voxline/blobstore"
	"github.com/voxline/voxline/resource"
)

type options struct {
	logger       *Logger
	metrics      MetricsCollector
	reporter     ErrorReporter
	store        blobstore.BlobStore
	rc           *resource.Controller
	memoryTarget int64
	idleInterval time.Duration
	spillDir     string
	spillMax     int64
}

// Option configures Timeline construction.
type Option func(*options)

// WithLogger configures structured logging. Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithErrorReporter configures the sink for background file errors.
// By default errors are condensed and logged.
func WithErrorReporter(r ErrorReporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

// WithBlobStore configures where volume files are read from. Defaults to
// the local file system with paths resolved as-is.
func WithBlobStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithResourceController attaches a resource controller. Background
// preloads then read through its IO limit and occupy one of its worker
// slots, and payload memory is tracked against it.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithMemoryTarget sets the initial byte budget for resident payloads.
// The budget can be changed later with SetMemoryTarget.
func WithMemoryTarget(bytes int64) Option {
	return func(o *options) {
		o.memoryTarget = bytes
	}
}

// WithIdleInterval sets how long the caching daemon sleeps when there is
// nothing useful to do. Defaults to 5 seconds.
func WithIdleInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleInterval = d
		}
	}
}

// WithSpillCache enables the on-disk spill cache for evicted payloads.
// dir is the cache directory; maxBytes bounds the compressed size on disk.
func WithSpillCache(dir string, maxBytes int64) Option {
	return func(o *options) {
		o.spillDir = dir
		o.spillMax = maxBytes
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:       NoopLogger(),
		metrics:      NoopMetricsCollector{},
		store:        blobstore.NewLocalStore(""),
		idleInterval: 5 * time.Second,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.reporter == nil {
		o.reporter = NewLogReporter(o.logger)
	}
	return o
}
