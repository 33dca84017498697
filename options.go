package pointcloud

import (
	"log/slog"

	"github.com/gogpu/pointcloud/internal/parallel"
	"github.com/gogpu/pointcloud/internal/staging"
	"github.com/gogpu/pointcloud/memory"
)

// Option configures a Loader during creation.
//
// Example:
//
//	l, err := pointcloud.NewLoader(dev,
//	    pointcloud.WithWorkers(8),
//	    pointcloud.WithFormat(pointcloud.FormatPositionColor),
//	)
type Option func(*options)

// options holds optional configuration for Loader creation.
type options struct {
	workers         int
	reserve         int
	stagingCapacity uint64
	format          Format
	heapSizes       memory.Sizes
	alignment       uint64
	rawCache        bool
	logger          *slog.Logger
}

// defaultOptions returns the default loader options.
func defaultOptions() options {
	return options{
		workers:         0, // GOMAXPROCS - reserve
		reserve:         parallel.DefaultReserve,
		stagingCapacity: staging.DefaultCapacity,
		format:          FormatPosition,
		heapSizes:       memory.DefaultSizes(),
		alignment:       memory.DefaultAlignment,
	}
}

// WithWorkers sets the number of parse workers. Zero or negative selects
// GOMAXPROCS minus the reserve, at least one.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithReservedWorkers sets how many hardware threads are left for the
// host application when the worker count is derived automatically.
// The default is 2.
func WithReservedWorkers(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.reserve = n
		}
	}
}

// WithStagingCapacity sets the size of each worker's staging region.
// A worker whose range produces more packed bytes than this fails the load.
// The default is 64 MiB.
func WithStagingCapacity(bytes uint64) Option {
	return func(o *options) {
		if bytes > 0 {
			o.stagingCapacity = bytes
		}
	}
}

// WithFormat sets the packed record layout.
func WithFormat(f Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithHeapSizes sets the capacity reserved for each heap category.
func WithHeapSizes(s memory.Sizes) Option {
	return func(o *options) {
		o.heapSizes = s
	}
}

// WithAlignment sets the placement alignment for all heaps.
// The default is 64 KiB.
func WithAlignment(a uint64) Option {
	return func(o *options) {
		if a > 0 {
			o.alignment = a
		}
	}
}

// WithRawCache enables reading and writing the <path>.data record cache.
func WithRawCache(enabled bool) Option {
	return func(o *options) {
		o.rawCache = enabled
	}
}

// WithLogger sets the logger for this loader, overriding the package-wide
// logger installed with SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
