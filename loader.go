package pointcloud

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/pointcloud/device"
	"github.com/gogpu/pointcloud/internal/ingest"
	"github.com/gogpu/pointcloud/internal/parallel"
	"github.com/gogpu/pointcloud/internal/partition"
	"github.com/gogpu/pointcloud/internal/source"
	"github.com/gogpu/pointcloud/internal/staging"
	"github.com/gogpu/pointcloud/internal/upload"
	"github.com/gogpu/pointcloud/memory"
)

// cacheCompression is the codec raw caches are written with.
const cacheCompression = source.CompressionLZ4

// Loader loads point clouds onto one device.
//
// A Loader owns the heaps, the staging regions and the worker pool. They are
// created once by NewLoader and reused by every Load. Loads are serialized:
// a Loader runs one load at a time, each using every worker.
type Loader struct {
	mu     sync.Mutex
	closed bool

	dev     device.Device
	opts    options
	log     *slog.Logger
	printer *message.Printer

	mem     *memory.Manager
	regions *staging.Pool
	pool    *parallel.WorkerPool
	coord   *ingest.Coordinator
}

// NewLoader reserves heaps on dev and places one staging region per worker.
//
// When the worker count is derived automatically it is lowered, with a
// warning, to the number of staging regions the upload heap can hold. An
// explicit WithWorkers count that does not fit is an error.
func NewLoader(dev device.Device, opts ...Option) (*Loader, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if !o.format.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, uint32(o.format))
	}

	log := o.logger
	if log == nil {
		log = Logger()
	}

	workers := o.workers
	if workers <= 0 {
		workers = parallel.DefaultWorkers(o.reserve)
		fit := o.heapSizes.UploadBuffer / memory.Align(o.stagingCapacity, o.alignment)
		if fit > 0 && uint64(workers) > fit {
			log.Warn("pointcloud: fewer workers than threads, upload heap is full",
				"workers", fit,
				"wanted", workers,
				"upload_heap", humanize.IBytes(o.heapSizes.UploadBuffer),
				"staging", humanize.IBytes(o.stagingCapacity))
			workers = int(fit)
		}
	}

	mem, err := memory.NewManager(dev, o.heapSizes, o.alignment)
	if err != nil {
		return nil, fmt.Errorf("pointcloud: %w", err)
	}
	regions, err := staging.NewPool(mem, workers, o.stagingCapacity)
	if err != nil {
		return nil, fmt.Errorf("pointcloud: %w", err)
	}

	pool := parallel.NewWorkerPool(workers)
	log.Debug("pointcloud: loader ready",
		"workers", workers,
		"format", o.format.String(),
		"staging", humanize.IBytes(o.stagingCapacity))

	return &Loader{
		dev:     dev,
		opts:    o,
		log:     log,
		printer: message.NewPrinter(language.English),
		mem:     mem,
		regions: regions,
		pool:    pool,
		coord:   ingest.NewCoordinator(pool, regions, o.format, log),
	}, nil
}

// Load reads the point cloud at path and uploads it.
//
// With WithRawCache, a valid <path>.data cache is uploaded instead of
// parsing the text, and a successful text load writes that cache. A bad
// cache is logged and ignored; failing to write one is logged only.
func (l *Loader) Load(path string) (*Cloud, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	if l.opts.rawCache {
		c, err := source.ReadCache(path, l.opts.format)
		switch {
		case err == nil:
			return l.loadCached(path, c)
		case errors.Is(err, os.ErrNotExist):
		default:
			l.log.Warn("pointcloud: ignoring raw cache", "path", source.CachePath(path), "err", err)
		}
	}

	in, err := source.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pointcloud: %w", err)
	}
	defer in.Close()

	cloud, err := l.loadText(path, in.Data)
	if err != nil {
		return nil, err
	}
	if l.opts.rawCache {
		l.writeCache(path, cloud)
	}
	return cloud, nil
}

// LoadBytes parses and uploads text already in memory. name labels the
// device buffer and log records; no cache is read or written.
func (l *Loader) LoadBytes(name string, data []byte) (*Cloud, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	return l.loadText(name, data)
}

func (l *Loader) loadText(name string, data []byte) (*Cloud, error) {
	ranges := partition.Split(data, l.pool.Workers())
	res, err := l.coord.Run(data, ranges)
	if err != nil {
		return nil, fmt.Errorf("pointcloud: parse %s: %w", name, err)
	}
	return l.upload(name, res, len(ranges), false)
}

func (l *Loader) loadCached(path string, c *source.Cache) (*Cloud, error) {
	res, err := l.coord.Copy(c.Payload, l.pool.Workers())
	if err != nil {
		return nil, fmt.Errorf("pointcloud: stage cache %s: %w", source.CachePath(path), err)
	}
	return l.upload(path, res, l.pool.Workers(), true)
}

// upload places the device buffer for res and copies the first n staging
// regions into it.
func (l *Loader) upload(name string, res ingest.Result, n int, fromCache bool) (*Cloud, error) {
	if res.Total == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCloud, name)
	}

	alloc, err := l.mem.CreateBuffer(device.CategoryGPUBuffer, res.Bytes, "pointcloud:"+filepath.Base(name))
	if err != nil {
		return nil, fmt.Errorf("pointcloud: %w", err)
	}
	dst := upload.Destination{Buffer: alloc.Buffer, Size: alloc.Size, State: device.StateCommon}
	if _, err := upload.Upload(l.dev.Queue(), l.regions.Payloads(n), dst); err != nil {
		return nil, fmt.Errorf("pointcloud: %w", err)
	}

	cloud := &Cloud{
		path:      name,
		format:    l.opts.format,
		alloc:     alloc,
		records:   res.Total,
		counts:    res.Counts,
		fromCache: fromCache,
	}
	l.log.Info("pointcloud: loaded",
		"path", name,
		"records", l.printer.Sprintf("%d", res.Total),
		"bytes", humanize.IBytes(res.Bytes),
		"workers", n,
		"cache", fromCache)
	return cloud, nil
}

// writeCache reads the uploaded records back and stores them next to path.
func (l *Loader) writeCache(path string, c *Cloud) {
	view := c.BufferView()
	payload, err := l.dev.ReadBuffer(view.Buffer, 0, view.Size)
	if err == nil {
		err = source.WriteCache(path, c.format, c.records, payload, cacheCompression)
	}
	if err != nil {
		l.log.Warn("pointcloud: raw cache not written", "path", source.CachePath(path), "err", err)
		return
	}
	l.log.Debug("pointcloud: raw cache written", "path", source.CachePath(path))
}

// Stats returns the current heap usage.
func (l *Loader) Stats() memory.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mem.Stats()
}

// Workers returns the number of parse workers.
func (l *Loader) Workers() int {
	return l.pool.Workers()
}

// Close stops the worker pool. The device and the buffers of loaded clouds
// stay valid. Close is safe to call multiple times.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.pool.Close()
	return nil
}
