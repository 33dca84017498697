// Package ingest runs the parallel parse phase: one worker per byte range,
// each lexing its lines and packing records into its own staging region.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/pointcloud/internal/lex"
	"github.com/gogpu/pointcloud/internal/parallel"
	"github.com/gogpu/pointcloud/internal/partition"
	"github.com/gogpu/pointcloud/internal/staging"
	"github.com/gogpu/pointcloud/vertex"
)

// ErrTooManyRanges is returned when there are more ranges than staging regions.
var ErrTooManyRanges = errors.New("ingest: more ranges than staging regions")

// Result is the outcome of one parse phase.
type Result struct {
	// Counts holds the records produced by each worker, in worker order.
	Counts []uint64

	// Total is the sum of Counts, accumulated atomically by the workers.
	Total uint64

	// Bytes is the number of packed bytes written across all regions.
	Bytes uint64
}

// Coordinator dispatches ranges to a worker pool and waits for all of them.
type Coordinator struct {
	pool    *parallel.WorkerPool
	regions *staging.Pool
	format  vertex.Format
	log     *slog.Logger
}

// NewCoordinator creates a coordinator. regions may be nil for Count-only use.
func NewCoordinator(pool *parallel.WorkerPool, regions *staging.Pool, format vertex.Format, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{pool: pool, regions: regions, format: format, log: log}
}

// Run parses every range in parallel into staging regions 0..len(ranges)-1
// and blocks until all workers have finished.
//
// A worker stops at the end of its range or at the first line with fewer
// than vertex.Fields numbers; that line and everything after it in the
// range is dropped. Staging overflow and device map failures are returned
// as errors, joined across workers.
func (c *Coordinator) Run(data []byte, ranges []partition.ByteRange) (Result, error) {
	if c.regions == nil || len(ranges) > c.regions.Len() {
		n := 0
		if c.regions != nil {
			n = c.regions.Len()
		}
		return Result{}, fmt.Errorf("%w: %d ranges, %d regions", ErrTooManyRanges, len(ranges), n)
	}

	stride := int(c.format.Stride())
	counts := make([]uint64, len(ranges))
	errs := make([]error, len(ranges))
	var total atomic.Uint64

	for i, r := range ranges {
		region := c.regions.Region(i)
		c.pool.Spawn(i, func() {
			counts[i], errs[i] = c.fill(data, r, region, stride, &total)
			c.log.Debug("ingest: worker done",
				"worker", i,
				"range", r.String(),
				"records", counts[i],
				"bytes", region.Written())
		})
	}
	c.pool.JoinAll()

	res := Result{
		Counts: counts,
		Total:  total.Load(),
		Bytes:  c.regions.Written(len(ranges)),
	}
	return res, errors.Join(errs...)
}

func (c *Coordinator) fill(data []byte, r partition.ByteRange, region *staging.Region, stride int, total *atomic.Uint64) (n uint64, err error) {
	if err := region.Begin(); err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, region.Finish())
	}()

	return scan(data, r, func(v *lex.Values) error {
		b, err := region.Next(stride)
		if err != nil {
			return err
		}
		vertex.FromFields(v[:]).Put(b, c.format)
		total.Add(1)
		return nil
	})
}

// Copy spreads already packed records across the first workers staging
// regions in parallel, as if each region had been filled by Run. Every
// region receives a contiguous run of whole records, so worker order is
// payload order. A trailing partial record in payload is ignored.
func (c *Coordinator) Copy(payload []byte, workers int) (Result, error) {
	if c.regions == nil || workers > c.regions.Len() {
		n := 0
		if c.regions != nil {
			n = c.regions.Len()
		}
		return Result{}, fmt.Errorf("%w: %d workers, %d regions", ErrTooManyRanges, workers, n)
	}
	workers = max(workers, 1)

	stride := c.format.Stride()
	records := uint64(len(payload)) / stride
	per := (records + uint64(workers) - 1) / uint64(workers)

	counts := make([]uint64, workers)
	errs := make([]error, workers)
	var total atomic.Uint64

	for i := range workers {
		first := min(uint64(i)*per, records)
		last := min(first+per, records)
		chunk := payload[first*stride : last*stride]
		region := c.regions.Region(i)
		c.pool.Spawn(i, func() {
			errs[i] = copyChunk(region, chunk)
			if errs[i] == nil {
				counts[i] = last - first
				total.Add(counts[i])
			}
		})
	}
	c.pool.JoinAll()

	res := Result{
		Counts: counts,
		Total:  total.Load(),
		Bytes:  c.regions.Written(workers),
	}
	return res, errors.Join(errs...)
}

func copyChunk(region *staging.Region, chunk []byte) (err error) {
	if err := region.Begin(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, region.Finish())
	}()
	_, err = region.Write(chunk)
	return err
}

// Count parses every range in parallel without storing anything and returns
// the per-worker record counts.
func (c *Coordinator) Count(data []byte, ranges []partition.ByteRange) Result {
	counts := make([]uint64, len(ranges))
	var total atomic.Uint64

	for i, r := range ranges {
		c.pool.Spawn(i, func() {
			counts[i], _ = scan(data, r, func(*lex.Values) error {
				total.Add(1)
				return nil
			})
		})
	}
	c.pool.JoinAll()

	return Result{
		Counts: counts,
		Total:  total.Load(),
		Bytes:  total.Load() * c.format.Stride(),
	}
}

// scan lexes r line by line, calling emit for every complete record.
func scan(data []byte, r partition.ByteRange, emit func(*lex.Values) error) (uint64, error) {
	var n uint64
	pos, end := int(r.Start), int(r.End)
	for pos < end {
		count, values, next := lex.ParseFloats(data, pos, end)
		if count < vertex.Fields {
			break
		}
		if err := emit(&values); err != nil {
			return n, err
		}
		n++
		pos = next
	}
	return n, nil
}
