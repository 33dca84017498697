// Package staging manages the host-visible regions ingestion workers write
// packed records into before upload.
//
// A Pool holds one Region per worker. Regions are placed in the upload heap
// once and reused by every later load; only their written byte count is
// reset. A Region is written by exactly one worker between Begin and Finish,
// so it carries no lock.
package staging

import (
	"errors"
	"fmt"

	"github.com/gogpu/pointcloud/device"
	"github.com/gogpu/pointcloud/memory"
)

// DefaultCapacity is the size of one staging region (64 MiB).
const DefaultCapacity = 64 * 1024 * 1024

// Staging errors.
var (
	// ErrRegionOverflow is returned when a worker produces more bytes than
	// its region holds.
	ErrRegionOverflow = errors.New("staging: region capacity exceeded")

	// ErrRegionMapped is returned by Begin on a region that is already mapped.
	ErrRegionMapped = errors.New("staging: region already mapped")

	// ErrRegionNotMapped is returned when writing to or finishing a region
	// that was not begun.
	ErrRegionNotMapped = errors.New("staging: region not mapped")
)

// Payload is a finished region handed to the upload step: the staging
// buffer and how many bytes of it hold records.
type Payload struct {
	Worker  int
	Buffer  device.BufferID
	Written uint64
}

// Region is one worker's staging buffer.
type Region struct {
	index int
	dev   device.Device
	alloc memory.Allocation

	view    []byte
	written uint64
	mapped  bool
}

// Begin maps the region and resets its written count.
func (r *Region) Begin() error {
	if r.mapped {
		return fmt.Errorf("%w: region %d", ErrRegionMapped, r.index)
	}
	view, err := r.dev.MapBuffer(r.alloc.Buffer)
	if err != nil {
		return fmt.Errorf("staging: map region %d: %w", r.index, err)
	}
	r.view = view
	r.written = 0
	r.mapped = true
	return nil
}

// Next returns the next n bytes of the region for the caller to fill and
// counts them as written. It fails with ErrRegionOverflow, leaving the
// region unchanged, when fewer than n bytes remain.
func (r *Region) Next(n int) ([]byte, error) {
	if !r.mapped {
		return nil, fmt.Errorf("%w: region %d", ErrRegionNotMapped, r.index)
	}
	end := r.written + uint64(n)
	if end > uint64(len(r.view)) {
		return nil, fmt.Errorf("%w: region %d needs %d bytes, has %d",
			ErrRegionOverflow, r.index, end, len(r.view))
	}
	b := r.view[r.written:end:end]
	r.written = end
	return b, nil
}

// Write appends p to the region.
func (r *Region) Write(p []byte) (int, error) {
	b, err := r.Next(len(p))
	if err != nil {
		return 0, err
	}
	return copy(b, p), nil
}

// Finish unmaps the region. Written is fixed from here until the next Begin.
func (r *Region) Finish() error {
	if !r.mapped {
		return fmt.Errorf("%w: region %d", ErrRegionNotMapped, r.index)
	}
	r.view = nil
	r.mapped = false
	if err := r.dev.UnmapBuffer(r.alloc.Buffer, r.written); err != nil {
		return fmt.Errorf("staging: unmap region %d: %w", r.index, err)
	}
	return nil
}

// Index returns the worker index the region belongs to.
func (r *Region) Index() int { return r.index }

// Buffer returns the device buffer backing the region.
func (r *Region) Buffer() device.BufferID { return r.alloc.Buffer }

// Capacity returns the region size in bytes.
func (r *Region) Capacity() uint64 { return r.alloc.Size }

// Written returns the number of bytes produced since the last Begin.
func (r *Region) Written() uint64 { return r.written }

// Payload returns the region as an upload payload.
func (r *Region) Payload() Payload {
	return Payload{Worker: r.index, Buffer: r.alloc.Buffer, Written: r.written}
}

// Pool is the set of staging regions, one per worker.
type Pool struct {
	mem      *memory.Manager
	capacity uint64
	regions  []*Region
}

// NewPool places workers regions of capacity bytes each in the upload heap
// of m. A capacity of 0 selects DefaultCapacity.
func NewPool(m *memory.Manager, workers int, capacity uint64) (*Pool, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{mem: m, capacity: capacity}
	if err := p.Ensure(workers); err != nil {
		return nil, err
	}
	return p, nil
}

// Ensure grows the pool to at least workers regions. Existing regions are
// kept; upload heap space is never returned.
func (p *Pool) Ensure(workers int) error {
	for i := len(p.regions); i < workers; i++ {
		a, err := p.mem.CreateBuffer(device.CategoryUploadBuffer, p.capacity, fmt.Sprintf("staging-%d", i))
		if err != nil {
			return fmt.Errorf("staging: region %d: %w", i, err)
		}
		p.regions = append(p.regions, &Region{index: i, dev: p.mem.Device(), alloc: a})
	}
	return nil
}

// Region returns the region for worker i.
func (p *Pool) Region(i int) *Region {
	return p.regions[i]
}

// Len returns the number of regions.
func (p *Pool) Len() int {
	return len(p.regions)
}

// Capacity returns the size of each region.
func (p *Pool) Capacity() uint64 {
	return p.capacity
}

// Payloads returns the first n regions as payloads in worker order.
func (p *Pool) Payloads(n int) []Payload {
	n = min(n, len(p.regions))
	out := make([]Payload, n)
	for i := range n {
		out[i] = p.regions[i].Payload()
	}
	return out
}

// Written returns the total bytes written across the first n regions.
func (p *Pool) Written(n int) uint64 {
	var total uint64
	for _, r := range p.regions[:min(n, len(p.regions))] {
		total += r.written
	}
	return total
}
