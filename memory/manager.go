package memory

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/gogpu/pointcloud/device"
)

// Default heap sizes.
const (
	DefaultGPUBufferSize    = 1024 * 1024 * 1024 // 1 GiB
	DefaultTextureSize      = 128 * 1024 * 1024  // 128 MiB
	DefaultRenderTargetSize = 128 * 1024 * 1024  // 128 MiB
	DefaultUploadBufferSize = 1500 * 1024 * 1024 // 1500 MiB
)

// Sizes holds the heap capacity reserved for each category. A zero size
// skips the category.
type Sizes struct {
	GPUBuffer    uint64
	Texture      uint64
	RenderTarget uint64
	UploadBuffer uint64
}

// DefaultSizes returns the default heap capacities.
func DefaultSizes() Sizes {
	return Sizes{
		GPUBuffer:    DefaultGPUBufferSize,
		Texture:      DefaultTextureSize,
		RenderTarget: DefaultRenderTargetSize,
		UploadBuffer: DefaultUploadBufferSize,
	}
}

// For returns the size configured for c.
func (s Sizes) For(c device.Category) uint64 {
	switch c {
	case device.CategoryGPUBuffer:
		return s.GPUBuffer
	case device.CategoryTexture:
		return s.Texture
	case device.CategoryRenderTarget:
		return s.RenderTarget
	case device.CategoryUploadBuffer:
		return s.UploadBuffer
	default:
		return 0
	}
}

// Allocation is a buffer placed in a category heap.
type Allocation struct {
	Buffer   device.BufferID
	Category device.Category
	Offset   uint64
	Size     uint64
}

// heap pairs a reserved device heap with its allocator.
type heap struct {
	id    device.HeapID
	alloc *LinearAllocator
}

// Manager owns one heap and one LinearAllocator per category and places
// buffers into them.
//
// A Manager is created once at startup and passed to whatever needs device
// memory. It is not safe for concurrent use; all placement happens on the
// loading goroutine, outside the parallel parse phase.
type Manager struct {
	dev   device.Device
	heaps map[device.Category]*heap
}

// NewManager reserves a heap for every category with a non-zero size.
func NewManager(dev device.Device, sizes Sizes, alignment uint64) (*Manager, error) {
	m := &Manager{
		dev:   dev,
		heaps: make(map[device.Category]*heap),
	}
	for _, c := range device.Categories() {
		size := sizes.For(c)
		if size == 0 {
			continue
		}
		id, err := dev.ReserveHeap(c, size)
		if err != nil {
			return nil, fmt.Errorf("memory: reserve %s heap (%s): %w", c, humanize.IBytes(size), err)
		}
		m.heaps[c] = &heap{id: id, alloc: NewLinearAllocator(size, alignment)}
	}
	return m, nil
}

// CreateBuffer places a buffer of size bytes in the heap for category.
// The heap space is consumed even if the device then fails to create the
// buffer.
func (m *Manager) CreateBuffer(category device.Category, size uint64, label string) (Allocation, error) {
	h, ok := m.heaps[category]
	if !ok {
		return Allocation{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	offset, err := h.alloc.Allocate(size)
	if err != nil {
		return Allocation{}, fmt.Errorf("memory: place %q in %s heap: %w", label, category, err)
	}

	buf, err := m.dev.CreatePlacedBuffer(h.id, offset, size, label)
	if err != nil {
		return Allocation{}, fmt.Errorf("memory: create %q: %w", label, err)
	}

	return Allocation{Buffer: buf, Category: category, Offset: offset, Size: size}, nil
}

// Allocator returns the allocator for category, or nil if it has no heap.
func (m *Manager) Allocator(category device.Category) *LinearAllocator {
	if h, ok := m.heaps[category]; ok {
		return h.alloc
	}
	return nil
}

// Device returns the device the manager places buffers on.
func (m *Manager) Device() device.Device {
	return m.dev
}

// Stats returns a snapshot of every heap's usage.
func (m *Manager) Stats() Stats {
	var s Stats
	for _, c := range device.Categories() {
		h, ok := m.heaps[c]
		if !ok {
			continue
		}
		cs := CategoryStats{
			Category:    c,
			Capacity:    h.alloc.Capacity(),
			Aligned:     h.alloc.AlignedBytesAllocated(),
			Requested:   h.alloc.RequestedBytes(),
			Allocations: h.alloc.Allocations(),
		}
		s.Categories = append(s.Categories, cs)
		if l := h.alloc.Largest(); l > s.LargestAllocation {
			s.LargestAllocation = l
		}
	}
	return s
}

// CategoryStats contains the usage of one heap.
type CategoryStats struct {
	Category    device.Category
	Capacity    uint64
	Aligned     uint64
	Requested   uint64
	Allocations int
}

// Utilization returns the used fraction of the heap (0.0 to 1.0).
func (s CategoryStats) Utilization() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Aligned) / float64(s.Capacity)
}

// Stats is a snapshot of all heaps, owned by the caller.
type Stats struct {
	Categories []CategoryStats

	// LargestAllocation is the biggest single placement across all heaps.
	LargestAllocation uint64
}

// Category returns the stats for c and whether that heap exists.
func (s Stats) Category(c device.Category) (CategoryStats, bool) {
	for _, cs := range s.Categories {
		if cs.Category == c {
			return cs, true
		}
	}
	return CategoryStats{}, false
}

// String returns a human-readable multi-line report.
func (s Stats) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Largest allocation: %s\n", humanize.IBytes(s.LargestAllocation))
	for _, cs := range s.Categories {
		fmt.Fprintf(&sb, "%s heap: requested %s, used %s of %s (%.1f%%), %d allocations\n",
			cs.Category,
			humanize.IBytes(cs.Requested),
			humanize.IBytes(cs.Aligned),
			humanize.IBytes(cs.Capacity),
			cs.Utilization()*100,
			cs.Allocations)
	}
	return sb.String()
}
