// Package software implements device.Device in host memory.
//
// It keeps the same rules a real device enforces (heap bounds, host
// visibility, resource states around copies) so the loader behaves the same
// on both. Each placed buffer owns its own byte slice; heap capacity is only
// bookkeeping, so reserving a large heap costs nothing until buffers are
// placed in it.
package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/pointcloud/backend"
	"github.com/gogpu/pointcloud/device"
)

func init() {
	backend.Register(backend.BackendSoftware, func() (device.Device, error) {
		return New(), nil
	})
}

type heap struct {
	category device.Category
	size     uint64
}

type buffer struct {
	heap   device.HeapID
	offset uint64
	data   []byte
	label  string
	state  device.ResourceState
	mapped bool
}

// Device is a host-memory device.
//
// Device is safe for concurrent use.
type Device struct {
	mu      sync.Mutex
	nextID  uint64
	heaps   map[device.HeapID]*heap
	buffers map[device.BufferID]*buffer
	queue   *Queue
	closed  bool
}

// New creates an empty device.
func New() *Device {
	d := &Device{
		heaps:   make(map[device.HeapID]*heap),
		buffers: make(map[device.BufferID]*buffer),
	}
	d.queue = &Queue{dev: d}
	return d
}

func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

// ReserveHeap records a heap of size bytes.
func (d *Device) ReserveHeap(category device.Category, size uint64) (device.HeapID, error) {
	if !category.Valid() {
		return device.InvalidID, fmt.Errorf("%w: category %s", device.ErrUnsupported, category)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return device.InvalidID, device.ErrClosed
	}
	id := device.HeapID(d.newID())
	d.heaps[id] = &heap{category: category, size: size}
	return id, nil
}

// CreatePlacedBuffer creates a buffer at offset inside heap.
func (d *Device) CreatePlacedBuffer(heapID device.HeapID, offset, size uint64, label string) (device.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return device.InvalidID, device.ErrClosed
	}
	h, ok := d.heaps[heapID]
	if !ok {
		return device.InvalidID, fmt.Errorf("%w: %d", device.ErrUnknownHeap, heapID)
	}
	if offset+size < offset || offset+size > h.size {
		return device.InvalidID, fmt.Errorf("%w: [%d, %d) in heap of %d bytes",
			device.ErrOutOfRange, offset, offset+size, h.size)
	}

	state := device.StateCommon
	if h.category.HostVisible() {
		state = device.StateGenericRead
	}

	id := device.BufferID(d.newID())
	d.buffers[id] = &buffer{
		heap:   heapID,
		offset: offset,
		data:   make([]byte, size),
		label:  label,
		state:  state,
	}
	return id, nil
}

// MapBuffer returns the buffer's backing slice.
func (d *Device) MapBuffer(id device.BufferID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	if !d.heaps[b.heap].category.HostVisible() {
		return nil, fmt.Errorf("%w: %q", device.ErrNotHostVisible, b.label)
	}
	if b.mapped {
		return nil, fmt.Errorf("%w: %q is already mapped", device.ErrInvalidState, b.label)
	}
	b.mapped = true
	return b.data, nil
}

// UnmapBuffer ends a mapping.
func (d *Device) UnmapBuffer(id device.BufferID, written uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.lookupLocked(id)
	if err != nil {
		return err
	}
	if !b.mapped {
		return fmt.Errorf("%w: %q is not mapped", device.ErrInvalidState, b.label)
	}
	if written > uint64(len(b.data)) {
		return fmt.Errorf("%w: wrote %d bytes into %q of %d", device.ErrOutOfRange, written, b.label, len(b.data))
	}
	b.mapped = false
	return nil
}

// ReadBuffer copies a range of a buffer to the host.
func (d *Device) ReadBuffer(id device.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	if offset+size < offset || offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("%w: read [%d, %d) from %q of %d bytes",
			device.ErrOutOfRange, offset, offset+size, b.label, len(b.data))
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

// State returns the current state of a buffer.
func (d *Device) State(id device.BufferID) (device.ResourceState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.lookupLocked(id)
	if err != nil {
		return 0, err
	}
	return b.state, nil
}

// Queue returns the device's queue.
func (d *Device) Queue() device.Queue {
	return d.queue
}

// SoftwareQueue returns the queue with its concrete type.
func (d *Device) SoftwareQueue() *Queue {
	return d.queue
}

// Close drops all heaps and buffers.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.heaps = make(map[device.HeapID]*heap)
	d.buffers = make(map[device.BufferID]*buffer)
	d.closed = true
	return nil
}

func (d *Device) lookupLocked(id device.BufferID) (*buffer, error) {
	if d.closed {
		return nil, device.ErrClosed
	}
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", device.ErrUnknownBuffer, id)
	}
	return b, nil
}

// Ensure Device implements device.Device.
var _ device.Device = (*Device)(nil)
