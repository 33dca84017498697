// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pointcloud/backend"
	"github.com/gogpu/pointcloud/device"
)

// waitTimeout bounds every wait on the GPU.
const waitTimeout = 5 * time.Second

// pollInterval is the sleep between completion polls.
const pollInterval = 50 * time.Microsecond

// copyAlignment is the WebGPU alignment for buffer sizes, copy sizes and
// copy offsets.
const copyAlignment = 4

func init() {
	backend.Register(backend.BackendWGPU, func() (device.Device, error) {
		d, err := New()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

type heap struct {
	category device.Category
	size     uint64
}

type buffer struct {
	hal    hal.Buffer
	heap   *heap
	offset uint64
	size   uint64
	label  string
	state  device.ResourceState
	mapped bool

	// shadow is the host copy of an upload buffer.
	shadow []byte
}

// Device is a device.Device backed by a HAL device and queue.
//
// Device is safe for concurrent use.
type Device struct {
	device hal.Device
	queue  hal.Queue

	// release destroys the HAL objects this package created; nil for
	// shared devices.
	release func()

	mu      sync.Mutex
	nextID  uint64
	heaps   map[device.HeapID]*heap
	buffers map[device.BufferID]*buffer
	q       *Queue
	closed  bool
}

// NewWithHAL wraps a HAL device and queue owned by the caller.
func NewWithHAL(dev hal.Device, queue hal.Queue) *Device {
	d := &Device{
		device:  dev,
		queue:   queue,
		heaps:   make(map[device.HeapID]*heap),
		buffers: make(map[device.BufferID]*buffer),
	}
	d.q = &Queue{dev: d}
	return d
}

// NewFromProvider shares the GPU device of a host application. The
// provider must also expose HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: wgpu: provider does not expose HAL types", backend.ErrBackendNotAvailable)
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: wgpu: provider HalDevice is not hal.Device", backend.ErrBackendNotAvailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: wgpu: provider HalQueue is not hal.Queue", backend.ErrBackendNotAvailable)
	}
	return NewWithHAL(dev, queue), nil
}

func (d *Device) newID() uint64 {
	d.nextID++
	return d.nextID
}

// ReserveHeap records a capacity budget for category.
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

func usageFor(c device.Category) (gputypes.BufferUsage, bool) {
	switch c {
	case device.CategoryGPUBuffer:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageVertex |
			gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc, true
	case device.CategoryUploadBuffer:
		return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst, true
	default:
		return 0, false
	}
}

func alignCopy(n uint64) uint64 {
	return (n + copyAlignment - 1) &^ (copyAlignment - 1)
}

// CreatePlacedBuffer creates a HAL buffer for the range [offset,
// offset+size) of heap.
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
	usage, ok := usageFor(h.category)
	if !ok {
		return device.InvalidID, fmt.Errorf("%w: buffers in %s heap", device.ErrUnsupported, h.category)
	}

	hb, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  alignCopy(max(size, copyAlignment)),
		Usage: usage,
	})
	if err != nil {
		return device.InvalidID, fmt.Errorf("wgpu: create buffer %q: %w", label, err)
	}

	b := &buffer{
		hal:    hb,
		heap:   h,
		offset: offset,
		size:   size,
		label:  label,
		state:  device.StateCommon,
	}
	if h.category.HostVisible() {
		b.state = device.StateGenericRead
		b.shadow = make([]byte, size, alignCopy(size))
	}

	id := device.BufferID(d.newID())
	d.buffers[id] = b
	return id, nil
}

// MapBuffer returns the host shadow of an upload buffer.
func (d *Device) MapBuffer(id device.BufferID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	if b.shadow == nil {
		return nil, fmt.Errorf("%w: %q", device.ErrNotHostVisible, b.label)
	}
	if b.mapped {
		return nil, fmt.Errorf("%w: %q is already mapped", device.ErrInvalidState, b.label)
	}
	b.mapped = true
	return b.shadow, nil
}

// UnmapBuffer writes the first written bytes of the shadow to the GPU.
func (d *Device) UnmapBuffer(id device.BufferID, written uint64) error {
	d.mu.Lock()
	b, err := d.lookupLocked(id)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if !b.mapped {
		d.mu.Unlock()
		return fmt.Errorf("%w: %q is not mapped", device.ErrInvalidState, b.label)
	}
	if written > b.size {
		d.mu.Unlock()
		return fmt.Errorf("%w: wrote %d bytes into %q of %d", device.ErrOutOfRange, written, b.label, b.size)
	}
	b.mapped = false
	d.mu.Unlock()

	if written == 0 {
		return nil
	}
	// The shadow's capacity is padded to copyAlignment; the padding bytes
	// are never read by a copy.
	if err := d.queue.WriteBuffer(b.hal, 0, b.shadow[:alignCopy(written)]); err != nil {
		return fmt.Errorf("wgpu: flush %q: %w", b.label, err)
	}
	return nil
}

// ReadBuffer copies [offset, offset+size) of a buffer back to the host.
// Upload buffers are served from their shadow; other buffers are copied to
// a MapRead staging buffer, which is mapped once the copy has completed.
func (d *Device) ReadBuffer(id device.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	b, err := d.lookupLocked(id)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if offset+size < offset || offset+size > b.size {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: read [%d, %d) from %q of %d bytes",
			device.ErrOutOfRange, offset, offset+size, b.label, b.size)
	}
	if b.shadow != nil {
		out := make([]byte, size)
		copy(out, b.shadow[offset:offset+size])
		d.mu.Unlock()
		return out, nil
	}
	d.mu.Unlock()

	if size == 0 {
		return []byte{}, nil
	}

	// Copies need 4-byte aligned offsets and sizes.
	start := offset &^ (copyAlignment - 1)
	length := alignCopy(offset+size) - start

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback-staging",
		Size:  length,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create readback buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback"})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(b.hal, staging, []hal.BufferCopy{{
		SrcOffset: start,
		DstOffset: 0,
		Size:      length,
	}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return nil, err
	}

	m, err := d.device.MapBuffer(staging, 0, length)
	if err != nil {
		return nil, fmt.Errorf("wgpu: map readback buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(m.Ptr), length)[offset-start:])
	if err := d.device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("wgpu: unmap readback buffer: %w", err)
	}
	return out, nil
}

func (d *Device) submitAndWait(cmdBuf hal.CommandBuffer) error {
	idx, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	return d.waitSubmission(idx)
}

// waitSubmission polls the queue until submission idx has completed.
func (d *Device) waitSubmission(idx uint64) error {
	deadline := time.Now().Add(waitTimeout)
	for d.queue.PollCompleted() < idx {
		if time.Now().After(deadline) {
			return errors.New("wgpu: wait for GPU: timed out")
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// Queue returns the device's queue.
func (d *Device) Queue() device.Queue {
	return d.q
}

// Close destroys every buffer and, for devices opened by New, the HAL
// device itself.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	for _, b := range d.buffers {
		d.device.DestroyBuffer(b.hal)
	}
	d.buffers = make(map[device.BufferID]*buffer)
	d.heaps = make(map[device.HeapID]*heap)
	if d.release != nil {
		d.release()
		d.release = nil
	}
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
