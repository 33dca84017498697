// Package device defines the device-memory and execution-queue facilities
// the loader depends on.
//
// The loader never talks to a graphics API directly. A backend (see
// backend/software and backend/wgpu) implements Device and Queue, and the
// loader drives them through these interfaces only.
//
// Resource lifecycle:
//   - Heaps are reserved once per category and live as long as the device
//   - Buffers are placed at an offset inside a heap and never move
//   - Buffer IDs stay valid until the device is closed
package device

import (
	"errors"
	"fmt"
)

// Device errors.
var (
	// ErrUnknownHeap is returned when a heap ID was not issued by the device.
	ErrUnknownHeap = errors.New("device: unknown heap")

	// ErrUnknownBuffer is returned when a buffer ID was not issued by the device.
	ErrUnknownBuffer = errors.New("device: unknown buffer")

	// ErrOutOfRange is returned when a placement or copy falls outside its resource.
	ErrOutOfRange = errors.New("device: range out of bounds")

	// ErrNotHostVisible is returned when mapping a buffer the host cannot see.
	ErrNotHostVisible = errors.New("device: buffer is not host visible")

	// ErrInvalidTransition is returned when a transition's source state does
	// not match the resource's current state.
	ErrInvalidTransition = errors.New("device: invalid state transition")

	// ErrInvalidState is returned when a copy targets a resource that is not
	// in the state the copy requires.
	ErrInvalidState = errors.New("device: resource in wrong state")

	// ErrUnsupported is returned for categories or operations a backend lacks.
	ErrUnsupported = errors.New("device: unsupported operation")

	// ErrClosed is returned when using a closed device.
	ErrClosed = errors.New("device: closed")
)

// HeapID is an opaque handle to a reserved memory heap.
type HeapID uint64

// BufferID is an opaque handle to a buffer placed in a heap.
type BufferID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Category selects the heap a resource is placed in.
type Category int

// Heap categories.
const (
	// CategoryGPUBuffer holds device-resident buffers.
	CategoryGPUBuffer Category = iota

	// CategoryTexture holds sampled textures.
	CategoryTexture

	// CategoryRenderTarget holds render and depth targets.
	CategoryRenderTarget

	// CategoryUploadBuffer holds host-visible upload buffers.
	CategoryUploadBuffer

	numCategories
)

// Categories lists every heap category in index order.
func Categories() []Category {
	return []Category{CategoryGPUBuffer, CategoryTexture, CategoryRenderTarget, CategoryUploadBuffer}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c >= 0 && c < numCategories
}

// HostVisible reports whether resources in this category can be mapped.
func (c Category) HostVisible() bool {
	return c == CategoryUploadBuffer
}

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryGPUBuffer:
		return "GPUBuffer"
	case CategoryTexture:
		return "Texture"
	case CategoryRenderTarget:
		return "RenderTarget"
	case CategoryUploadBuffer:
		return "UploadBuffer"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// ResourceState is the usage state of a device resource. Copies require the
// destination to be in StateCopyDest.
type ResourceState int

// Resource states.
const (
	// StateCommon is the initial state of a device-resident buffer.
	StateCommon ResourceState = iota

	// StateCopyDest marks a buffer as the destination of copy operations.
	StateCopyDest

	// StateCopySource marks a buffer as the source of copy operations.
	StateCopySource

	// StateShaderResource marks a buffer as readable by shaders.
	StateShaderResource

	// StateGenericRead is the permanent state of host-visible upload buffers.
	StateGenericRead
)

// String returns the state name.
func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "Common"
	case StateCopyDest:
		return "CopyDest"
	case StateCopySource:
		return "CopySource"
	case StateShaderResource:
		return "ShaderResource"
	case StateGenericRead:
		return "GenericRead"
	default:
		return fmt.Sprintf("ResourceState(%d)", int(s))
	}
}

// Device is the device-memory facility.
//
// Implementations must be safe for concurrent use: ingestion workers map
// and unmap their staging buffers in parallel.
type Device interface {
	// ReserveHeap reserves size bytes of memory for the given category.
	ReserveHeap(category Category, size uint64) (HeapID, error)

	// CreatePlacedBuffer creates a buffer of size bytes at offset inside
	// heap. The range must fit in the heap. The buffer starts in
	// StateGenericRead for host-visible heaps and StateCommon otherwise.
	CreatePlacedBuffer(heap HeapID, offset, size uint64, label string) (BufferID, error)

	// MapBuffer returns a host view of a host-visible buffer. The view stays
	// valid until UnmapBuffer.
	MapBuffer(id BufferID) ([]byte, error)

	// UnmapBuffer ends a mapping. The first written bytes of the view are
	// made visible to the device.
	UnmapBuffer(id BufferID, written uint64) error

	// ReadBuffer copies size bytes starting at offset from a buffer back to
	// the host. It may stall until the device is idle.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// Queue returns the device's execution queue.
	Queue() Queue

	// Close releases every heap and buffer.
	Close() error
}

// Queue is the execution-queue facility. Operations are recorded in order
// and executed by Submit; recording itself never fails; errors surface from
// Submit or WaitIdle.
type Queue interface {
	// RecordCopy records a copy of size bytes from the start of src into
	// dst at dstOffset.
	RecordCopy(src, dst BufferID, size, dstOffset uint64)

	// Transition records a state change of a resource.
	Transition(id BufferID, from, to ResourceState)

	// Submit executes everything recorded since the last Submit.
	Submit() error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error
}

// BufferView is the shader-visible description of a buffer range, handed
// to rendering code.
type BufferView struct {
	// Buffer is the buffer holding the data.
	Buffer BufferID

	// Offset is the byte offset of the buffer inside its heap.
	Offset uint64

	// Size is the number of valid bytes.
	Size uint64

	// Stride is the size of one element in bytes.
	Stride uint64
}

// Count returns the number of elements in the view.
func (v BufferView) Count() uint64 {
	if v.Stride == 0 {
		return 0
	}
	return v.Size / v.Stride
}
