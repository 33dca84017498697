// Package memory implements the bump allocators that back device heaps.
//
// Each heap category gets one LinearAllocator sized at startup. Allocations
// only ever move the cursor forward; nothing is freed or reused until the
// allocator itself is dropped. Device data in this workload is loaded once
// and lives for the whole session, so the allocator needs no free lists and
// cannot fragment.
package memory

import (
	"errors"
	"fmt"
)

// Allocator errors.
var (
	// ErrCapacityExceeded is returned when an allocation does not fit.
	ErrCapacityExceeded = errors.New("memory: allocator capacity exceeded")

	// ErrInvalidAlignment is returned for a zero alignment.
	ErrInvalidAlignment = errors.New("memory: alignment must be positive")

	// ErrUnknownCategory is returned for a category without a heap.
	ErrUnknownCategory = errors.New("memory: no heap for category")
)

// DefaultAlignment is the placement alignment used when none is given
// (64 KiB, the common placed-resource alignment).
const DefaultAlignment = 64 * 1024

// Align rounds size up to the next multiple of alignment.
// Align(0, a) is 0. alignment must be positive.
func Align(size, alignment uint64) uint64 {
	if size == 0 {
		return 0
	}
	return ((size-1)/alignment + 1) * alignment
}

// LinearAllocator hands out monotonically increasing offsets inside a fixed
// capacity.
//
// Invariant: 0 <= Cursor() <= Capacity().
//
// LinearAllocator is not safe for concurrent use.
type LinearAllocator struct {
	capacity  uint64
	alignment uint64
	cursor    uint64

	requested   uint64
	largest     uint64
	allocations int
}

// NewLinearAllocator creates an allocator over [0, capacity) whose Allocate
// calls align to alignment. An alignment of 0 selects DefaultAlignment.
func NewLinearAllocator(capacity, alignment uint64) *LinearAllocator {
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	return &LinearAllocator{
		capacity:  capacity,
		alignment: alignment,
	}
}

// Allocate reserves size bytes at the allocator's alignment.
func (a *LinearAllocator) Allocate(size uint64) (uint64, error) {
	return a.AllocateAligned(size, a.alignment)
}

// AllocateAligned reserves size bytes starting at the next multiple of
// alignment and returns that offset.
//
// If offset+size would exceed the capacity it returns ErrCapacityExceeded and
// leaves the allocator unchanged.
func (a *LinearAllocator) AllocateAligned(size, alignment uint64) (uint64, error) {
	if alignment == 0 {
		return 0, ErrInvalidAlignment
	}

	offset := Align(a.cursor, alignment)
	if offset < a.cursor || offset+size < offset || offset+size > a.capacity {
		return 0, fmt.Errorf("%w: need %d bytes at offset %d, capacity %d",
			ErrCapacityExceeded, size, offset, a.capacity)
	}

	a.cursor = offset + size
	a.requested += size
	a.allocations++
	if size > a.largest {
		a.largest = size
	}
	return offset, nil
}

// Cursor returns the end of the last allocation. It equals the aligned
// number of bytes consumed so far.
func (a *LinearAllocator) Cursor() uint64 {
	return a.cursor
}

// AlignedBytesAllocated returns the bytes consumed including alignment padding.
func (a *LinearAllocator) AlignedBytesAllocated() uint64 {
	return a.cursor
}

// RequestedBytes returns the sum of all requested sizes, without padding.
func (a *LinearAllocator) RequestedBytes() uint64 {
	return a.requested
}

// Capacity returns the allocator's total size.
func (a *LinearAllocator) Capacity() uint64 {
	return a.capacity
}

// Alignment returns the default alignment used by Allocate.
func (a *LinearAllocator) Alignment() uint64 {
	return a.alignment
}

// Remaining returns the bytes left after the cursor.
func (a *LinearAllocator) Remaining() uint64 {
	return a.capacity - a.cursor
}

// Allocations returns the number of successful allocations.
func (a *LinearAllocator) Allocations() int {
	return a.allocations
}

// Largest returns the size of the largest single allocation.
func (a *LinearAllocator) Largest() uint64 {
	return a.largest
}

// Utilization returns the used fraction of the capacity (0.0 to 1.0).
func (a *LinearAllocator) Utilization() float64 {
	if a.capacity == 0 {
		return 0
	}
	return float64(a.cursor) / float64(a.capacity)
}
