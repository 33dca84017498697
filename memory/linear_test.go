package memory

import (
	"errors"
	"math"
	"testing"
)

func TestAlign(t *testing.T) {
	tests := []struct {
		size, alignment, want uint64
	}{
		{0, 64, 0},
		{1, 64, 64},
		{63, 64, 64},
		{64, 64, 64},
		{65, 64, 128},
		{100, 1, 100},
		{65537, DefaultAlignment, 2 * DefaultAlignment},
	}
	for _, tt := range tests {
		if got := Align(tt.size, tt.alignment); got != tt.want {
			t.Errorf("Align(%d, %d) = %d, want %d", tt.size, tt.alignment, got, tt.want)
		}
	}
}

func TestLinearAllocator_DefaultAlignment(t *testing.T) {
	a := NewLinearAllocator(1<<20, 0)
	if a.Alignment() != DefaultAlignment {
		t.Errorf("Alignment() = %d, want %d", a.Alignment(), DefaultAlignment)
	}
}

func TestLinearAllocator_Sequence(t *testing.T) {
	a := NewLinearAllocator(1024, 64)

	sizes := []uint64{10, 64, 1, 100}
	wantOffsets := []uint64{0, 64, 128, 192}
	var prev uint64
	for i, size := range sizes {
		off, err := a.Allocate(size)
		if err != nil {
			t.Fatalf("Allocate(%d) error = %v", size, err)
		}
		if off != wantOffsets[i] {
			t.Errorf("Allocate(%d) offset = %d, want %d", size, off, wantOffsets[i])
		}
		if off%64 != 0 {
			t.Errorf("offset %d not a multiple of 64", off)
		}
		if i > 0 && off < prev {
			t.Errorf("offset %d went backwards from %d", off, prev)
		}
		prev = off
	}

	if a.Cursor() != 292 {
		t.Errorf("Cursor() = %d, want 292", a.Cursor())
	}
	if a.RequestedBytes() != 175 {
		t.Errorf("RequestedBytes() = %d, want 175", a.RequestedBytes())
	}
	if a.Allocations() != 4 {
		t.Errorf("Allocations() = %d, want 4", a.Allocations())
	}
	if a.Largest() != 100 {
		t.Errorf("Largest() = %d, want 100", a.Largest())
	}
	if a.Remaining() != 1024-292 {
		t.Errorf("Remaining() = %d, want %d", a.Remaining(), 1024-292)
	}
}

func TestLinearAllocator_ExactFit(t *testing.T) {
	a := NewLinearAllocator(128, 64)
	if _, err := a.Allocate(64); err != nil {
		t.Fatal(err)
	}
	off, err := a.Allocate(64)
	if err != nil {
		t.Fatalf("exact-fit Allocate error = %v", err)
	}
	if off != 64 || a.Cursor() != 128 {
		t.Errorf("offset = %d cursor = %d, want 64 and 128", off, a.Cursor())
	}
	if a.Utilization() != 1 {
		t.Errorf("Utilization() = %v, want 1", a.Utilization())
	}
}

func TestLinearAllocator_CapacityExceededLeavesState(t *testing.T) {
	a := NewLinearAllocator(256, 64)
	if _, err := a.Allocate(100); err != nil {
		t.Fatal(err)
	}
	before := *a

	// Aligned offset is 128; 128+200 > 256.
	if _, err := a.Allocate(200); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Allocate(200) error = %v, want ErrCapacityExceeded", err)
	}
	if *a != before {
		t.Errorf("allocator changed after failed Allocate: %+v, was %+v", *a, before)
	}

	// The remaining space is still usable.
	if off, err := a.Allocate(128); err != nil || off != 128 {
		t.Errorf("Allocate(128) = %d, %v, want 128, nil", off, err)
	}
}

func TestLinearAllocator_Overflow(t *testing.T) {
	a := NewLinearAllocator(math.MaxUint64, 1)
	if _, err := a.Allocate(10); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate(math.MaxUint64); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("overflowing Allocate error = %v, want ErrCapacityExceeded", err)
	}
	if a.Cursor() != 10 {
		t.Errorf("Cursor() = %d, want 10", a.Cursor())
	}
}

func TestLinearAllocator_ZeroSize(t *testing.T) {
	a := NewLinearAllocator(128, 64)
	if _, err := a.Allocate(1); err != nil {
		t.Fatal(err)
	}
	off, err := a.Allocate(0)
	if err != nil {
		t.Fatalf("Allocate(0) error = %v", err)
	}
	if off != 64 || a.Cursor() != 64 {
		t.Errorf("Allocate(0) offset = %d cursor = %d, want 64 and 64", off, a.Cursor())
	}
}

func TestLinearAllocator_AllocateAligned(t *testing.T) {
	a := NewLinearAllocator(1024, 64)
	if _, err := a.AllocateAligned(3, 1); err != nil {
		t.Fatal(err)
	}
	off, err := a.AllocateAligned(8, 16)
	if err != nil {
		t.Fatal(err)
	}
	if off != 16 {
		t.Errorf("AllocateAligned(8, 16) = %d, want 16", off)
	}
	if _, err := a.AllocateAligned(8, 0); !errors.Is(err, ErrInvalidAlignment) {
		t.Errorf("AllocateAligned(8, 0) error = %v, want ErrInvalidAlignment", err)
	}
}

func BenchmarkLinearAllocator_Allocate(b *testing.B) {
	a := NewLinearAllocator(math.MaxUint64, 256)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = a.Allocate(100)
	}
}
