package staging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/pointcloud/backend/software"
	"github.com/gogpu/pointcloud/memory"
)

func newPool(t *testing.T, workers int, capacity uint64) (*Pool, *software.Device) {
	t.Helper()
	dev := software.New()
	m, err := memory.NewManager(dev, memory.Sizes{UploadBuffer: 1 << 20}, 256)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPool(m, workers, capacity)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	return p, dev
}

func TestPool_OneRegionPerWorker(t *testing.T) {
	p, _ := newPool(t, 4, 1024)
	if p.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", p.Len())
	}
	seen := make(map[uint64]bool)
	for i := range 4 {
		r := p.Region(i)
		if r.Index() != i {
			t.Errorf("Region(%d).Index() = %d", i, r.Index())
		}
		if r.Capacity() != 1024 {
			t.Errorf("Region(%d).Capacity() = %d, want 1024", i, r.Capacity())
		}
		if seen[uint64(r.Buffer())] {
			t.Errorf("Region(%d) shares buffer %d", i, r.Buffer())
		}
		seen[uint64(r.Buffer())] = true
	}
}

func TestPool_DefaultCapacity(t *testing.T) {
	dev := software.New()
	m, err := memory.NewManager(dev, memory.Sizes{UploadBuffer: DefaultCapacity}, 0)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPool(m, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", p.Capacity(), DefaultCapacity)
	}
}

func TestPool_UploadHeapExhausted(t *testing.T) {
	dev := software.New()
	m, err := memory.NewManager(dev, memory.Sizes{UploadBuffer: 2048}, 256)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewPool(m, 3, 1024); !errors.Is(err, memory.ErrCapacityExceeded) {
		t.Errorf("NewPool() error = %v, want ErrCapacityExceeded", err)
	}
}

func TestRegion_WriteFinish(t *testing.T) {
	p, dev := newPool(t, 1, 64)
	r := p.Region(0)

	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Write([]byte("hello ")); err != nil {
		t.Fatal(err)
	}
	b, err := r.Next(5)
	if err != nil {
		t.Fatal(err)
	}
	copy(b, "world")
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}

	if r.Written() != 11 {
		t.Errorf("Written() = %d, want 11", r.Written())
	}
	got, err := dev.ReadBuffer(r.Buffer(), 0, 11)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("hello world")) {
		t.Errorf("region holds %q", got)
	}

	pl := p.Payloads(1)
	if len(pl) != 1 || pl[0].Written != 11 || pl[0].Buffer != r.Buffer() || pl[0].Worker != 0 {
		t.Errorf("Payloads() = %+v", pl)
	}
}

func TestRegion_Overflow(t *testing.T) {
	p, _ := newPool(t, 1, 16)
	r := p.Region(0)
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(16); err != nil {
		t.Fatalf("filling region error = %v", err)
	}
	if _, err := r.Next(1); !errors.Is(err, ErrRegionOverflow) {
		t.Errorf("Next(1) on full region error = %v, want ErrRegionOverflow", err)
	}
	if r.Written() != 16 {
		t.Errorf("Written() = %d after overflow, want 16", r.Written())
	}
}

func TestRegion_States(t *testing.T) {
	p, _ := newPool(t, 1, 16)
	r := p.Region(0)

	if _, err := r.Next(1); !errors.Is(err, ErrRegionNotMapped) {
		t.Errorf("Next before Begin error = %v, want ErrRegionNotMapped", err)
	}
	if err := r.Finish(); !errors.Is(err, ErrRegionNotMapped) {
		t.Errorf("Finish before Begin error = %v, want ErrRegionNotMapped", err)
	}
	if err := r.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := r.Begin(); !errors.Is(err, ErrRegionMapped) {
		t.Errorf("second Begin error = %v, want ErrRegionMapped", err)
	}
}

func TestRegion_ReuseResetsWritten(t *testing.T) {
	p, _ := newPool(t, 2, 32)
	for round := range 2 {
		for i := range 2 {
			r := p.Region(i)
			if err := r.Begin(); err != nil {
				t.Fatalf("round %d: Begin error = %v", round, err)
			}
			if _, err := r.Next(8 * (i + 1)); err != nil {
				t.Fatal(err)
			}
			if err := r.Finish(); err != nil {
				t.Fatal(err)
			}
		}
		if got := p.Written(2); got != 24 {
			t.Errorf("round %d: Written(2) = %d, want 24", round, got)
		}
	}
}

func TestPool_Ensure(t *testing.T) {
	p, _ := newPool(t, 1, 64)
	first := p.Region(0).Buffer()
	if err := p.Ensure(3); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 3 {
		t.Errorf("Len() = %d, want 3", p.Len())
	}
	if p.Region(0).Buffer() != first {
		t.Error("Ensure replaced an existing region")
	}
	if err := p.Ensure(2); err != nil || p.Len() != 3 {
		t.Errorf("Ensure(2) = %v, Len() = %d, want nil, 3", err, p.Len())
	}
}
