package software

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/pointcloud/backend"
	"github.com/gogpu/pointcloud/device"
)

func newUploadAndGPU(t *testing.T, d *Device, size uint64) (device.BufferID, device.BufferID) {
	t.Helper()
	up, err := d.ReserveHeap(device.CategoryUploadBuffer, 1<<20)
	if err != nil {
		t.Fatalf("ReserveHeap(upload) error = %v", err)
	}
	gpu, err := d.ReserveHeap(device.CategoryGPUBuffer, 1<<20)
	if err != nil {
		t.Fatalf("ReserveHeap(gpu) error = %v", err)
	}
	src, err := d.CreatePlacedBuffer(up, 0, size, "src")
	if err != nil {
		t.Fatalf("CreatePlacedBuffer(src) error = %v", err)
	}
	dst, err := d.CreatePlacedBuffer(gpu, 0, size, "dst")
	if err != nil {
		t.Fatalf("CreatePlacedBuffer(dst) error = %v", err)
	}
	return src, dst
}

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendSoftware) {
		t.Fatal("software backend is not registered")
	}
	dev, err := backend.Open(backend.BackendSoftware)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer dev.Close()
	if _, ok := dev.(*Device); !ok {
		t.Errorf("Open() returned %T, want *Device", dev)
	}
}

func TestCreatePlacedBuffer_Bounds(t *testing.T) {
	d := New()
	heap, err := d.ReserveHeap(device.CategoryGPUBuffer, 1024)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.CreatePlacedBuffer(heap, 512, 512, "fits"); err != nil {
		t.Errorf("placing [512, 1024) error = %v", err)
	}
	if _, err := d.CreatePlacedBuffer(heap, 513, 512, "overflows"); !errors.Is(err, device.ErrOutOfRange) {
		t.Errorf("placing [513, 1025) error = %v, want ErrOutOfRange", err)
	}
	if _, err := d.CreatePlacedBuffer(heap+100, 0, 1, "nope"); !errors.Is(err, device.ErrUnknownHeap) {
		t.Errorf("unknown heap error = %v, want ErrUnknownHeap", err)
	}
}

func TestInitialStates(t *testing.T) {
	d := New()
	src, dst := newUploadAndGPU(t, d, 16)

	if s, _ := d.State(src); s != device.StateGenericRead {
		t.Errorf("upload buffer state = %s, want GenericRead", s)
	}
	if s, _ := d.State(dst); s != device.StateCommon {
		t.Errorf("gpu buffer state = %s, want Common", s)
	}
}

func TestMapBuffer(t *testing.T) {
	d := New()
	src, dst := newUploadAndGPU(t, d, 16)

	if _, err := d.MapBuffer(dst); !errors.Is(err, device.ErrNotHostVisible) {
		t.Errorf("MapBuffer(gpu) error = %v, want ErrNotHostVisible", err)
	}

	view, err := d.MapBuffer(src)
	if err != nil {
		t.Fatalf("MapBuffer(upload) error = %v", err)
	}
	if len(view) != 16 {
		t.Errorf("len(view) = %d, want 16", len(view))
	}
	if _, err := d.MapBuffer(src); !errors.Is(err, device.ErrInvalidState) {
		t.Errorf("double MapBuffer error = %v, want ErrInvalidState", err)
	}
	if err := d.UnmapBuffer(src, 17); !errors.Is(err, device.ErrOutOfRange) {
		t.Errorf("UnmapBuffer(17) error = %v, want ErrOutOfRange", err)
	}
	if err := d.UnmapBuffer(src, 16); err != nil {
		t.Errorf("UnmapBuffer(16) error = %v", err)
	}
	if err := d.UnmapBuffer(src, 0); !errors.Is(err, device.ErrInvalidState) {
		t.Errorf("UnmapBuffer on unmapped error = %v, want ErrInvalidState", err)
	}
}

func TestQueue_CopyWithTransitions(t *testing.T) {
	d := New()
	src, dst := newUploadAndGPU(t, d, 8)

	view, _ := d.MapBuffer(src)
	copy(view, []byte("abcdefgh"))
	_ = d.UnmapBuffer(src, 8)

	q := d.SoftwareQueue()
	q.Transition(dst, device.StateCommon, device.StateCopyDest)
	q.RecordCopy(src, dst, 4, 2)
	q.Transition(dst, device.StateCopyDest, device.StateCommon)
	if err := q.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := q.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	got, err := d.ReadBuffer(dst, 0, 8)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0, 0, 'a', 'b', 'c', 'd', 0, 0}; !bytes.Equal(got, want) {
		t.Errorf("dst = %q, want %q", got, want)
	}
	if n := len(q.History()); n != 3 {
		t.Errorf("len(History()) = %d, want 3", n)
	}
	if q.Submits() != 1 {
		t.Errorf("Submits() = %d, want 1", q.Submits())
	}
}

func TestQueue_CopyRequiresCopyDest(t *testing.T) {
	d := New()
	src, dst := newUploadAndGPU(t, d, 8)

	q := d.Queue()
	q.RecordCopy(src, dst, 8, 0)
	if err := q.Submit(); !errors.Is(err, device.ErrInvalidState) {
		t.Errorf("Submit() error = %v, want ErrInvalidState", err)
	}
	if err := q.WaitIdle(); !errors.Is(err, device.ErrInvalidState) {
		t.Errorf("WaitIdle() error = %v, want ErrInvalidState", err)
	}
}

func TestQueue_TransitionMismatch(t *testing.T) {
	d := New()
	_, dst := newUploadAndGPU(t, d, 8)

	q := d.Queue()
	q.Transition(dst, device.StateShaderResource, device.StateCopyDest)
	if err := q.Submit(); !errors.Is(err, device.ErrInvalidTransition) {
		t.Errorf("Submit() error = %v, want ErrInvalidTransition", err)
	}
}

func TestQueue_CopyOutOfRange(t *testing.T) {
	d := New()
	src, dst := newUploadAndGPU(t, d, 8)

	q := d.Queue()
	q.Transition(dst, device.StateCommon, device.StateCopyDest)
	q.RecordCopy(src, dst, 8, 1)
	if err := q.Submit(); !errors.Is(err, device.ErrOutOfRange) {
		t.Errorf("Submit() error = %v, want ErrOutOfRange", err)
	}
}

func TestClose(t *testing.T) {
	d := New()
	src, _ := newUploadAndGPU(t, d, 8)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ReadBuffer(src, 0, 1); !errors.Is(err, device.ErrClosed) {
		t.Errorf("ReadBuffer after Close error = %v, want ErrClosed", err)
	}
	if _, err := d.ReserveHeap(device.CategoryTexture, 1); !errors.Is(err, device.ErrClosed) {
		t.Errorf("ReserveHeap after Close error = %v, want ErrClosed", err)
	}
}
