package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gogpu/pointcloud/backend/software"
	"github.com/gogpu/pointcloud/device"
	"github.com/gogpu/pointcloud/internal/parallel"
	"github.com/gogpu/pointcloud/internal/partition"
	"github.com/gogpu/pointcloud/internal/staging"
	"github.com/gogpu/pointcloud/memory"
	"github.com/gogpu/pointcloud/vertex"
)

// synthetic returns n well-formed lines whose position is (i, -i/2, i/4).
func synthetic(n int) []byte {
	var sb strings.Builder
	for i := range n {
		fmt.Fprintf(&sb, "%d %.1f %.2f 0 255 128 0\n", i, -float64(i)/2, float64(i)/4)
	}
	return []byte(sb.String())
}

type fixture struct {
	dev     *software.Device
	pool    *parallel.WorkerPool
	regions *staging.Pool
}

func newFixture(t *testing.T, workers int, capacity uint64) *fixture {
	t.Helper()
	dev := software.New()
	m, err := memory.NewManager(dev, memory.Sizes{UploadBuffer: 64 << 20}, 256)
	if err != nil {
		t.Fatal(err)
	}
	regions, err := staging.NewPool(m, workers, capacity)
	if err != nil {
		t.Fatal(err)
	}
	pool := parallel.NewWorkerPool(workers)
	t.Cleanup(pool.Close)
	return &fixture{dev: dev, pool: pool, regions: regions}
}

func (f *fixture) records(t *testing.T, i int, format vertex.Format) []vertex.Vertex {
	t.Helper()
	r := f.regions.Region(i)
	raw, err := f.dev.ReadBuffer(r.Buffer(), 0, r.Written())
	if err != nil {
		t.Fatal(err)
	}
	return vertex.DecodeAll(raw, format)
}

func TestRun_EndToEnd(t *testing.T) {
	const lines = 1000
	data := synthetic(lines)
	f := newFixture(t, 4, 1<<20)
	ranges := partition.Split(data, 4)

	res, err := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil).Run(data, ranges)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Total != lines {
		t.Fatalf("Total = %d, want %d", res.Total, lines)
	}
	var sum uint64
	for _, c := range res.Counts {
		sum += c
	}
	if sum != res.Total {
		t.Errorf("sum(Counts) = %d, Total = %d", sum, res.Total)
	}
	if res.Bytes != lines*16 {
		t.Errorf("Bytes = %d, want %d", res.Bytes, lines*16)
	}

	// Worker order concatenation must reproduce file order.
	next := 0
	for w := range ranges {
		for _, v := range f.records(t, w, vertex.FormatPosition) {
			want := [4]float32{float32(next), -float32(next) / 2, float32(next) / 4, 1}
			if [4]float32(v.Position) != want {
				t.Fatalf("record %d (worker %d) = %v, want %v", next, w, v.Position, want)
			}
			next++
		}
	}
	if next != lines {
		t.Errorf("decoded %d records, want %d", next, lines)
	}
}

func TestRun_PositionColor(t *testing.T) {
	data := []byte("1 2 3 0.5 255 0 51\n")
	f := newFixture(t, 1, 1024)

	res, err := NewCoordinator(f.pool, f.regions, vertex.FormatPositionColor, nil).Run(data, partition.Split(data, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Bytes != 32 {
		t.Fatalf("Total = %d Bytes = %d, want 1 and 32", res.Total, res.Bytes)
	}
	v := f.records(t, 0, vertex.FormatPositionColor)[0]
	if v.Color != [4]float32{1, 0, 0.2, 0.5} {
		t.Errorf("Color = %v", v.Color)
	}
}

func TestRun_MalformedLineTruncates(t *testing.T) {
	data := []byte("1 1 1 0 0 0 0\n" +
		"2 2 2 0 0 0 0\n" +
		"3 3 3 0 0 0 0\n" +
		"4 4 4 0 0\n" +
		"5 5 5 0 0 0 0\n")
	f := newFixture(t, 1, 1024)

	res, err := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil).Run(data, partition.Split(data, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 || res.Counts[0] != 3 {
		t.Errorf("Total = %d Counts = %v, want 3 records before the short line", res.Total, res.Counts)
	}
}

func TestRun_MalformedOnlyAffectsItsPartition(t *testing.T) {
	good := "1 1 1 0 0 0 0\n"
	data := []byte(strings.Repeat(good, 4) + "9 9\n" + strings.Repeat(good, 4))
	ranges := []partition.ByteRange{
		{Start: 0, End: uint64(4 * len(good))},
		{Start: uint64(4 * len(good)), End: uint64(len(data))},
	}
	f := newFixture(t, 2, 1024)

	res, err := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil).Run(data, ranges)
	if err != nil {
		t.Fatal(err)
	}
	if res.Counts[0] != 4 || res.Counts[1] != 0 {
		t.Errorf("Counts = %v, want [4 0]", res.Counts)
	}
}

func TestRun_NoTrailingNewline(t *testing.T) {
	data := []byte("1 2 3 0 0 0 0\n4 5 6 0 0 0 0")
	f := newFixture(t, 2, 1024)

	res, err := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil).Run(data, partition.Split(data, 2))
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Total)
	}
}

func TestRun_Idempotent(t *testing.T) {
	data := synthetic(257)
	f := newFixture(t, 3, 1<<20)
	c := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil)
	ranges := partition.Split(data, 3)

	first, err := c.Run(data, ranges)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Run(data, ranges)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first.Counts {
		if first.Counts[i] != second.Counts[i] {
			t.Errorf("worker %d: %d then %d records", i, first.Counts[i], second.Counts[i])
		}
	}
	if first.Bytes != second.Bytes {
		t.Errorf("Bytes = %d then %d", first.Bytes, second.Bytes)
	}
}

func TestRun_StagingOverflow(t *testing.T) {
	data := synthetic(10)
	f := newFixture(t, 1, 64) // room for 4 records

	res, err := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil).Run(data, partition.Split(data, 1))
	if !errors.Is(err, staging.ErrRegionOverflow) {
		t.Fatalf("Run() error = %v, want ErrRegionOverflow", err)
	}
	if res.Counts[0] != 4 {
		t.Errorf("Counts[0] = %d, want 4", res.Counts[0])
	}
	// The region was unmapped despite the failure.
	if _, err := f.dev.MapBuffer(f.regions.Region(0).Buffer()); err != nil {
		t.Errorf("region left mapped: %v", err)
	}
}

func TestRun_TooManyRanges(t *testing.T) {
	data := synthetic(10)
	f := newFixture(t, 1, 1024)

	_, err := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil).Run(data, partition.Split(data, 2))
	if !errors.Is(err, ErrTooManyRanges) {
		t.Errorf("Run() error = %v, want ErrTooManyRanges", err)
	}
}

func TestRun_DeviceMapFailure(t *testing.T) {
	data := synthetic(10)
	f := newFixture(t, 1, 1024)
	_ = f.dev.Close()

	_, err := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil).Run(data, partition.Split(data, 1))
	if !errors.Is(err, device.ErrClosed) {
		t.Errorf("Run() error = %v, want device.ErrClosed", err)
	}
}

func TestCopy(t *testing.T) {
	data := synthetic(10)
	f := newFixture(t, 3, 1024)
	c := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil)

	// Pack the text once through a single region to get a reference payload.
	if _, err := c.Run(data, partition.Split(data, 1)); err != nil {
		t.Fatal(err)
	}
	payload, err := f.dev.ReadBuffer(f.regions.Region(0).Buffer(), 0, f.regions.Region(0).Written())
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.Copy(payload, 3)
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if res.Total != 10 {
		t.Errorf("Total = %d, want 10", res.Total)
	}
	wantCounts := []uint64{4, 4, 2}
	for i, want := range wantCounts {
		if res.Counts[i] != want {
			t.Errorf("Counts[%d] = %d, want %d", i, res.Counts[i], want)
		}
	}
	if res.Bytes != uint64(len(payload)) {
		t.Errorf("Bytes = %d, want %d", res.Bytes, len(payload))
	}

	var joined []byte
	for i := range 3 {
		r := f.regions.Region(i)
		raw, err := f.dev.ReadBuffer(r.Buffer(), 0, r.Written())
		if err != nil {
			t.Fatal(err)
		}
		joined = append(joined, raw...)
	}
	if !bytes.Equal(joined, payload) {
		t.Error("regions in worker order do not reproduce the payload")
	}
}

func TestCopy_IgnoresPartialRecord(t *testing.T) {
	f := newFixture(t, 2, 1024)
	payload := make([]byte, 3*16+5)

	res, err := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil).Copy(payload, 2)
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if res.Total != 3 || res.Bytes != 3*16 {
		t.Errorf("Copy() = %d records, %d bytes; want 3, 48", res.Total, res.Bytes)
	}
}

func TestCopy_Errors(t *testing.T) {
	f := newFixture(t, 2, 32)
	c := NewCoordinator(f.pool, f.regions, vertex.FormatPosition, nil)

	if _, err := c.Copy(make([]byte, 16), 3); !errors.Is(err, ErrTooManyRanges) {
		t.Errorf("Copy(3 workers) error = %v, want ErrTooManyRanges", err)
	}
	// 6 records over 2 regions of 2 records each.
	if _, err := c.Copy(make([]byte, 6*16), 2); !errors.Is(err, staging.ErrRegionOverflow) {
		t.Errorf("Copy(overflow) error = %v, want ErrRegionOverflow", err)
	}
}

func TestCount(t *testing.T) {
	data := synthetic(100)
	pool := parallel.NewWorkerPool(4)
	defer pool.Close()

	res := NewCoordinator(pool, nil, vertex.FormatPositionColor, nil).Count(data, partition.Split(data, 4))
	if res.Total != 100 {
		t.Errorf("Total = %d, want 100", res.Total)
	}
	if len(res.Counts) != 4 {
		t.Errorf("len(Counts) = %d, want 4", len(res.Counts))
	}
	if res.Bytes != 100*32 {
		t.Errorf("Bytes = %d, want %d", res.Bytes, 100*32)
	}
}

func BenchmarkRun(b *testing.B) {
	data := synthetic(100_000)
	dev := software.New()
	m, _ := memory.NewManager(dev, memory.Sizes{UploadBuffer: 64 << 20}, 0)
	regions, _ := staging.NewPool(m, 4, 8<<20)
	pool := parallel.NewWorkerPool(4)
	defer pool.Close()
	c := NewCoordinator(pool, regions, vertex.FormatPosition, nil)
	ranges := partition.Split(data, 4)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Run(data, ranges); err != nil {
			b.Fatal(err)
		}
	}
}
