package pointcloud

import (
	"slices"

	"github.com/gogpu/pointcloud/device"
	"github.com/gogpu/pointcloud/memory"
	"github.com/gogpu/pointcloud/vertex"
)

// Format is the packed record layout written to the device buffer.
type Format = vertex.Format

// Record formats.
const (
	// FormatPosition packs (x, y, z, 1) as four float32 (16 bytes).
	FormatPosition = vertex.FormatPosition

	// FormatPositionColor packs position followed by
	// (r/255, g/255, b/255, intensity) (32 bytes).
	FormatPositionColor = vertex.FormatPositionColor
)

// ParseFormat parses a format name as accepted on the command line.
func ParseFormat(s string) (Format, error) {
	return vertex.ParseFormat(s)
}

// Cloud is a point cloud resident in a device buffer.
//
// A Cloud is immutable. Its buffer lives as long as the device; the heap
// space it occupies is never reclaimed.
type Cloud struct {
	path      string
	format    Format
	alloc     memory.Allocation
	records   uint64
	counts    []uint64
	fromCache bool
}

// BufferView returns the shader-visible description of the records.
func (c *Cloud) BufferView() device.BufferView {
	return device.BufferView{
		Buffer: c.alloc.Buffer,
		Offset: c.alloc.Offset,
		Size:   c.records * c.format.Stride(),
		Stride: c.format.Stride(),
	}
}

// RecordCount returns the number of records in the buffer.
func (c *Cloud) RecordCount() uint64 { return c.records }

// Format returns the record layout.
func (c *Cloud) Format() Format { return c.format }

// Path returns the name the cloud was loaded from.
func (c *Cloud) Path() string { return c.path }

// WorkerCounts returns the number of records each worker produced, in
// worker order.
func (c *Cloud) WorkerCounts() []uint64 { return slices.Clone(c.counts) }

// FromCache reports whether the records came from the raw cache rather
// than from parsing text.
func (c *Cloud) FromCache() bool { return c.fromCache }
