// Package partition splits a text buffer into line-aligned byte ranges, one
// per worker.
package partition

import "fmt"

// LineTerminator is the byte that ends a record.
const LineTerminator = '\n'

// ByteRange is a half-open interval [Start, End) over the input buffer.
type ByteRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of bytes in the range.
func (r ByteRange) Len() uint64 {
	return r.End - r.Start
}

// Empty reports whether the range holds no bytes.
func (r ByteRange) Empty() bool {
	return r.End <= r.Start
}

// String returns a human-readable form of the range.
func (r ByteRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Split divides data into exactly workers contiguous, non-overlapping ranges
// that together cover [0, len(data)).
//
// Each naive boundary i*len(data)/workers is moved forward to the first
// position whose preceding byte is a line terminator, so no line is shared
// between two workers. Boundaries that run off the end of the data collapse
// onto len(data), which can leave trailing workers with empty ranges.
//
// workers values below 1 are treated as 1.
func Split(data []byte, workers int) []ByteRange {
	if workers < 1 {
		workers = 1
	}

	size := uint64(len(data))
	chunk := size / uint64(workers)

	ranges := make([]ByteRange, workers)
	start := uint64(0)
	for i := range workers {
		end := size
		if i < workers-1 {
			end = alignForward(data, uint64(i+1)*chunk)
		}
		// Keep boundaries monotonic when an earlier line swallowed this chunk.
		if end < start {
			end = start
		}
		ranges[i] = ByteRange{Start: start, End: end}
		start = end
	}
	return ranges
}

// alignForward returns the smallest position p >= pos such that p is 0,
// len(data), or data[p-1] is a line terminator.
func alignForward(data []byte, pos uint64) uint64 {
	size := uint64(len(data))
	if pos == 0 {
		return 0
	}
	for pos < size && data[pos-1] != LineTerminator {
		pos++
	}
	if pos > size {
		return size
	}
	return pos
}

// Validate checks that ranges cover [0, size) exactly, without gaps or
// overlaps, and that every internal boundary follows a line terminator.
func Validate(data []byte, ranges []ByteRange) error {
	size := uint64(len(data))
	if len(ranges) == 0 {
		return fmt.Errorf("partition: no ranges")
	}
	if ranges[0].Start != 0 {
		return fmt.Errorf("partition: first range starts at %d, want 0", ranges[0].Start)
	}
	for i, r := range ranges {
		if r.End < r.Start {
			return fmt.Errorf("partition: range %d %s is inverted", i, r)
		}
		if i > 0 && r.Start != ranges[i-1].End {
			return fmt.Errorf("partition: range %d %s does not follow %s", i, r, ranges[i-1])
		}
		if r.Start > 0 && r.Start < size && data[r.Start-1] != LineTerminator {
			return fmt.Errorf("partition: range %d %s does not start on a line boundary", i, r)
		}
	}
	if last := ranges[len(ranges)-1]; last.End != size {
		return fmt.Errorf("partition: last range ends at %d, want %d", last.End, size)
	}
	return nil
}
