// Package upload copies filled staging regions into a device buffer.
package upload

import (
	"errors"
	"fmt"

	"github.com/gogpu/pointcloud/device"
	"github.com/gogpu/pointcloud/internal/staging"
)

// ErrDestinationTooSmall is returned when the payloads do not fit in the
// destination buffer.
var ErrDestinationTooSmall = errors.New("upload: destination smaller than payloads")

// Destination is the buffer payloads are copied into.
type Destination struct {
	Buffer device.BufferID
	Size   uint64

	// State is the state the buffer is in before the upload and is returned
	// to afterwards.
	State device.ResourceState
}

// TotalBytes returns the sum of the payloads' written bytes.
func TotalBytes(payloads []staging.Payload) uint64 {
	var total uint64
	for _, p := range payloads {
		total += p.Written
	}
	return total
}

// Upload copies every payload into dst in slice order, each at the running
// sum of the preceding payloads' sizes. The copies are wrapped in one
// transition pair around dst, submitted once, and waited on before Upload
// returns. Empty payloads record no copy.
//
// It returns the number of bytes copied.
func Upload(q device.Queue, payloads []staging.Payload, dst Destination) (uint64, error) {
	total := TotalBytes(payloads)
	if total > dst.Size {
		return 0, fmt.Errorf("%w: %d bytes into %d", ErrDestinationTooSmall, total, dst.Size)
	}

	q.Transition(dst.Buffer, dst.State, device.StateCopyDest)
	var offset uint64
	for _, p := range payloads {
		if p.Written == 0 {
			continue
		}
		q.RecordCopy(p.Buffer, dst.Buffer, p.Written, offset)
		offset += p.Written
	}
	q.Transition(dst.Buffer, device.StateCopyDest, dst.State)

	if err := q.Submit(); err != nil {
		_ = q.WaitIdle()
		return 0, fmt.Errorf("upload: submit: %w", err)
	}
	if err := q.WaitIdle(); err != nil {
		return 0, fmt.Errorf("upload: wait: %w", err)
	}
	return offset, nil
}
