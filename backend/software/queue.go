package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/pointcloud/device"
)

// OpKind identifies a recorded queue operation.
type OpKind int

// Queue operation kinds.
const (
	OpCopy OpKind = iota
	OpTransition
)

// Op is one recorded queue operation.
type Op struct {
	Kind OpKind

	// Copy fields.
	Src       device.BufferID
	Dst       device.BufferID
	Size      uint64
	DstOffset uint64

	// Transition fields (Dst holds the resource).
	From device.ResourceState
	To   device.ResourceState
}

// Queue executes recorded copies and transitions synchronously on Submit.
type Queue struct {
	dev *Device

	mu       sync.Mutex
	pending  []Op
	executed []Op
	submits  int
	err      error
}

// RecordCopy records a buffer-to-buffer copy.
func (q *Queue) RecordCopy(src, dst device.BufferID, size, dstOffset uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, Op{Kind: OpCopy, Src: src, Dst: dst, Size: size, DstOffset: dstOffset})
}

// Transition records a state change.
func (q *Queue) Transition(id device.BufferID, from, to device.ResourceState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, Op{Kind: OpTransition, Dst: id, From: from, To: to})
}

// Submit runs every pending operation in order. It stops at the first
// failing operation and returns its error; the remaining operations are
// dropped.
func (q *Queue) Submit() error {
	q.mu.Lock()
	ops := q.pending
	q.pending = nil
	q.submits++
	q.mu.Unlock()

	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()

	for i, op := range ops {
		if err := q.dev.executeLocked(op); err != nil {
			err = fmt.Errorf("software: submit op %d: %w", i, err)
			q.mu.Lock()
			q.err = err
			q.mu.Unlock()
			return err
		}
		q.mu.Lock()
		q.executed = append(q.executed, op)
		q.mu.Unlock()
	}
	return nil
}

// WaitIdle returns the error of the last failed submission, if any.
// Work is already complete when Submit returns.
func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.err
	q.err = nil
	return err
}

// History returns the operations executed so far.
func (q *Queue) History() []Op {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Op(nil), q.executed...)
}

// Submits returns the number of Submit calls.
func (q *Queue) Submits() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submits
}

func (d *Device) executeLocked(op Op) error {
	switch op.Kind {
	case OpTransition:
		b, err := d.lookupLocked(op.Dst)
		if err != nil {
			return err
		}
		if b.state != op.From {
			return fmt.Errorf("%w: %q is %s, transition expects %s",
				device.ErrInvalidTransition, b.label, b.state, op.From)
		}
		b.state = op.To
		return nil

	case OpCopy:
		src, err := d.lookupLocked(op.Src)
		if err != nil {
			return err
		}
		dst, err := d.lookupLocked(op.Dst)
		if err != nil {
			return err
		}
		if dst.state != device.StateCopyDest {
			return fmt.Errorf("%w: copy into %q in state %s", device.ErrInvalidState, dst.label, dst.state)
		}
		if src.state != device.StateGenericRead && src.state != device.StateCopySource {
			return fmt.Errorf("%w: copy from %q in state %s", device.ErrInvalidState, src.label, src.state)
		}
		if src.mapped {
			return fmt.Errorf("%w: copy from mapped %q", device.ErrInvalidState, src.label)
		}
		if op.Size > uint64(len(src.data)) {
			return fmt.Errorf("%w: copy %d bytes from %q of %d", device.ErrOutOfRange, op.Size, src.label, len(src.data))
		}
		end := op.DstOffset + op.Size
		if end < op.DstOffset || end > uint64(len(dst.data)) {
			return fmt.Errorf("%w: copy to [%d, %d) in %q of %d",
				device.ErrOutOfRange, op.DstOffset, end, dst.label, len(dst.data))
		}
		copy(dst.data[op.DstOffset:end], src.data[:op.Size])
		return nil

	default:
		return fmt.Errorf("%w: op kind %d", device.ErrUnsupported, op.Kind)
	}
}
