// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pointcloud/device"
)

type opKind int

const (
	opCopy opKind = iota
	opTransition
)

type op struct {
	kind      opKind
	src, dst  device.BufferID
	size      uint64
	dstOffset uint64
	from, to  device.ResourceState
}

// Queue records copies and transitions and encodes them on Submit.
type Queue struct {
	dev *Device

	mu      sync.Mutex
	pending []op

	// submission and cmdBuf belong to the last submission; cmdBuf is
	// freed by WaitIdle.
	submission uint64
	cmdBuf     hal.CommandBuffer
	submits    int
}

// RecordCopy records a buffer-to-buffer copy.
func (q *Queue) RecordCopy(src, dst device.BufferID, size, dstOffset uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, op{kind: opCopy, src: src, dst: dst, size: size, dstOffset: dstOffset})
}

// Transition records a state change.
func (q *Queue) Transition(id device.BufferID, from, to device.ResourceState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, op{kind: opTransition, dst: id, from: from, to: to})
}

// stateUsage maps a resource state to the buffer usage a barrier uses.
func stateUsage(s device.ResourceState) gputypes.BufferUsage {
	switch s {
	case device.StateCopyDest:
		return gputypes.BufferUsageCopyDst
	case device.StateCopySource, device.StateGenericRead:
		return gputypes.BufferUsageCopySrc
	case device.StateShaderResource:
		return gputypes.BufferUsageStorage
	default:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageVertex
	}
}

// Submit validates every pending operation against the tracked buffer
// states, encodes them into one command buffer and submits it. Nothing is
// submitted if any operation is invalid. A previous submission that was not
// waited on is waited on first.
func (q *Queue) Submit() error {
	if err := q.WaitIdle(); err != nil {
		return err
	}

	q.mu.Lock()
	ops := q.pending
	q.pending = nil
	q.submits++
	q.mu.Unlock()

	d := q.dev
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "upload"})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("upload"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	if err := d.encode(encoder, ops); err != nil {
		encoder.DiscardEncoding()
		return err
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	idx, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("wgpu: submit: %w", err)
	}

	q.mu.Lock()
	q.submission, q.cmdBuf = idx, cmdBuf
	q.mu.Unlock()
	return nil
}

// encode validates ops and records them. Tracked states are only updated
// when every op is valid.
func (d *Device) encode(encoder hal.CommandEncoder, ops []op) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	states := make(map[device.BufferID]device.ResourceState)
	stateOf := func(id device.BufferID, b *buffer) device.ResourceState {
		if s, ok := states[id]; ok {
			return s
		}
		return b.state
	}

	for i, o := range ops {
		switch o.kind {
		case opTransition:
			b, err := d.lookupLocked(o.dst)
			if err != nil {
				return fmt.Errorf("wgpu: submit op %d: %w", i, err)
			}
			if cur := stateOf(o.dst, b); cur != o.from {
				return fmt.Errorf("wgpu: submit op %d: %w: %q is %s, transition expects %s",
					i, device.ErrInvalidTransition, b.label, cur, o.from)
			}
			states[o.dst] = o.to
			encoder.TransitionBuffers([]hal.BufferBarrier{{
				Buffer: b.hal,
				Usage: hal.BufferUsageTransition{
					OldUsage: stateUsage(o.from),
					NewUsage: stateUsage(o.to),
				},
			}})

		case opCopy:
			src, err := d.lookupLocked(o.src)
			if err != nil {
				return fmt.Errorf("wgpu: submit op %d: %w", i, err)
			}
			dst, err := d.lookupLocked(o.dst)
			if err != nil {
				return fmt.Errorf("wgpu: submit op %d: %w", i, err)
			}
			if s := stateOf(o.dst, dst); s != device.StateCopyDest {
				return fmt.Errorf("wgpu: submit op %d: %w: copy into %q in state %s",
					i, device.ErrInvalidState, dst.label, s)
			}
			if s := stateOf(o.src, src); s != device.StateGenericRead && s != device.StateCopySource {
				return fmt.Errorf("wgpu: submit op %d: %w: copy from %q in state %s",
					i, device.ErrInvalidState, src.label, s)
			}
			if src.mapped {
				return fmt.Errorf("wgpu: submit op %d: %w: copy from mapped %q", i, device.ErrInvalidState, src.label)
			}
			end := o.dstOffset + o.size
			if o.size > src.size || end < o.dstOffset || end > dst.size {
				return fmt.Errorf("wgpu: submit op %d: %w: copy %d bytes to [%d, %d) in %q of %d",
					i, device.ErrOutOfRange, o.size, o.dstOffset, end, dst.label, dst.size)
			}
			if o.size%copyAlignment != 0 || o.dstOffset%copyAlignment != 0 {
				return fmt.Errorf("wgpu: submit op %d: %w: copy size and offset must be multiples of %d",
					i, device.ErrUnsupported, copyAlignment)
			}
			encoder.CopyBufferToBuffer(src.hal, dst.hal, []hal.BufferCopy{{
				SrcOffset: 0,
				DstOffset: o.dstOffset,
				Size:      o.size,
			}})

		default:
			return fmt.Errorf("wgpu: submit op %d: %w: kind %d", i, device.ErrUnsupported, o.kind)
		}
	}

	for id, s := range states {
		d.buffers[id].state = s
	}
	return nil
}

// WaitIdle waits for the last submission to complete.
func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	idx, cmdBuf := q.submission, q.cmdBuf
	q.submission, q.cmdBuf = 0, nil
	q.mu.Unlock()

	if cmdBuf == nil {
		return nil
	}
	d := q.dev
	defer d.device.FreeCommandBuffer(cmdBuf)
	return d.waitSubmission(idx)
}

// Submits returns the number of Submit calls.
func (q *Queue) Submits() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submits
}
