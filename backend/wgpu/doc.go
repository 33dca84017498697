// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements device.Device on the gogpu/wgpu HAL.
//
// The device either opens its own Vulkan device (New) or shares one owned
// by the host application (NewWithHAL, NewFromProvider). Shared devices are
// never destroyed by Close.
//
// # Heaps and placed buffers
//
// WebGPU has no explicit heaps. A heap here is a capacity budget per
// category; each placed buffer becomes its own HAL buffer, while the offset
// the memory manager chose is kept for reporting. Texture and render-target
// heaps can be reserved but hold no buffers.
//
// # Upload buffers
//
// Upload buffers are host-visible through a shadow slice. MapBuffer returns
// the shadow and UnmapBuffer writes the first written bytes to the HAL
// buffer with Queue.WriteBuffer.
//
// # Queue
//
// Transitions and copies are validated against tracked buffer states, then
// encoded into one command buffer per Submit. WaitIdle polls the HAL queue
// until the last submission has completed.
package wgpu
