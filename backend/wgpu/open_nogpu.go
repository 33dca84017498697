// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/pointcloud/backend"
)

// New always fails in nogpu builds; use NewWithHAL or the software backend.
func New() (*Device, error) {
	return nil, fmt.Errorf("%w: wgpu: built with nogpu", backend.ErrBackendNotAvailable)
}
