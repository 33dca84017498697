// Package backend is the registry of device backends.
//
// Backends register a Factory from an init() function and are opened by
// name at runtime:
//
//	import (
//		"github.com/gogpu/pointcloud/backend"
//		_ "github.com/gogpu/pointcloud/backend/software"
//		_ "github.com/gogpu/pointcloud/backend/wgpu"
//	)
//
//	dev, name, err := backend.OpenDefault()
//
// # Available Backends
//
//   - "wgpu": Pure Go GPU device on gogpu/wgpu HAL (preferred)
//   - "software": host-memory device, always available
package backend
