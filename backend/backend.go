package backend

import (
	"errors"

	"github.com/gogpu/pointcloud/device"
)

// Backend name constants.
const (
	// BackendSoftware is the name of the host-memory device.
	BackendSoftware = "software"
	// BackendWGPU is the name of the Pure Go GPU device (gogpu/wgpu HAL).
	BackendWGPU = "wgpu"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered
	// or cannot open a device.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Factory opens a new device.
type Factory func() (device.Device, error)
