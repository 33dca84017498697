package pointcloud

import (
	"errors"

	"github.com/gogpu/pointcloud/internal/upload"
	"github.com/gogpu/pointcloud/vertex"
)

// Loader errors.
var (
	// ErrEmptyCloud is returned when an input yields no records.
	ErrEmptyCloud = errors.New("pointcloud: no records parsed")

	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("pointcloud: loader closed")

	// ErrDestinationTooSmall is returned when the staged records do not fit
	// the destination buffer.
	ErrDestinationTooSmall = upload.ErrDestinationTooSmall

	// ErrUnknownFormat is returned for an undefined record format.
	ErrUnknownFormat = vertex.ErrUnknownFormat
)
