// Package pointcloud loads large plain-text point clouds into a device
// buffer.
//
// # Overview
//
// A point-cloud file holds one point per line, typically
//
//	x y z intensity r g b
//
// separated by any non-numeric bytes. Loading runs in two phases. First the
// file is split into line-aligned byte ranges, one per worker, and every
// worker lexes its range into packed records in its own host-visible
// staging region. Once all workers have finished, the total size is known,
// a device buffer of exactly that size is placed in the GPU-buffer heap, and
// every staging region is copied into it in worker order.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/pointcloud"
//		"github.com/gogpu/pointcloud/backend"
//		_ "github.com/gogpu/pointcloud/backend/software"
//		_ "github.com/gogpu/pointcloud/backend/wgpu"
//	)
//
//	dev, _, err := backend.OpenDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	l, err := pointcloud.NewLoader(dev, pointcloud.WithRawCache(true))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer l.Close()
//
//	cloud, err := l.Load("scan.txt")
//	if err != nil {
//		log.Fatal(err)
//	}
//	view := cloud.BufferView() // hand to the renderer
//
// # Input rules
//
// Numbers are decimal with an optional leading '-' and an optional '.'.
// Exponents are not supported. A line with fewer than seven numbers ends
// its worker's range: that line and the rest of the range are dropped
// without an error. Files ending in .zst, .gz or .lz4 are decompressed
// before parsing.
//
// # Raw cache
//
// With WithRawCache, the packed records of a successful text load are
// written next to the input as <path>.data. Later loads of the same path
// and format upload the cache directly and skip parsing.
//
// # Record order
//
// Records appear in the device buffer in worker order, which is file order
// because every worker owns a contiguous range of lines.
package pointcloud
