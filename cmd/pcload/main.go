// Command pcload loads point-cloud text files onto a device and reports
// what was uploaded.
package main

import (
	"os"

	"github.com/gogpu/pointcloud/cmd/pcload/cmd"
)

// Config is handled by cmd/config.go
func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
