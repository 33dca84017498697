package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/pointcloud"
	"github.com/gogpu/pointcloud/backend"
	"github.com/gogpu/pointcloud/device"
)

// Load files onto a device and print what was uploaded.
func loadCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <file>...",
		Short: "Parse files and upload them to a device buffer.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := cfg.newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			pointcloud.SetLogger(log)

			format, err := pointcloud.ParseFormat(cfg.Format)
			if err != nil {
				return err
			}

			dev, name, err := openBackend(cfg.Backend)
			if err != nil {
				return err
			}
			defer dev.Close()

			l, err := pointcloud.NewLoader(dev,
				pointcloud.WithWorkers(cfg.Workers),
				pointcloud.WithReservedWorkers(cfg.Reserve),
				pointcloud.WithStagingCapacity(cfg.StagingMiB*humanize.MiByte),
				pointcloud.WithFormat(format),
				pointcloud.WithRawCache(cfg.Cache),
			)
			if err != nil {
				return err
			}
			defer l.Close()

			out := cmd.OutOrStdout()
			p := message.NewPrinter(language.English)
			fmt.Fprintf(out, "Backend: %s, %d workers\n", name, l.Workers())
			for _, path := range args {
				start := time.Now()
				c, err := l.Load(path)
				if err != nil {
					return err
				}
				view := c.BufferView()
				source := "text"
				if c.FromCache() {
					source = "cache"
				}
				p.Fprintf(out, "%s: %d %s records, %s at offset %d (%s, %s)\n",
					path, c.RecordCount(), c.Format(), humanize.IBytes(view.Size),
					view.Offset, source, time.Since(start).Round(time.Millisecond))
			}
			fmt.Fprint(out, l.Stats().String())
			return nil
		},
	}
	return cmd
}

// openBackend opens the named backend, or the best available for "auto".
func openBackend(name string) (device.Device, string, error) {
	if name == "" || name == "auto" {
		return backend.OpenDefault()
	}
	dev, err := backend.Open(name)
	if err != nil {
		return nil, "", err
	}
	return dev, name, nil
}
