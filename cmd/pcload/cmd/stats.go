package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/pointcloud"
	"github.com/gogpu/pointcloud/internal/ingest"
	"github.com/gogpu/pointcloud/internal/parallel"
	"github.com/gogpu/pointcloud/internal/partition"
	"github.com/gogpu/pointcloud/internal/source"
)

// Parse files without a device and print per-worker record counts.
func statsCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <file>...",
		Short: "Parse files and print record counts without uploading.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := cfg.newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			format, err := pointcloud.ParseFormat(cfg.Format)
			if err != nil {
				return err
			}

			workers := cfg.Workers
			if workers <= 0 {
				workers = parallel.DefaultWorkers(cfg.Reserve)
			}
			pool := parallel.NewWorkerPool(workers)
			defer pool.Close()
			coord := ingest.NewCoordinator(pool, nil, format, log)

			out := cmd.OutOrStdout()
			p := message.NewPrinter(language.English)
			for _, path := range args {
				in, err := source.Open(path)
				if err != nil {
					return err
				}
				ranges := partition.Split(in.Data, workers)
				res := coord.Count(in.Data, ranges)

				p.Fprintf(out, "%s: %d records, %s packed as %s (%s input)\n",
					path, res.Total, humanize.IBytes(res.Bytes), format, humanize.IBytes(uint64(len(in.Data))))
				for i, r := range ranges {
					p.Fprintf(out, "  worker %d: %d records in %s\n", i, res.Counts[i], r)
				}
				if err := in.Close(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}
