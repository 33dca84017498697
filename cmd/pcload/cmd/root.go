package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Device backends selectable with --backend.
	_ "github.com/gogpu/pointcloud/backend/software"
	_ "github.com/gogpu/pointcloud/backend/wgpu"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	v := viper.New()
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:   "pcload",
		Short: "pcload loads point-cloud text files onto a device.",
		Long: `pcload loads point-cloud text files onto a device.

Every line holds one point, "x y z intensity r g b". Files ending in .zst,
.gz or .lz4 are decompressed first.

Settings can also come from a YAML file passed with --config, or from
environment variables such as PCLOAD_WORKERS and PCLOAD_STAGING_MIB.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(v, cmd.Flags())
			if err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}

	addFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		loadCmd(cfg),
		statsCmd(cfg),
	)

	return cmd
}
