package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix prefixes environment variables, e.g. PCLOAD_WORKERS.
const envPrefix = "PCLOAD"

// Config is the merged result of flags, environment and config file.
type Config struct {
	Backend    string `mapstructure:"backend"`
	Workers    int    `mapstructure:"workers"`
	Reserve    int    `mapstructure:"reserve"`
	StagingMiB uint64 `mapstructure:"staging-mib"`
	Format     string `mapstructure:"format"`
	Cache      bool   `mapstructure:"cache"`
	LogLevel   string `mapstructure:"log-level"`
}

// addFlags registers the persistent flags shared by every subcommand.
func addFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML config file")
	fs.String("backend", "auto", "device backend: auto, software or wgpu")
	fs.Int("workers", 0, "parse workers (0 = GOMAXPROCS minus --reserve)")
	fs.Int("reserve", 2, "hardware threads left free when --workers is 0")
	fs.Uint64("staging-mib", 64, "staging region size per worker in MiB")
	fs.String("format", "position", "record format: position or position-color")
	fs.Bool("cache", false, "read and write the <file>.data raw cache")
	fs.String("log-level", "warn", "log level: debug, info, warn or error")
}

// loadConfig binds fs to v, reads the optional config file and environment,
// and decodes the result. Flags set on the command line win over the
// environment, which wins over the config file.
func loadConfig(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		bindErr = errors.Join(bindErr, v.BindPFlag(f.Name, f))
	})
	if bindErr != nil {
		return nil, bindErr
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// newLogger returns a text logger writing to w at the configured level.
func (c *Config) newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", c.LogLevel, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
