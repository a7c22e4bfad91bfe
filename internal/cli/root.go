// Package cli wires the voxcoach commands.
package cli

import (
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/voxcoach/voxcoach/internal/config"
	"github.com/voxcoach/voxcoach/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voxcoach",
		Short: "voxcoach: voice coaching calls over a self-hosted gateway",
		Long:  "voxcoach runs phone-style AI coaching calls: a gateway server that turns transcripts into spoken replies, and a call client that listens, transcribes, and plays them back.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.voxcoach/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCallCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads and validates the config file, applying the shared
// log-level flag on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// openLogger rebuilds the process logger from the loaded config. With a
// file configured the logger tees JSON lines into it; otherwise the format
// knob picks console or JSON stderr output. The closer is nil when no file
// is open.
func openLogger(cfg config.LoggingConfig) (io.Closer, error) {
	level := cfg.Level
	if level == "" {
		level = "info"
	}

	if cfg.File != "" {
		path := cfg.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(paths.Logs, path)
		}
		l, closer, err := logging.OpenFile(path, level)
		if err != nil {
			return nil, err
		}
		log = l
		return closer, nil
	}

	if cfg.Format == "json" {
		log = logging.NewJSON(nil, level)
	} else {
		log = logging.New(nil, level)
	}
	return nil, nil
}

func validateConfig(cfg *config.Config) error {
	issues := config.Validate(cfg)
	if len(issues) == 0 {
		return nil
	}
	for _, issue := range issues {
		log.Error().Str("path", issue.Path).Msg(issue.Message)
	}
	return &config.ConfigError{Message: "config validation failed"}
}
