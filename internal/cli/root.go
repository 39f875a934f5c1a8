// Package cli implements the engram command line interface.
package cli

import (
	"engram/internal/config"
	"engram/pkg/logger"

	"github.com/spf13/cobra"
)

// GlobalFlags holds flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

var globalFlags GlobalFlags

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "engram",
		Short: "Engram - hybrid memory search engine",
		Long: `Engram indexes conversational messages and extracted facts into a
local keyword+vector index backed by a cloud store, and answers
hybrid searches local-first with transparent cloud fallback.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			configPath := globalFlags.ConfigPath
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logLevel := cfg.Log.Level
			if globalFlags.Verbose {
				logLevel = "debug"
			}
			if globalFlags.Quiet {
				logLevel = "error"
			}

			return logger.Init(logger.Config{
				Level:  logLevel,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			})
		},
	}

	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "config file path (default ~/.engram/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "errors only")

	rootCmd.AddCommand(
		NewServeCmd(),
		NewSearchCmd(),
		NewResyncCmd(),
		NewStatsCmd(),
		NewVersionCmd(),
	)

	return rootCmd
}
