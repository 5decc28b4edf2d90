// Package cli is the dasladen command tree.
package cli

import (
	"github.com/spf13/cobra"

	"dasladen/internal/app"
)

// Version is set at build time with -ldflags "-X dasladen/internal/cli.Version=...".
var Version = "dev"

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath string
	Capture    string
	WatchTime  string
	NoLog      bool
	Verbose    bool
	NoInit     bool
}

func (o *RootOptions) app(cmd *cobra.Command) app.Options {
	return app.Options{
		ConfigPath: o.ConfigPath,
		Capture:    o.Capture,
		WatchTime:  o.WatchTime,
		NoLog:      o.NoLog,
		Verbose:    o.Verbose,
		NoInit:     o.NoInit,
		Stdout:     cmd.OutOrStdout(),
	}
}

// NewRootCommand builds the command tree. Without a subcommand it watches
// the capture folder.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "dasladen",
		Short:         "DasLaden ETL",
		Long:          "Folder-driven batch ETL: drop task descriptors or zip bundles into the capture folder.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "dasladen.json", "config file (json, yaml or toml)")
	f.StringVar(&opts.Capture, "capture", "", "capture folder (default \"capture\")")
	f.StringVar(&opts.WatchTime, "watch-time", "", "capture watch interval, seconds or duration (default 10s)")
	f.BoolVar(&opts.NoLog, "no-log", false, "disable run log files")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "echo run logs to the console")
	f.BoolVar(&opts.NoInit, "no-init", false, "don't create the folder structure")

	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewVersionCommand())
	return cmd
}
