package cli

import (
	"fmt"
	"runtime"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"dasladen/internal/app"
)

func NewWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the capture folder and run or schedule arriving tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}
}

func runWatch(cmd *cobra.Command, opts *RootOptions) error {
	a, err := app.New(opts.app(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "DasLaden ETL started. (Press CTRL+C to stop)")
	if err := a.Watch(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "DasLaden ETL finished.")
	return nil
}

func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Process one task descriptor or zip bundle and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(opts.app(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "DasLaden ETL started.")
			return a.RunFile(cmd.Context(), args[0])
		},
	}
}

func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the capture, input, output, log and module folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := opts.app(cmd)
			o.NoInit = false
			a, err := app.New(o)
			if err != nil {
				return err
			}
			defer a.Close()

			f := a.Folders()
			for _, dir := range []string{f.Capture, f.Input, f.Output, f.Log, f.Module} {
				fmt.Fprintf(cmd.OutOrStdout(), "Folder '%s' ready\n", dir)
			}
			return nil
		},
	}
}

func NewRunsCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent descriptor executions and job firings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := opts.app(cmd)
			o.NoInit = true
			a, err := app.New(o)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Store() == nil {
				fmt.Fprintln(cmd.OutOrStdout(), pterm.Yellow("Run history is disabled; set storage.driver to file or sqlite."))
				return nil
			}
			runs, err := a.Store().RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(runsTable(runs)).Srender()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "dasladen %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
