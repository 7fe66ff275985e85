package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot assembles the root command and its subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	statusFlags := &StatusFlags{}
	stopFlags := &StopFlags{}
	clearFlags := &ClearFlags{}
	historyFlags := &HistoryFlags{}

	potterCommand := command{flags: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(potterCommand, runFlags),
		createStatusCommand(potterCommand, statusFlags),
		createStopCommand(potterCommand, stopFlags),
		createClearCommand(potterCommand, clearFlags),
		createHistoryCommand(potterCommand, historyFlags),
		createVersionCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "potterd",
		Short: "Single-instance guard for desktop applications",
		Long: `Potterd detects an already-running instance of an application, decides
whether to keep, replace, or yield to it, and records which process owns
the instance slot.

Examples:
  potterd run                       # claim the instance slot and hold it
  potterd run --replace             # replace a running older build unattended
  potterd status --json             # inspect the recorded instance
  potterd stop                      # terminate the recorded instance
  potterd history --limit 20        # recent guard events`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.StateDir, "state-dir", "", "override the instance record directory")

	return root
}

// createRunCommand creates the run subcommand.
func createRunCommand(potterCommand command, runFlags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the guard: claim the instance slot and hold it until stopped",
		Long: `Run executes the launch protocol: loads prior instance records, probes
whether the recorded process is alive, resolves the collision under the
configured policy, and claims the slot. On success potterd keeps running,
serving the local control API, until SIGINT/SIGTERM releases the records.

Exit status is 0 when another instance is kept running (the application is
available either way) and 1 when the launch aborts or fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return potterCommand.Run(*runFlags)
		},
	}

	cmd.Flags().BoolVar(&runFlags.Replace, "replace", false, "replace a live different-build instance without asking")
	cmd.Flags().StringVar(&runFlags.Listen, "listen", "", "control API listen address (overrides config)")
	cmd.Flags().BoolVar(&runFlags.NoServer, "no-server", false, "disable the control API")

	return cmd
}

// createStatusCommand creates the status subcommand.
func createStatusCommand(potterCommand command, statusFlags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect the recorded instance and probe whether it is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return potterCommand.Status(*statusFlags)
		},
	}

	cmd.Flags().BoolVar(&statusFlags.JSON, "json", false, "print status as JSON")

	return cmd
}

// createStopCommand creates the stop subcommand.
func createStopCommand(potterCommand command, stopFlags *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Terminate the recorded instance",
		Long: `Stop signals the recorded instance to exit and escalates to a hard kill
when it does not. Records are removed once the process is confirmed gone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return potterCommand.Stop(*stopFlags)
		},
	}

	cmd.Flags().DurationVar(&stopFlags.Grace, "grace", 0, "wait after the graceful signal (default from config)")
	cmd.Flags().DurationVar(&stopFlags.Force, "force", 0, "wait after the hard kill (default from config)")

	return cmd
}

// createClearCommand creates the clear subcommand.
func createClearCommand(potterCommand command, clearFlags *ClearFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove instance records without touching any process",
		Long: `Clear is the operator escape hatch for wedged state. It refuses to remove
records naming a live process unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return potterCommand.Clear(*clearFlags)
		},
	}

	cmd.Flags().BoolVar(&clearFlags.Force, "force", false, "remove records even when the recorded process is alive")

	return cmd
}

// createHistoryCommand creates the history subcommand.
func createHistoryCommand(potterCommand command, historyFlags *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent guard events from the configured sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			return potterCommand.History(*historyFlags)
		},
	}

	cmd.Flags().IntVar(&historyFlags.Limit, "limit", 20, "number of events to print")
	cmd.Flags().BoolVar(&historyFlags.JSON, "json", false, "print events as JSON")

	return cmd
}

// createVersionCommand creates the version subcommand.
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	}
}
