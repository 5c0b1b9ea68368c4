package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scoutd/scoutd/internal/launcher"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds the remote daemon connection flags shared by every
// non-serve command.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// StartFlags holds flags for the start command.
type StartFlags struct {
	Industry  string
	Rate      int
	Mode      string
	Verbose   bool
	Force     bool
	SingleRun bool
	DryRun    bool
	APIFlags
}

// RunsFlags holds flags for the runs command.
type RunsFlags struct {
	Limit int
	APIFlags
}

// LogFlags holds flags for the log command.
type LogFlags struct {
	RunID string
	Limit int
	APIFlags
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	scoutdCommand := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStartCommand(scoutdCommand),
		createStopCommand(scoutdCommand),
		createStatusCommand(scoutdCommand),
		createResetCommand(scoutdCommand),
		createRunsCommand(scoutdCommand),
		createLogCommand(scoutdCommand),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "scoutd",
		Short: "Supervision daemon for the scout collection worker",
		Long: `Scoutd launches, monitors, and restarts the scout web-data
collection worker, with exponential backoff and a circuit breaker
guarding against crash loops.

Examples:
  scoutd serve --config=config.toml
  scoutd start --industry=plumbing --rate=10
  scoutd status
  scoutd status --api-url=http://remote:8080/api  # Remote status`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
}

// createServeCommand creates the serve subcommand.
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the scoutd daemon",
		Long: `Start the scoutd daemon to supervise the collection worker.
All configuration is loaded from a TOML config file. Editing the file
while the daemon runs ends the current supervision cycle and starts a
fresh one from the new settings.

Examples:
  scoutd serve config.toml
  scoutd serve --config=config.toml --start   # launch worker at boot
  scoutd serve --config=config.toml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveFlags.ConfigPath == "" {
				serveFlags.ConfigPath = globalFlags.ConfigPath
			}
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			return runServeCommand(serveFlags, args, sigCh)
		},
	}

	cmd.Flags().BoolVar(&serveFlags.Debug, "debug", false, "enable debug logging")
	cmd.Flags().BoolVar(&serveFlags.AutoStart, "start", false, "launch the worker with config defaults at boot")
	return cmd
}

// createStartCommand creates the start subcommand.
func createStartCommand(scoutdCommand command) *cobra.Command {
	flags := &StartFlags{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch a collection run",
		Long: `Launch a collection run via the scoutd daemon.

Examples:
  scoutd start --industry=plumbing
  scoutd start --industry=roofing --rate=5 --mode=deep
  scoutd start --industry=hvac --single-run --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return scoutdCommand.Start(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Industry, "industry", "", "target industry (required)")
	cmd.Flags().IntVar(&flags.Rate, "rate", launcher.DefaultRate, "request rate budget (1-100)")
	cmd.Flags().StringVar(&flags.Mode, "mode", launcher.ModeStandard, "collection mode (standard, deep, fast, audit)")
	cmd.Flags().BoolVar(&flags.Verbose, "verbose", false, "verbose worker output")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "re-collect targets already seen")
	cmd.Flags().BoolVar(&flags.SingleRun, "single-run", false, "exit after one pass instead of looping")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "resolve targets without collecting")
	addAPIFlags(cmd, &flags.APIFlags)

	if err := cmd.MarkFlagRequired("industry"); err != nil {
		panic(err)
	}
	return cmd
}

// createStopCommand creates the stop subcommand.
func createStopCommand(scoutdCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the active run",
		Long: `Stop the active run, cancel pending retries, and reset the
retry and circuit breaker state.

Examples:
  scoutd stop
  scoutd stop --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return scoutdCommand.Stop(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

// createStatusCommand creates the status subcommand.
func createStatusCommand(scoutdCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show supervisor status",
		Long: `Show the current run, retry counters, and circuit breaker state.

Examples:
  scoutd status
  scoutd status --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return scoutdCommand.Status(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

// createResetCommand creates the reset subcommand.
func createResetCommand(scoutdCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear retry and breaker state",
		Long: `Clear error tallies, retry counters, and the circuit breaker
without touching a running worker. Operator override after fixing the
underlying problem.

Examples:
  scoutd reset`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return scoutdCommand.Reset(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

// createRunsCommand creates the runs subcommand.
func createRunsCommand(scoutdCommand command) *cobra.Command {
	flags := &RunsFlags{}
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted runs",
		Long: `List persisted runs, newest first.

Examples:
  scoutd runs
  scoutd runs --limit=10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return scoutdCommand.Runs(*flags)
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 50, "maximum runs to list")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

// createLogCommand creates the log subcommand.
func createLogCommand(scoutdCommand command) *cobra.Command {
	flags := &LogFlags{}
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show worker log lines",
		Long: `Show the buffered output tail of the current run, or the
persisted log of a finished run.

Examples:
  scoutd log                  # current run tail
  scoutd log --run=<id>       # persisted run log
  scoutd log --limit=100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return scoutdCommand.Log(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.RunID, "run", "", "run id (defaults to the current run)")
	cmd.Flags().IntVar(&flags.Limit, "limit", 0, "maximum lines to show")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}
