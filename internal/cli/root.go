// Package cli implements the cobra-based CLI commands for devport.
//
// Each subcommand (acquire, record-pids, release, list) is defined in
// its own file within this package. This file defines the root command
// that serves as the parent for all subcommands, the global flags, and
// the error-to-exit-code translation.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/devport/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	// When true, output uses structured JSON for machine consumption.
	// When false (default), output is human-readable text.
	jsonOutput bool

	// verbose enables detailed logging output for debugging.
	// When true, additional information about operations is printed
	// to stderr.
	verbose bool
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// The root command itself does not perform any action — it only
// provides help text and global flags. Actual functionality lives in
// the subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "devport",
		Short: "Shared port registry for development sessions",
		Long: `devport assigns each project a stable frontend/backend port pair from a
registry shared by all projects on this host.

A project keeps its ports across sessions. Concurrent launches — of the
same project or different ones — are serialized through an advisory lock
on the registry, so two sessions can never be handed colliding ports.
Stale state left by crashed sessions is reclaimed automatically on the
next acquire.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	// PersistentFlags are inherited by all subcommands.
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Register subcommands. Each is defined in its own file and
	// returns a *cobra.Command.
	rootCmd.AddCommand(NewAcquireCommand())
	rootCmd.AddCommand(NewRecordPidsCommand())
	rootCmd.AddCommand(NewReleaseCommand())
	rootCmd.AddCommand(NewListCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(err.Error(), nil)
		os.Exit(int(exitCodeFor(err)))
	}
}

// exitCodeFor maps domain sentinel errors onto the documented exit
// codes, so the session launcher wrapping devport can branch on $?.
func exitCodeFor(err error) model.ExitCode {
	switch {
	case errors.Is(err, model.ErrLockTimeout):
		return model.ExitLockTimeout
	case errors.Is(err, model.ErrAlreadyRunning):
		return model.ExitAlreadyRunning
	case errors.Is(err, model.ErrNoFreePort):
		return model.ExitPortAllocationFailed
	default:
		return model.ExitGeneralError
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode: stdout is reserved
		// for successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		if underlying != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		}
	}
}

// VerboseLog prints a message to stderr only when verbose mode is
// enabled.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
