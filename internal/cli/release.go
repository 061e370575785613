// Package cli — release.go implements the "devport release" command.
//
// Release is the orderly-shutdown half of the lease lifecycle: it
// clears the running-process claims while keeping the project's port
// assignment for the next session. A crashed session that never
// releases is handled anyway — the next acquire reconciles its dead
// pids — so release is a courtesy, not a requirement.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReleaseCommand creates the "release" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewReleaseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release [project]",
		Short: "Clear the project's running-session claim",
		Long: `Mark the project as no longer running. The port pair stays reserved for
the project and is handed back on the next acquire.

Examples:
  devport release
  devport release my-app`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := ""
			if len(args) == 1 {
				explicit = args[0]
			}
			return runRelease(cmd, explicit)
		},
	}

	return cmd
}

// runRelease is the main logic function for the release command.
func runRelease(cmd *cobra.Command, explicit string) error {
	s, err := newSession(explicit)
	if err != nil {
		return err
	}

	VerboseLog("Releasing %q", s.name)

	if err := s.coord.Release(cmd.Context(), s.name); err != nil {
		return err
	}

	if IsJSONOutput() {
		fmt.Fprintf(cmd.OutOrStdout(), "{\n  \"project\": %q,\n  \"released\": true\n}\n", s.name)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Released %s\n", s.name)
	return nil
}
