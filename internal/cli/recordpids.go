// Package cli — recordpids.go implements the "devport record-pids"
// command.
//
// After the launch layer has spawned the two session processes, it
// reports their pids here so the registry knows the lease is actively
// owned. A later acquire for the same project will then refuse to
// double-start it while both processes live.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// recordPidsFlags holds the flag values for the record-pids command.
type recordPidsFlags struct {
	frontendPid int
	backendPid  int
}

// NewRecordPidsCommand creates the "record-pids" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRecordPidsCommand() *cobra.Command {
	flags := &recordPidsFlags{}

	cmd := &cobra.Command{
		Use:   "record-pids [project]",
		Short: "Attach the running session's process IDs to its lease",
		Long: `Record the process IDs of the started frontend and backend processes on
the project's lease.

Call this once after both processes are up. If the session later
crashes without releasing, the stale pids are detected and cleared on
the next acquire.

Examples:
  devport record-pids --frontend-pid $FRONTEND_PID --backend-pid $BACKEND_PID
  devport record-pids my-app --frontend-pid 4242 --backend-pid 4243`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := ""
			if len(args) == 1 {
				explicit = args[0]
			}
			return runRecordPids(cmd, explicit, flags)
		},
	}

	cmd.Flags().IntVar(&flags.frontendPid, "frontend-pid", 0, "PID of the frontend process")
	cmd.Flags().IntVar(&flags.backendPid, "backend-pid", 0, "PID of the backend process")
	_ = cmd.MarkFlagRequired("frontend-pid")
	_ = cmd.MarkFlagRequired("backend-pid")

	return cmd
}

// runRecordPids is the main logic function for the record-pids command.
func runRecordPids(cmd *cobra.Command, explicit string, flags *recordPidsFlags) error {
	s, err := newSession(explicit)
	if err != nil {
		return err
	}

	VerboseLog("Recording pids %d/%d for %q", flags.frontendPid, flags.backendPid, s.name)

	if err := s.coord.RecordPids(cmd.Context(), s.name, flags.frontendPid, flags.backendPid); err != nil {
		return err
	}

	if IsJSONOutput() {
		fmt.Fprintf(cmd.OutOrStdout(), "{\n  \"project\": %q,\n  \"recorded\": true\n}\n", s.name)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded pids for %s\n", s.name)
	return nil
}
