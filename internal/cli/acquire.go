// Package cli — acquire.go implements the "devport acquire" command.
//
// Acquire resolves the port pair the project should use right now:
// the existing lease if its ports are still free, a fresh pair
// otherwise. The resolved ports are printed as shell-assignable
// KEY=VALUE lines so a launch script can eval the output, or as JSON
// with --json.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/devport/internal/coordinator"
	"github.com/shinji-kodama/devport/internal/model"
)

// acquireFlags holds the flag values for the acquire command.
type acquireFlags struct {
	// frontendPort and backendPort are start-port hints for the
	// allocation scan. Zero means "use the configured default".
	frontendPort int
	backendPort  int

	// fresh bypasses lease reuse and always allocates a new pair.
	fresh bool
}

// NewAcquireCommand creates the "acquire" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewAcquireCommand() *cobra.Command {
	flags := &acquireFlags{}

	cmd := &cobra.Command{
		Use:   "acquire [project]",
		Short: "Resolve and reserve the project's port pair",
		Long: `Resolve which frontend/backend ports the project should use and record
the lease in the shared registry.

If the project already holds a lease and neither of its ports is in use,
the same pair is returned. If the project is already running (both of
its recorded processes are alive), the command fails with exit code 3
rather than double-starting it.

The project name defaults to the enclosing git repository's directory
name; pass it explicitly to override.

Examples:
  eval "$(devport acquire)"
  devport acquire my-app --frontend-port 3100 --backend-port 8100
  devport acquire --json`,

		// The project name is optional; it is derived from the
		// working directory when omitted.
		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := ""
			if len(args) == 1 {
				explicit = args[0]
			}
			return runAcquire(cmd, explicit, flags)
		},
	}

	cmd.Flags().IntVar(&flags.frontendPort, "frontend-port", 0,
		"Start port for the frontend allocation scan")
	cmd.Flags().IntVar(&flags.backendPort, "backend-port", 0,
		"Start port for the backend allocation scan")
	cmd.Flags().BoolVar(&flags.fresh, "fresh", false,
		"Ignore the existing lease and allocate a new port pair")

	return cmd
}

// runAcquire is the main logic function for the acquire command.
func runAcquire(cmd *cobra.Command, explicit string, flags *acquireFlags) error {
	s, err := newSession(explicit)
	if err != nil {
		return err
	}

	frontendStart, backendStart := s.cfg.StartPorts(s.name)
	if flags.frontendPort > 0 {
		frontendStart = flags.frontendPort
	}
	if flags.backendPort > 0 {
		backendStart = flags.backendPort
	}

	opts := coordinator.AcquireOptions{
		FrontendStart: frontendStart,
		BackendStart:  backendStart,
		// Both flag hints together mean the same thing as both env
		// hints: relocate, don't reuse.
		ForceNew: s.cfg.ForceNew || flags.fresh ||
			(flags.frontendPort > 0 && flags.backendPort > 0),
	}

	VerboseLog("Acquiring ports for %q (scan from %d/%d, forceNew=%v)",
		s.name, opts.FrontendStart, opts.BackendStart, opts.ForceNew)

	ports, err := s.coord.Acquire(cmd.Context(), s.name, opts)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		out := struct {
			Project string `json:"project"`
			model.LeasePorts
		}{Project: s.name, LeasePorts: ports}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	// KEY=VALUE lines on stdout, eval-able by the launch script.
	fmt.Fprintf(cmd.OutOrStdout(), "FRONTEND_PORT=%d\n", ports.Frontend)
	fmt.Fprintf(cmd.OutOrStdout(), "BACKEND_PORT=%d\n", ports.Backend)
	return nil
}
