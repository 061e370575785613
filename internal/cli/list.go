// Package cli — list.go implements the "devport list" command.
//
// List dumps the registry: every project's port pair, whether its
// recorded processes are still alive, and when it last acquired.
//
// The read is deliberately lockless. A listing is a human diagnostic,
// not an input to allocation decisions, and only lock-holders may
// treat a loaded snapshot as authoritative — so list labels itself
// advisory rather than contending with running acquires.
package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/devport/internal/config"
	"github.com/shinji-kodama/devport/internal/model"
	"github.com/shinji-kodama/devport/internal/proc"
	"github.com/shinji-kodama/devport/internal/registry"
)

// listEntry is the JSON shape of one registry row.
type listEntry struct {
	Project      string    `json:"project"`
	FrontendPort int       `json:"frontendPort"`
	BackendPort  int       `json:"backendPort"`
	PidFrontend  *int      `json:"pidFrontend"`
	PidBackend   *int      `json:"pidBackend"`
	Running      bool      `json:"running"`
	LastUsed     time.Time `json:"lastUsed"`
}

// NewListCommand creates the "list" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all port leases in the registry",
		Long: `List every project in the shared registry with its port pair, running
state, and last-used timestamp.

A project counts as running if at least one of its recorded processes
is still alive.

Examples:
  devport list
  devport list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd)
		},
	}

	return cmd
}

// runList is the main logic function for the list command.
func runList(cmd *cobra.Command) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	store := registry.NewStore(cfg.RegistryPath)
	snap, err := store.Load()
	if err != nil {
		return err
	}

	VerboseLog("Loaded %d leases from %s", len(snap), cfg.RegistryPath)

	entries := buildEntries(snap, proc.NewChecker())

	if IsJSONOutput() {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No leases in registry.")
		return nil
	}

	running := color.New(color.FgGreen)
	idle := color.New(color.Faint)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tFRONTEND\tBACKEND\tSTATUS\tLAST USED")
	for _, e := range entries {
		status := idle.Sprint("idle")
		if e.Running {
			status = running.Sprint("running")
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			e.Project, e.FrontendPort, e.BackendPort, status,
			e.LastUsed.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// buildEntries converts a snapshot into sorted display rows with
// liveness resolved.
func buildEntries(snap model.Snapshot, liveness proc.Liveness) []listEntry {
	entries := make([]listEntry, 0, len(snap))
	for project, lease := range snap {
		entries = append(entries, listEntry{
			Project:      project,
			FrontendPort: lease.FrontendPort,
			BackendPort:  lease.BackendPort,
			PidFrontend:  lease.PidFrontend,
			PidBackend:   lease.PidBackend,
			Running:      leaseRunning(lease, liveness),
			LastUsed:     lease.LastUsed,
		})
	}
	// Sort alphabetically for consistent output.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Project < entries[j].Project
	})
	return entries
}

// leaseRunning reports whether any recorded process is still alive.
func leaseRunning(lease *model.Lease, liveness proc.Liveness) bool {
	if lease.PidFrontend != nil && liveness.IsAlive(*lease.PidFrontend) {
		return true
	}
	return lease.PidBackend != nil && liveness.IsAlive(*lease.PidBackend)
}
