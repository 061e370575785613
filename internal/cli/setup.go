// Package cli — setup.go wires the configuration, registry store and
// coordinator for a single command invocation.
package cli

import (
	"fmt"
	"os"

	"github.com/shinji-kodama/devport/internal/config"
	"github.com/shinji-kodama/devport/internal/coordinator"
	"github.com/shinji-kodama/devport/internal/port"
	"github.com/shinji-kodama/devport/internal/proc"
	"github.com/shinji-kodama/devport/internal/project"
	"github.com/shinji-kodama/devport/internal/registry"
)

// session bundles everything a subcommand needs: the resolved
// configuration, the derived project name, and the coordinator over
// the configured registry.
type session struct {
	cfg   *config.Config
	name  string
	store *registry.Store
	coord *coordinator.Coordinator
}

// newSession resolves configuration and project identity for the
// current working directory. explicitName comes from the command
// line and may be empty.
func newSession(explicitName string) (*session, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	name, err := project.DeriveName(explicitName, cfg.ProjectName, dir)
	if err != nil {
		return nil, err
	}

	store := registry.NewStore(cfg.RegistryPath,
		registry.WithLockTimeout(cfg.LockTimeout),
		registry.WithForceBreakOnTimeout(cfg.ForceBreakOnTimeout),
	)

	VerboseLog("Project %q, registry %s", name, cfg.RegistryPath)
	if cfg.ForceBreakOnTimeout {
		VerboseLog("Lock policy: force-break after %s", cfg.LockTimeout)
	}

	return &session{
		cfg:   cfg,
		name:  name,
		store: store,
		coord: coordinator.New(store, port.NewProbe(), proc.NewChecker()),
	}, nil
}
