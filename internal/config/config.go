package config

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/devport/internal/model"
)

// Environment variable names honored by Load.
const (
	// EnvRegistry overrides the registry file path.
	EnvRegistry = "DEVPORT_REGISTRY"

	// EnvConfig overrides the global config file path.
	EnvConfig = "DEVPORT_CONFIG"

	// EnvLockTimeout overrides the lock wait bound (a Go duration
	// string, e.g. "30s").
	EnvLockTimeout = "DEVPORT_LOCK_TIMEOUT"

	// EnvForceBreak overrides the lock-timeout policy ("true"/"false").
	EnvForceBreak = "DEVPORT_FORCE_BREAK"

	// EnvFrontendPort and EnvBackendPort are the start-port hints.
	// Setting both at once bypasses lease reuse (see package doc).
	EnvFrontendPort = "DEVPORT_FRONTEND_PORT"
	EnvBackendPort  = "DEVPORT_BACKEND_PORT"
)

// ProjectFileName is the per-project config file looked up in the
// project directory.
const ProjectFileName = ".devport.jsonc"

// hashedStartSpread is the modulus for the hash-seeded default start
// port. A 0-999 offset keeps seeded defaults inside the conventional
// dev port neighborhoods (3000-3999, 8000-8999).
const hashedStartSpread = 1000

// Config is the fully resolved configuration for one devport
// invocation.
type Config struct {
	// RegistryPath is the shared registry JSON file.
	RegistryPath string

	// LockTimeout bounds registry lock acquisition.
	LockTimeout time.Duration

	// ForceBreakOnTimeout selects the lock-timeout policy (see
	// internal/registry for the trade-off).
	ForceBreakOnTimeout bool

	// FrontendStart and BackendStart are the allocation scan start
	// hints. Zero means "use the default, possibly hash-seeded".
	FrontendStart int
	BackendStart  int

	// HashedStart seeds the default start ports with a per-project
	// hash offset, spreading projects across the port neighborhood
	// so fresh allocations rarely contend. A heuristic only — the
	// allocator enforces correctness regardless.
	HashedStart bool

	// ProjectName is the name from the project config file, if any.
	ProjectName string

	// ForceNew is set when both env port hints were supplied,
	// turning this invocation into an explicit relocation request.
	ForceNew bool
}

// globalFile mirrors the YAML shape of ~/.config/devport/config.yaml.
// LockTimeout is a duration string ("10s"); yaml.v3 has no native
// duration decoding.
type globalFile struct {
	Registry            string `yaml:"registry"`
	LockTimeout         string `yaml:"lock_timeout"`
	ForceBreakOnTimeout *bool  `yaml:"force_break_on_timeout"`
	FrontendStart       int    `yaml:"frontend_start"`
	BackendStart        int    `yaml:"backend_start"`
	HashedStart         *bool  `yaml:"hashed_start"`
}

// projectFile mirrors the JSONC shape of .devport.jsonc. Field names
// are camelCase, matching the devcontainer.json convention the file
// imitates.
type projectFile struct {
	Name          string `json:"name,omitempty"`
	FrontendStart int    `json:"frontendStart,omitempty"`
	BackendStart  int    `json:"backendStart,omitempty"`
}

// Load resolves the configuration for a project rooted at projectDir.
// Missing config files are normal and silently skipped; malformed
// ones are reported, since a user who wrote a config wants it honored.
func Load(projectDir string) (*Config, error) {
	cfg := &Config{
		LockTimeout: 10 * time.Second,
	}

	registryPath, err := DefaultRegistryPath()
	if err != nil {
		return nil, err
	}
	cfg.RegistryPath = registryPath

	if err := cfg.applyGlobalFile(); err != nil {
		return nil, err
	}
	if err := cfg.applyProjectFile(projectDir); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultRegistryPath returns ~/.devport/registry.json.
func DefaultRegistryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".devport", "registry.json"), nil
}

// globalConfigPath returns the global config file location, honoring
// the DEVPORT_CONFIG override.
func globalConfigPath() (string, error) {
	if path := os.Getenv(EnvConfig); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "devport", "config.yaml"), nil
}

func (c *Config) applyGlobalFile() error {
	path, err := globalConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read global config %s: %w", path, err)
	}

	var gf globalFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("malformed global config %s", path), err)
	}

	if gf.Registry != "" {
		c.RegistryPath = gf.Registry
	}
	if gf.LockTimeout != "" {
		d, err := time.ParseDuration(gf.LockTimeout)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("invalid lock_timeout in %s", path), err)
		}
		c.LockTimeout = d
	}
	if gf.ForceBreakOnTimeout != nil {
		c.ForceBreakOnTimeout = *gf.ForceBreakOnTimeout
	}
	if gf.FrontendStart > 0 {
		c.FrontendStart = gf.FrontendStart
	}
	if gf.BackendStart > 0 {
		c.BackendStart = gf.BackendStart
	}
	if gf.HashedStart != nil {
		c.HashedStart = *gf.HashedStart
	}
	return nil
}

func (c *Config) applyProjectFile(projectDir string) error {
	if projectDir == "" {
		return nil
	}
	path := filepath.Join(projectDir, ProjectFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read project config %s: %w", path, err)
	}

	var pf projectFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &pf); err != nil {
		return model.WrapCLIError(model.ExitInvalidProject,
			fmt.Sprintf("malformed project config %s", path), err)
	}

	if pf.Name != "" {
		c.ProjectName = pf.Name
	}
	if pf.FrontendStart > 0 {
		c.FrontendStart = pf.FrontendStart
	}
	if pf.BackendStart > 0 {
		c.BackendStart = pf.BackendStart
	}
	return nil
}

func (c *Config) applyEnv() error {
	if path := os.Getenv(EnvRegistry); path != "" {
		c.RegistryPath = path
	}
	if raw := os.Getenv(EnvLockTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("invalid %s value %q", EnvLockTimeout, raw), err)
		}
		c.LockTimeout = d
	}
	if raw := os.Getenv(EnvForceBreak); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("invalid %s value %q", EnvForceBreak, raw), err)
		}
		c.ForceBreakOnTimeout = enabled
	}

	frontendSet, err := c.applyEnvPort(EnvFrontendPort, &c.FrontendStart)
	if err != nil {
		return err
	}
	backendSet, err := c.applyEnvPort(EnvBackendPort, &c.BackendStart)
	if err != nil {
		return err
	}
	// Both hints together are an explicit relocation request: skip
	// lease reuse and search fresh from the hints.
	c.ForceNew = frontendSet && backendSet
	return nil
}

// applyEnvPort parses one env port hint into dst. Returns whether the
// variable was set.
func (c *Config) applyEnvPort(name string, dst *int) (bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return false, nil
	}
	p, err := strconv.Atoi(raw)
	if err != nil || p < 1 || p > model.MaxPort {
		return false, model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid %s value %q: want a port number 1-%d", name, raw, model.MaxPort))
	}
	*dst = p
	return true, nil
}

// StartPorts returns the allocation scan start ports for the given
// project: an explicit hint if configured, otherwise the default —
// optionally offset by a stable per-project hash so different
// projects start their scans in different places.
func (c *Config) StartPorts(project string) (frontend, backend int) {
	frontend = c.FrontendStart
	backend = c.BackendStart

	var offset int
	if c.HashedStart {
		offset = hashOffset(project)
	}

	if frontend == 0 {
		frontend = model.DefaultFrontendStart + offset
	}
	if backend == 0 {
		backend = model.DefaultBackendStart + offset
	}
	return frontend, backend
}

// hashOffset maps a project name onto a stable 0-999 offset.
func hashOffset(project string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(project))
	return int(h.Sum32() % hashedStartSpread)
}
