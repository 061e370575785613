package project

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shinji-kodama/devport/internal/model"
)

// DeriveName resolves the project name for the given working
// directory. explicit comes from the command line, configured from the
// project config file; either may be empty. The result is sanitized
// and validated, so it is always a legal registry key.
func DeriveName(explicit, configured, dir string) (string, error) {
	if explicit != "" {
		if err := model.ValidateName(explicit); err != nil {
			return "", model.WrapCLIError(model.ExitInvalidProject, "invalid project name", err)
		}
		return explicit, nil
	}

	if configured != "" {
		if err := model.ValidateName(configured); err != nil {
			return "", model.WrapCLIError(model.ExitInvalidProject, "invalid project name in config", err)
		}
		return configured, nil
	}

	base := dir
	if root, err := gitTopLevel(dir); err == nil && root != "" {
		base = root
	}

	name := Sanitize(filepath.Base(base))
	if err := model.ValidateName(name); err != nil {
		return "", model.WrapCLIError(model.ExitInvalidProject,
			fmt.Sprintf("could not derive a project name from %q", base), err)
	}
	return name, nil
}

// gitTopLevel returns the top-level directory of the git working tree
// containing dir.
//
// `git rev-parse --show-toplevel` works correctly for both the main
// repository and worktrees — it returns the root of whichever working
// tree contains the directory. The -C flag makes git operate on the
// target directory without changing the process's own working
// directory.
func gitTopLevel(dir string) (string, error) {
	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.Command("git", "-C", dir, "rev-parse", "--show-toplevel")

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Not a repository, or git missing entirely. The caller falls
		// back to the directory basename either way.
		return "", fmt.Errorf("git rev-parse --show-toplevel: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// invalidNameChars matches everything a directory basename may contain
// that a project name may not.
var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Sanitize maps a directory basename onto the project name alphabet:
// disallowed characters become hyphens, and leading/trailing
// separators are trimmed. "My Cool App!" becomes "My-Cool-App".
func Sanitize(base string) string {
	name := invalidNameChars.ReplaceAllString(base, "-")
	return strings.Trim(name, "._-")
}
