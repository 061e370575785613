// Package config resolves devport's layered configuration.
//
// Sources, later layers overriding earlier ones:
//
//  1. Built-in defaults (registry at ~/.devport/registry.json,
//     10s lock timeout, start ports 3000/8000).
//  2. The global config file, ~/.config/devport/config.yaml.
//  3. The project config file, .devport.jsonc in the project
//     directory. JSONC (JSON with Comments) is used so the file can
//     be annotated, matching the devcontainer.json convention;
//     comments are stripped with github.com/tidwall/jsonc before
//     parsing with encoding/json.
//  4. DEVPORT_* environment variables.
//
// When both DEVPORT_FRONTEND_PORT and DEVPORT_BACKEND_PORT are set,
// the pair is treated as an explicit relocation request: lease reuse
// is bypassed and a fresh allocation scan starts at the hints.
package config
