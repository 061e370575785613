// Package project derives the stable project identifier that keys a
// registry lease.
//
// Precedence, highest first:
//
//  1. An explicit name passed on the command line.
//  2. The "name" field of the project's .devport.jsonc.
//  3. The basename of the enclosing git repository's top level.
//  4. The basename of the working directory.
//
// The git lookup shells out to `git rev-parse --show-toplevel` rather
// than using a Go git library: it must agree with whatever git the
// developer uses, including worktrees, where library support is
// uneven. A directory outside any git repository simply falls through
// to the working-directory basename.
package project
