// Package paths locates vibeterm's files on disk.
//
// Everything lives under one base directory, ~/.vibecodings by default:
//
//	~/.vibecodings/
//	    zshrc/<session-id>/     per-session shell start-up directories
//	    shell-integration/      hook scripts and start-up templates
//	    vibeterm.db             session history
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// HomeEnv overrides the base directory.
	HomeEnv = "VIBETERM_HOME"

	// DirName is the base directory's name under the user's home.
	DirName = ".vibecodings"

	sessionsDir = "zshrc"
	scriptsDir  = "shell-integration"
	database    = "vibeterm.db"
)

// Base returns $VIBETERM_HOME, or ~/.vibecodings.
func Base() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return filepath.Abs(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Sessions returns the parent of the per-session start-up directories.
func Sessions(base string) string {
	return filepath.Join(base, sessionsDir)
}

// Scripts returns the shell-integration script directory.
func Scripts(base string) string {
	return filepath.Join(base, scriptsDir)
}

// Database returns the session history database file.
func Database(base string) string {
	return filepath.Join(base, database)
}
