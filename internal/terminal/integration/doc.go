// Package integration makes a freshly spawned shell emit command-boundary
// markers without touching the user's own start-up files.
//
// For every session the Provisioner creates <Root>/<session id>/ holding a
// generated start-up file. The file defines the session secret in a
// non-exported shell variable, sources the user's usual configuration, and
// then sources the shared hook script (vibe.zsh or vibe.bash) from ScriptDir.
// zsh finds the file through ZDOTDIR, bash through --rcfile.
//
// The directory must be removed when the session ends; see Cleanup.
package integration
