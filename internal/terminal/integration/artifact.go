package integration

import (
	"path/filepath"
	"strings"
)

// Flavor selects the start-up mechanism for a shell.
type Flavor string

const (
	// FlavorZsh points ZDOTDIR at the session directory.
	FlavorZsh Flavor = "zsh"
	// FlavorBash passes the session bashrc with --rcfile.
	FlavorBash Flavor = "bash"
)

// FlavorFor picks the flavour for a shell path. Shells other than bash get
// the zsh mechanism, which they ignore.
func FlavorFor(shell string) Flavor {
	base := strings.TrimPrefix(filepath.Base(shell), "-")
	if strings.HasPrefix(base, "bash") {
		return FlavorBash
	}
	return FlavorZsh
}

func (f Flavor) template() string {
	if f == FlavorBash {
		return "bashrc.template"
	}
	return "zshrc.template"
}

func (f Flavor) startupFile() string {
	if f == FlavorBash {
		return ".bashrc"
	}
	return ".zshrc"
}

// Artifact is one session's provisioned start-up directory.
type Artifact struct {
	SessionID   string
	Dir         string
	StartupFile string
	// Secret authenticates the markers emitted by this session's hooks.
	Secret string
	Flavor Flavor

	origZDOTDIR string
}

// Env returns the variables the shell must be started with.
func (a *Artifact) Env() []string {
	env := []string{"VIBE_SESSION_ID=" + a.SessionID}
	if a.Flavor == FlavorZsh {
		env = append(env, "ZDOTDIR="+a.Dir)
		if a.origZDOTDIR != "" {
			env = append(env, "VIBE_ORIG_ZDOTDIR="+a.origZDOTDIR)
		}
	}
	return env
}

// Args returns the shell's command-line arguments.
func (a *Artifact) Args() []string {
	if a.Flavor == FlavorBash {
		return []string{"--rcfile", a.StartupFile, "-i"}
	}
	return []string{"-i"}
}
