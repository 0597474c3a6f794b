package integration

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/vibeterm/internal/shared/paths"
)

//go:embed assets/*
var assets embed.FS

// Template placeholders substituted by Provision.
const (
	PlaceholderSessionID       = "{{SESSION_ID}}"
	PlaceholderNonce           = "{{NONCE}}"
	PlaceholderIntegrationPath = "{{VIBE_INTEGRATION_PATH}}"
)

var (
	// ErrInvalidSessionID is returned for ids that cannot name a directory.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrTemplate is returned when the start-up template cannot be read.
	ErrTemplate = errors.New("failed to read start-up template")
	// ErrNotConfigured is returned when a Config lacks a required directory.
	ErrNotConfigured = errors.New("shell integration directories not configured")
)

// Config locates the per-session artifacts and the shared hook scripts.
type Config struct {
	// Root holds one directory per live session.
	Root string
	// ScriptDir holds the integration scripts and start-up templates.
	ScriptDir string
}

// DefaultConfig places everything under the vibeterm base directory.
func DefaultConfig() (Config, error) {
	base, err := paths.Base()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Root:      paths.Sessions(base),
		ScriptDir: paths.Scripts(base),
	}, nil
}

// Provisioner builds and removes per-session shell start-up directories.
// It is safe for concurrent use.
type Provisioner struct {
	cfg       Config
	logger    *zap.Logger
	newSecret func() (string, error)
}

// New creates a provisioner. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) (*Provisioner, error) {
	if cfg.Root == "" || cfg.ScriptDir == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		cfg:       cfg,
		logger:    logger,
		newSecret: NewSecret,
	}, nil
}

// Config returns the directories the provisioner was built with.
func (p *Provisioner) Config() Config {
	return p.cfg
}

// Install writes the bundled scripts and templates into ScriptDir. Files that
// already exist are left alone so local edits survive.
func (p *Provisioner) Install() error {
	if err := os.MkdirAll(p.cfg.ScriptDir, 0o755); err != nil {
		return fmt.Errorf("failed to create script directory: %w", err)
	}

	return fs.WalkDir(assets, "assets", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		dst := filepath.Join(p.cfg.ScriptDir, d.Name())
		if _, err := os.Stat(dst); err == nil {
			return nil
		}
		data, err := assets.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("failed to install %s: %w", d.Name(), err)
		}
		p.logger.Debug("Installed shell integration file", zap.String("path", dst))
		return nil
	})
}

// Provision creates the start-up directory for sessionID and returns it along
// with the session secret. The flavour follows the shell's base name.
func (p *Provisioner) Provision(sessionID, shell string) (*Artifact, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	secret, err := p.newSecret()
	if err != nil {
		return nil, err
	}

	flavor := FlavorFor(shell)
	templatePath := filepath.Join(p.cfg.ScriptDir, flavor.template())
	template, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrTemplate, templatePath, err)
	}

	dir := filepath.Join(p.cfg.Root, sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	artifact := &Artifact{
		SessionID:   sessionID,
		Dir:         dir,
		StartupFile: filepath.Join(dir, flavor.startupFile()),
		Secret:      secret,
		Flavor:      flavor,
		origZDOTDIR: os.Getenv("ZDOTDIR"),
	}

	content := Render(string(template), sessionID, secret, p.cfg.ScriptDir)
	if err := os.WriteFile(artifact.StartupFile, []byte(content), 0o600); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			p.logger.Warn("Failed to remove partial session directory", zap.String("dir", dir), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("failed to write start-up file: %w", err)
	}

	p.logger.Debug("Provisioned shell integration",
		zap.String("session_id", sessionID),
		zap.String("dir", dir),
		zap.String("flavor", string(flavor)),
	)
	return artifact, nil
}

// Cleanup removes the artifact's directory. Removing an absent directory is
// not an error.
func (p *Provisioner) Cleanup(a *Artifact) error {
	if a == nil || a.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(a.Dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", a.Dir, err)
	}
	return nil
}

// Render substitutes the three placeholders. The script path is single-quoted
// for the shell; the id and secret are already shell-safe.
func Render(template, sessionID, secret, scriptDir string) string {
	return strings.NewReplacer(
		PlaceholderSessionID, sessionID,
		PlaceholderNonce, secret,
		PlaceholderIntegrationPath, shellQuote(scriptDir),
	).Replace(template)
}

func validateSessionID(id string) error {
	if id == "" || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	for _, r := range id {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		case r == '_', r == '-', r == '.':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
		}
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
