package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".huddle"

// Paths holds resolved filesystem paths for huddle data.
type Paths struct {
	Base    string // ~/.huddle
	Config  string // ~/.huddle/config.yaml
	Catalog string // ~/.huddle/agents.yaml
	Logs    string // ~/.huddle/logs
	Data    string // ~/.huddle/data
}

// ResolvePaths computes all standard paths from the home directory.
// If HUDDLE_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("HUDDLE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:    base,
		Config:  filepath.Join(base, "config.yaml"),
		Catalog: filepath.Join(base, "agents.yaml"),
		Logs:    filepath.Join(base, "logs"),
		Data:    filepath.Join(base, "data"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Logs, p.Data} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// StorePath returns the SQLite database path, honoring an explicit override.
func (p Paths) StorePath(cfg StoreConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "huddle.db")
}

// CatalogPath returns the agent catalog path, honoring an explicit override.
func (p Paths) CatalogPath(cfg AgentsConfig) string {
	if cfg.Catalog != "" {
		return cfg.Catalog
	}
	return p.Catalog
}
