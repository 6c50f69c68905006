package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths resolves the directories the application writes to. All paths
// are absolute after NewPaths.
type Paths struct {
	DataDir  string
	CacheDir string
	LogsDir  string
}

// NewPaths builds absolute paths from configuration, rooting relative
// paths at the current working directory.
func NewPaths(cfg PathsConfig) (*Paths, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wd, p)
	}

	return &Paths{
		DataDir:  abs(cfg.DataDir),
		CacheDir: abs(cfg.CacheDir),
		LogsDir:  abs(cfg.LogsDir),
	}, nil
}

// EnsureDirectories creates all required directories
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.CacheDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetCachePath returns the full path of a file in the cache directory
func (p *Paths) GetCachePath(filename string) string {
	return filepath.Join(p.CacheDir, filename)
}

// GetDataPath returns the full path of a file in the data directory
func (p *Paths) GetDataPath(filename string) string {
	return filepath.Join(p.DataDir, filename)
}

// GetLogPath returns the full path of a file in the logs directory
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}
