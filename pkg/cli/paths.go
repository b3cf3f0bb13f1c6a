package cli

import (
	"os"
	"path/filepath"
)

// Paths provides access to the speechprint directory structure.
type Paths struct {
	// HomeDir is the user's home directory
	HomeDir string
}

// NewPaths creates a Paths rooted at the user's home directory.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns the base directory (~/.speechprint)
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ConfigFile returns the config file path (~/.speechprint/config.yaml)
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir(), DefaultConfigFile)
}

// ModelDir returns the model directory (~/.speechprint/models)
func (p *Paths) ModelDir() string {
	return filepath.Join(p.BaseDir(), "models")
}

// ModelPath returns a path within the model directory
func (p *Paths) ModelPath(name string) string {
	return filepath.Join(p.ModelDir(), name)
}

// EnsureModelDir creates the model directory if it doesn't exist
func (p *Paths) EnsureModelDir() error {
	return os.MkdirAll(p.ModelDir(), 0755)
}
