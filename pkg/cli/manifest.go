package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest lists audio files for batch commands.
//
//	threshold: 0.7
//	files:
//	  - name: alice
//	    path: audio/alice.wav
//	  - path: audio/bob.pcm
//	    rate: 8000
type Manifest struct {
	// Threshold overrides the similarity threshold for compare.
	Threshold float32 `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	Files []ManifestEntry `yaml:"files" json:"files"`
}

// ManifestEntry is one audio file.
type ManifestEntry struct {
	// Name labels the file in output; default is the file base name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Path string `yaml:"path" json:"path"`

	// Rate is the sample rate of raw PCM files.
	Rate int `yaml:"rate,omitempty" json:"rate,omitempty"`
}

// LoadManifest loads a manifest from a YAML or JSON file. "-" reads stdin.
// Relative entry paths are resolved against the manifest directory.
func LoadManifest(path string) (*Manifest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := ParseManifest(data, path)
	if err != nil {
		return nil, err
	}
	if path != "-" {
		dir := filepath.Dir(path)
		for i := range m.Files {
			if !filepath.IsAbs(m.Files[i].Path) {
				m.Files[i].Path = filepath.Join(dir, m.Files[i].Path)
			}
		}
	}
	return m, nil
}

// ParseManifest parses manifest data based on file extension or content
// and validates it.
func ParseManifest(data []byte, filename string) (*Manifest, error) {
	var m Manifest
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		// Try JSON first, then YAML
		if err := json.Unmarshal(data, &m); err != nil {
			m = Manifest{}
			if err2 := yaml.Unmarshal(data, &m); err2 != nil {
				return nil, errors.New("failed to parse manifest (tried JSON and YAML)")
			}
		}
	}

	if len(m.Files) == 0 {
		return nil, errors.New("manifest lists no files")
	}
	for i := range m.Files {
		f := &m.Files[i]
		if f.Path == "" {
			return nil, fmt.Errorf("manifest entry %d has no path", i)
		}
		if f.Name == "" {
			f.Name = strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
		}
	}
	if m.Threshold < 0 || m.Threshold > 1 {
		return nil, fmt.Errorf("manifest threshold must be in [0, 1], got %g", m.Threshold)
	}
	return &m, nil
}
