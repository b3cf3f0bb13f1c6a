package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/speechprint/pkg/audio/frame"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".speechprint"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Config is the speechprint configuration file.
type Config struct {
	VAD       VADConfig       `yaml:"vad"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`

	// path is the file the config was read from, empty for defaults
	path string
}

// VADConfig configures the voice activity detector.
type VADConfig struct {
	// Model is the path of the recurrent VAD model.
	Model string `yaml:"model"`

	// SampleRate is 8000 or 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per frame; 0 selects 512 at
	// 16 kHz and 256 at 8 kHz.
	FrameSize int `yaml:"frame_size,omitempty"`
}

// EmbeddingConfig configures the speaker embedding extractor.
type EmbeddingConfig struct {
	// Model is the path of the embedding model; empty disables embedding.
	Model string `yaml:"model,omitempty"`

	// CMVN enables per-utterance mean normalization of the features.
	CMVN bool `yaml:"cmvn,omitempty"`

	// Context is the number of frames embedded together (0 or 1 means
	// the current frame only).
	Context int `yaml:"context,omitempty"`

	// LabelBits is the voice label length in bits (multiple of 4).
	LabelBits int `yaml:"label_bits,omitempty"`

	// LabelSeed fixes the label hyperplanes.
	LabelSeed uint64 `yaml:"label_seed,omitempty"`
}

// PipelineConfig configures the frame pipeline.
type PipelineConfig struct {
	Threshold         float32 `yaml:"threshold"`
	ResetAfterSilence int     `yaml:"reset_after_silence,omitempty"`

	// Embed toggles the embedding stage. Nil means enabled when an
	// embedding model is configured.
	Embed *bool `yaml:"embed,omitempty"`

	// MinSilence is the number of non-speech frames closing a segment.
	MinSilence int `yaml:"min_silence,omitempty"`
}

// ServerConfig configures the streaming server.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// MaxStreams caps concurrent WebSocket streams; 0 means unlimited.
	MaxStreams int `yaml:"max_streams,omitempty"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		VAD: VADConfig{
			Model:      "models/silero_vad.onnx",
			SampleRate: frame.Rate16K,
		},
		Embedding: EmbeddingConfig{
			LabelBits: 16,
			LabelSeed: 42,
		},
		Pipeline: PipelineConfig{
			Threshold:  0.5,
			MinSilence: 8,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// LoadConfig reads the config at path over the defaults. An empty path
// reads ~/.speechprint/config.yaml if it exists and returns the defaults
// otherwise.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		paths, err := NewPaths()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = paths.ConfigFile()
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// ParseConfig parses YAML over the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.VAD.FrameSize == 0 {
		cfg.VAD.FrameSize = frame.Size(cfg.VAD.SampleRate)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.VAD.Model == "" {
		return errors.New("vad.model is required")
	}
	if err := frame.ValidateSampleRate(c.VAD.SampleRate); err != nil {
		return fmt.Errorf("vad.sample_rate: %w", err)
	}
	if c.VAD.FrameSize < 0 {
		return fmt.Errorf("vad.frame_size must not be negative, got %d", c.VAD.FrameSize)
	}
	if c.Pipeline.Threshold < 0 || c.Pipeline.Threshold > 1 {
		return fmt.Errorf("pipeline.threshold must be in [0, 1], got %g", c.Pipeline.Threshold)
	}
	if c.Pipeline.ResetAfterSilence < 0 {
		return fmt.Errorf("pipeline.reset_after_silence must not be negative, got %d", c.Pipeline.ResetAfterSilence)
	}
	if c.Embedding.LabelBits < 0 || c.Embedding.LabelBits%4 != 0 {
		return fmt.Errorf("embedding.label_bits must be a multiple of 4, got %d", c.Embedding.LabelBits)
	}
	if c.Server.MaxStreams < 0 {
		return fmt.Errorf("server.max_streams must not be negative, got %d", c.Server.MaxStreams)
	}
	return nil
}

// EmbedEnabled reports whether the embedding stage should run.
func (c *Config) EmbedEnabled() bool {
	if c.Embedding.Model == "" {
		return false
	}
	return c.Pipeline.Embed == nil || *c.Pipeline.Embed
}

// Path returns the file the config was loaded from, empty for defaults.
func (c *Config) Path() string {
	return c.path
}

// Resolve makes a relative model path relative to the config file
// directory. Absolute paths and configs without a file are unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.path), p)
}

// Save writes the config as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	c.path = path
	return nil
}
