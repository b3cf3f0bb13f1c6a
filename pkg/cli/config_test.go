package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haivivi/speechprint/pkg/audio/frame"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.VAD.SampleRate != 16000 || cfg.Pipeline.Threshold != 0.5 || cfg.Server.Addr != ":8080" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.EmbedEnabled() {
		t.Error("embedding should be disabled without a model")
	}
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
vad:
  model: models/silero_vad.onnx
  sample_rate: 8000
embedding:
  model: models/speaker.onnx
  cmvn: true
pipeline:
  threshold: 0.65
  reset_after_silence: 30
server:
  addr: 127.0.0.1:9000
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VAD.SampleRate != 8000 {
		t.Errorf("sample_rate = %d", cfg.VAD.SampleRate)
	}
	if cfg.VAD.FrameSize != 256 {
		t.Errorf("frame_size = %d, want 256 for 8 kHz", cfg.VAD.FrameSize)
	}
	if !cfg.Embedding.CMVN || cfg.Embedding.Model != "models/speaker.onnx" {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Pipeline.Threshold != 0.65 || cfg.Pipeline.ResetAfterSilence != 30 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if !cfg.EmbedEnabled() {
		t.Error("embedding should be enabled by default when a model is set")
	}
	// Unset keys keep their defaults.
	if cfg.Embedding.LabelBits != 16 || cfg.Pipeline.MinSilence != 8 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
}

func TestParseConfigEmbedToggle(t *testing.T) {
	cfg, err := ParseConfig([]byte("embedding:\n  model: x.onnx\npipeline:\n  embed: false\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EmbedEnabled() {
		t.Error("embed: false should disable embedding")
	}
}

func TestParseConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad rate", "vad:\n  sample_rate: 44100\n"},
		{"threshold", "pipeline:\n  threshold: 1.5\n"},
		{"reset", "pipeline:\n  reset_after_silence: -1\n"},
		{"label bits", "embedding:\n  label_bits: 6\n"},
		{"no model", "vad:\n  model: \"\"\n"},
		{"syntax", "vad: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := ParseConfig([]byte("vad:\n  sample_rate: 22050\n"))
	if !errors.Is(err, frame.ErrUnsupportedSampleRate) {
		t.Errorf("err = %v, want ErrUnsupportedSampleRate", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speechprint.yaml")
	if err := os.WriteFile(path, []byte("vad:\n  model: vad.onnx\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path() != path {
		t.Errorf("Path = %q", cfg.Path())
	}
	if got := cfg.Resolve(cfg.VAD.Model); got != filepath.Join(dir, "vad.onnx") {
		t.Errorf("Resolve = %q", got)
	}
	if got := cfg.Resolve("/abs/model.onnx"); got != "/abs/model.onnx" {
		t.Errorf("Resolve(abs) = %q", got)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config") {
		t.Errorf("err = %v", err)
	}
}

func TestConfigSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Pipeline.Threshold = 0.3
	cfg.Embedding.Model = "spk.onnx"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Pipeline.Threshold != 0.3 || loaded.Embedding.Model != "spk.onnx" {
		t.Errorf("loaded = %+v", loaded)
	}
}
