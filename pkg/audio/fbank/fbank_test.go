package fbank

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func sine(n int, freq, rate float64, amp float32) []float32 {
	pcm := make([]float32, n)
	for i := range pcm {
		pcm[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return pcm
}

func noise(n int, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	pcm := make([]float32, n)
	for i := range pcm {
		pcm[i] = float32(rng.Float64()*2-1) * 0.3
	}
	return pcm
}

func mustNew(t testing.TB, cfg Config) *Extractor {
	t.Helper()
	ext, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ext
}

func TestWindows(t *testing.T) {
	h := makeWindow(WindowHamming, 400)
	if len(h) != 400 {
		t.Fatalf("expected 400, got %d", len(h))
	}
	// Hamming window: endpoints should be ~0.08
	if math.Abs(h[0]-0.08) > 0.01 {
		t.Errorf("hamming[0] = %f, want ~0.08", h[0])
	}
	if math.Abs(h[199]-1.0) > 0.02 {
		t.Errorf("hamming[199] = %f, want ~1.0", h[199])
	}

	p := makeWindow(WindowPovey, 400)
	if p[0] != 0 {
		t.Errorf("povey[0] = %f, want 0", p[0])
	}
	if math.Abs(p[199]-1.0) > 0.02 {
		t.Errorf("povey[199] = %f, want ~1.0", p[199])
	}
}

func TestMelConversion(t *testing.T) {
	mel := hzToMel(1000)
	if math.Abs(mel-1000) > 2 {
		t.Errorf("hzToMel(1000) = %f, want ~1000", mel)
	}
	if hz := melToHz(mel); math.Abs(hz-1000) > 1e-6 {
		t.Errorf("melToHz(hzToMel(1000)) = %f, want 1000", hz)
	}
}

func TestMelFilterBank(t *testing.T) {
	bank := melFilterBank(80, 512, 16000, 20, 8000)
	if len(bank) != 80 {
		t.Fatalf("expected 80 filters, got %d", len(bank))
	}
	for i, f := range bank {
		if len(f.weights) == 0 {
			t.Errorf("filter %d is empty", i)
			continue
		}
		if f.offset+len(f.weights) > 256 {
			t.Errorf("filter %d extends past Nyquist", i)
		}
		for _, w := range f.weights {
			if w < 0 || w > 1 {
				t.Errorf("filter %d weight %f out of [0,1]", i, w)
			}
		}
	}
	// Filters are ordered by increasing frequency.
	for i := 1; i < len(bank); i++ {
		if bank[i].offset < bank[i-1].offset {
			t.Errorf("filter %d starts before filter %d", i, i-1)
		}
	}
}

func TestFFT(t *testing.T) {
	// DC + 1-cycle cosine in an 8-sample window.
	n := 8
	re := make([]float64, n)
	im := make([]float64, n)
	for i := range re {
		re[i] = 1.0 + math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	newFFTPlan(n).transform(re, im)

	if math.Abs(re[0]-float64(n)) > 1e-9 {
		t.Errorf("DC = %f, want %d", re[0], n)
	}
	if math.Abs(re[1]-float64(n)/2) > 1e-9 {
		t.Errorf("H1 real = %f, want %f", re[1], float64(n)/2)
	}
	if math.Abs(re[n-1]-float64(n)/2) > 1e-9 {
		t.Errorf("H-1 real = %f, want %f", re[n-1], float64(n)/2)
	}
	for k := 2; k < n-1; k++ {
		if math.Hypot(re[k], im[k]) > 1e-9 {
			t.Errorf("bin %d = (%f, %f), want 0", k, re[k], im[k])
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero rate", func(c *Config) { c.SampleRate = 0 }},
		{"tiny window", func(c *Config) { c.WindowSize = 1 }},
		{"zero hop", func(c *Config) { c.HopSize = 0 }},
		{"zero mels", func(c *Config) { c.NumMels = 0 }},
		{"fft not pow2", func(c *Config) { c.FFTSize = 500 }},
		{"fft smaller than window", func(c *Config) { c.FFTSize = 256 }},
		{"high above nyquist", func(c *Config) { c.HighFreq = 9000 }},
		{"low above high", func(c *Config) { c.LowFreq = 8000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestExtract(t *testing.T) {
	cfg := DefaultConfig()
	ext := mustNew(t, cfg)

	n := 16000
	features, err := ext.Extract(sine(n, 440, 16000, 0.5))
	if err != nil {
		t.Fatal(err)
	}
	if want := cfg.NumFrames(n); len(features) != want || want != 98 {
		t.Fatalf("expected 98 frames, got %d (NumFrames=%d)", len(features), want)
	}
	if len(features[0]) != 80 {
		t.Fatalf("expected 80 mels, got %d", len(features[0]))
	}
	for i, f := range features {
		for j, v := range f {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("features[%d][%d] = %f (not finite)", i, j, v)
			}
		}
	}

	// 440 Hz energy concentrates in a low mel bin, far above the top bin.
	var peak int
	for m, v := range features[10] {
		if v > features[10][peak] {
			peak = m
		}
	}
	if peak > 30 {
		t.Errorf("peak mel bin = %d, want a low bin for 440 Hz", peak)
	}
}

func TestExtractTooShort(t *testing.T) {
	ext := mustNew(t, DefaultConfig())
	_, err := ext.Extract(make([]float32, 399))
	if !errors.Is(err, ErrTooShort) {
		t.Errorf("err = %v, want ErrTooShort", err)
	}
	// Exactly one window yields one frame.
	f, err := ext.Extract(make([]float32, 400))
	if err != nil {
		t.Fatal(err)
	}
	if len(f) != 1 {
		t.Errorf("frames = %d, want 1", len(f))
	}
}

func TestExtractSilenceIsFloored(t *testing.T) {
	cfg := DefaultConfig()
	ext := mustNew(t, cfg)
	features, err := ext.Extract(make([]float32, 512))
	if err != nil {
		t.Fatal(err)
	}
	floor := float32(math.Log(cfg.EnergyFloor))
	for m, v := range features[0] {
		if v != floor {
			t.Fatalf("mel[%d] = %f, want floor %f", m, v, floor)
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	ext := mustNew(t, DefaultConfig())
	pcm := noise(4000, 7)
	a, _ := ext.Extract(pcm)
	b, _ := ext.Extract(pcm)
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("features differ at [%d][%d]", i, j)
			}
		}
	}
}

func TestExtract8k(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 8000
	cfg.WindowSize = 200
	cfg.HopSize = 80
	cfg.FFTSize = 256
	cfg.NumMels = 40
	ext := mustNew(t, cfg)
	features, err := ext.Extract(sine(8000, 300, 8000, 0.5))
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != cfg.NumFrames(8000) || len(features[0]) != 40 {
		t.Errorf("got %dx%d", len(features), len(features[0]))
	}
}

func TestFlatten(t *testing.T) {
	flat := Flatten([][]float32{{1, 2, 3}, {4, 5, 6}})
	expected := []float32{1, 2, 3, 4, 5, 6}
	if len(flat) != len(expected) {
		t.Fatalf("expected len %d, got %d", len(expected), len(flat))
	}
	for i, v := range flat {
		if v != expected[i] {
			t.Errorf("flat[%d] = %f, want %f", i, v, expected[i])
		}
	}
	if Flatten(nil) != nil {
		t.Error("Flatten(nil) should be nil")
	}
}

func TestCMVN(t *testing.T) {
	ext := mustNew(t, DefaultConfig())
	features, err := ext.Extract(noise(16000, 3))
	if err != nil {
		t.Fatal(err)
	}
	CMVN(features, true)

	for m := range len(features[0]) {
		var sum float64
		for _, f := range features {
			sum += float64(f[m])
		}
		mean := sum / float64(len(features))
		if math.Abs(mean) > 1e-4 {
			t.Errorf("mel[%d] mean = %f, want ~0", m, mean)
		}
		var v float64
		for _, f := range features {
			d := float64(f[m]) - mean
			v += d * d
		}
		std := math.Sqrt(v / float64(len(features)))
		if math.Abs(std-1.0) > 1e-3 {
			t.Errorf("mel[%d] std = %f, want ~1", m, std)
		}
	}
}

func TestCMVNMeanOnly(t *testing.T) {
	features := [][]float32{{1, 10}, {3, 10}}
	CMVN(features, false)
	if features[0][0] != -1 || features[1][0] != 1 {
		t.Errorf("col 0 = %v, %v", features[0][0], features[1][0])
	}
	if features[0][1] != 0 || features[1][1] != 0 {
		t.Errorf("col 1 = %v, %v", features[0][1], features[1][1])
	}
}

func BenchmarkExtract(b *testing.B) {
	ext := mustNew(b, DefaultConfig())
	pcm := sine(48000, 440, 16000, 0.5)

	b.ResetTimer()
	b.ReportAllocs()
	for range b.N {
		_, _ = ext.Extract(pcm)
	}
}
