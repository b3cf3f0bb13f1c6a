// Package fbank computes log mel filterbank features from PCM audio.
//
// This is the standard front-end for speaker embedding models (WeSpeaker,
// 3D-Speaker, ECAPA-TDNN). The output is a [T, numMels] float32 matrix
// suitable for direct input to inference after adding a batch axis.
//
// Default parameters follow the Kaldi compute-fbank convention:
//
//	SampleRate:  16000
//	WindowSize:  400 (25 ms)
//	HopSize:     160 (10 ms)
//	FFTSize:     512
//	NumMels:     80
//	LowFreq:     20
//	HighFreq:    0 (Nyquist)
//	PreEmphasis: 0.97
//	Window:      povey
//	Scale:       32768 (features computed on the int16 range)
package fbank

import (
	"errors"
	"fmt"
	"math"
)

// ErrTooShort is returned when the input is shorter than one analysis window.
var ErrTooShort = errors.New("fbank: input shorter than one window")

// WindowType selects the analysis window.
type WindowType string

const (
	// WindowPovey is Kaldi's default: a Hann window raised to 0.85.
	WindowPovey WindowType = "povey"
	// WindowHamming is the classic Hamming window.
	WindowHamming WindowType = "hamming"
	// WindowHann is the Hann window.
	WindowHann WindowType = "hann"
)

// Config controls mel filterbank extraction parameters.
type Config struct {
	SampleRate  int        // audio sample rate in Hz
	WindowSize  int        // window length in samples
	HopSize     int        // hop length in samples
	FFTSize     int        // FFT size; 0 selects the next power of two >= WindowSize
	NumMels     int        // number of mel bins
	LowFreq     float64    // lowest mel frequency in Hz
	HighFreq    float64    // highest mel frequency; <= 0 is an offset from Nyquist
	PreEmphasis float64    // pre-emphasis coefficient, 0 disables
	RemoveDC    bool       // subtract the per-window mean before pre-emphasis
	Window      WindowType // analysis window
	Scale       float64    // multiplier applied to samples; 0 means 1
	EnergyFloor float64    // floor applied before the log
}

// DefaultConfig returns the Kaldi-compatible config for 16 kHz speaker models.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		WindowSize:  400,
		HopSize:     160,
		FFTSize:     512,
		NumMels:     80,
		LowFreq:     20,
		HighFreq:    0,
		PreEmphasis: 0.97,
		RemoveDC:    true,
		Window:      WindowPovey,
		Scale:       32768,
		EnergyFloor: 1.1920928955078125e-07, // float32 epsilon
	}
}

// Validate reports a config that cannot produce features.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("fbank: sample rate must be positive, got %d", c.SampleRate)
	case c.WindowSize <= 1:
		return fmt.Errorf("fbank: window size must be > 1, got %d", c.WindowSize)
	case c.HopSize <= 0:
		return fmt.Errorf("fbank: hop size must be positive, got %d", c.HopSize)
	case c.NumMels <= 0:
		return fmt.Errorf("fbank: mel bin count must be positive, got %d", c.NumMels)
	case c.FFTSize != 0 && (c.FFTSize < c.WindowSize || c.FFTSize&(c.FFTSize-1) != 0):
		return fmt.Errorf("fbank: FFT size %d must be a power of two >= window size %d", c.FFTSize, c.WindowSize)
	}
	nyquist := float64(c.SampleRate) / 2
	high := c.highFreq()
	if c.LowFreq < 0 || c.LowFreq >= high || high > nyquist {
		return fmt.Errorf("fbank: invalid mel range [%g, %g] for Nyquist %g", c.LowFreq, high, nyquist)
	}
	return nil
}

func (c Config) highFreq() float64 {
	if c.HighFreq <= 0 {
		return float64(c.SampleRate)/2 + c.HighFreq
	}
	return c.HighFreq
}

func (c Config) fftSize() int {
	if c.FFTSize > 0 {
		return c.FFTSize
	}
	n := 1
	for n < c.WindowSize {
		n <<= 1
	}
	return n
}

// NumFrames returns the number of feature frames produced for n samples.
func (c Config) NumFrames(n int) int {
	if n < c.WindowSize {
		return 0
	}
	return (n-c.WindowSize)/c.HopSize + 1
}

// Extractor computes mel filterbank features from PCM samples. It holds
// precomputed tables only and is safe for concurrent use.
type Extractor struct {
	cfg     Config
	window  []float64
	melBank []melFilter
	plan    *fftPlan
}

// New creates a new fbank Extractor with the given config.
func New(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nfft := cfg.fftSize()
	return &Extractor{
		cfg:     cfg,
		window:  makeWindow(cfg.Window, cfg.WindowSize),
		melBank: melFilterBank(cfg.NumMels, nfft, cfg.SampleRate, cfg.LowFreq, cfg.highFreq()),
		plan:    newFFTPlan(nfft),
	}, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Extract computes log mel filterbank features from float32 samples in
// [-1, 1]. The result is [T][NumMels] where T = (len(pcm)-WindowSize)/HopSize + 1.
func (e *Extractor) Extract(pcm []float32) ([][]float32, error) {
	cfg := e.cfg
	numFrames := cfg.NumFrames(len(pcm))
	if numFrames == 0 {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrTooShort, len(pcm), cfg.WindowSize)
	}

	scale := cfg.Scale
	if scale == 0 {
		scale = 1
	}

	nfft := e.plan.n
	features := make([][]float32, numFrames)
	frame := make([]float64, cfg.WindowSize)
	re := make([]float64, nfft)
	im := make([]float64, nfft)
	power := make([]float64, nfft/2+1)

	for t := range numFrames {
		start := t * cfg.HopSize
		for i := range frame {
			frame[i] = float64(pcm[start+i]) * scale
		}

		if cfg.RemoveDC {
			var mean float64
			for _, s := range frame {
				mean += s
			}
			mean /= float64(len(frame))
			for i := range frame {
				frame[i] -= mean
			}
		}

		// Pre-emphasis within the window, first sample against itself.
		if p := cfg.PreEmphasis; p != 0 {
			for i := len(frame) - 1; i > 0; i-- {
				frame[i] -= p * frame[i-1]
			}
			frame[0] -= p * frame[0]
		}

		for i, s := range frame {
			re[i] = s * e.window[i]
			im[i] = 0
		}
		for i := cfg.WindowSize; i < nfft; i++ {
			re[i] = 0
			im[i] = 0
		}
		e.plan.transform(re, im)

		for k := range power {
			power[k] = re[k]*re[k] + im[k]*im[k]
		}

		mel := make([]float32, cfg.NumMels)
		for m, f := range e.melBank {
			energy := f.apply(power)
			if energy < cfg.EnergyFloor {
				energy = cfg.EnergyFloor
			}
			mel[m] = float32(math.Log(energy))
		}
		features[t] = mel
	}
	return features, nil
}

// CMVN applies per-utterance mean (and optionally variance) normalization
// in place across all frames of each mel dimension.
func CMVN(features [][]float32, normVariance bool) {
	if len(features) == 0 {
		return
	}
	numMels := len(features[0])
	n := float64(len(features))

	for m := range numMels {
		var sum float64
		for _, f := range features {
			sum += float64(f[m])
		}
		mean := sum / n

		std := 1.0
		if normVariance {
			var v float64
			for _, f := range features {
				d := float64(f[m]) - mean
				v += d * d
			}
			std = math.Sqrt(v / n)
			if std < 1e-10 {
				std = 1e-10
			}
		}
		for _, f := range features {
			f[m] = float32((float64(f[m]) - mean) / std)
		}
	}
}

// Flatten converts [T][F] to a row-major [T*F] slice.
func Flatten(features [][]float32) []float32 {
	if len(features) == 0 {
		return nil
	}
	cols := len(features[0])
	flat := make([]float32, len(features)*cols)
	for t, row := range features {
		copy(flat[t*cols:], row)
	}
	return flat
}
