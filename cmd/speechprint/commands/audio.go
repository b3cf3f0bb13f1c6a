package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/haivivi/speechprint/pkg/audio/frame"
	"github.com/haivivi/speechprint/pkg/audio/resampler"
)

// readAudio loads a WAV file or raw little-endian PCM16 mono audio at
// rawRate and converts it to mono float32 at target Hz. "-" reads raw PCM
// from stdin.
func readAudio(path string, rawRate, target int) ([]float32, error) {
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
		return nil, fmt.Errorf("read audio: %w", err)
	}

	if isWAV(path, data) {
		samples, src, err := decodeWAV(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		logger.Debug("wav decoded", "path", path, "format", src, "samples", len(samples))
		return resampler.Convert(samples, src, resampler.Mono(target))
	}

	if rawRate <= 0 {
		return nil, fmt.Errorf("%s: raw PCM needs a positive --rate", path)
	}
	samples, err := resampler.ReadAll(bytes.NewReader(data), resampler.Mono(rawRate), resampler.Mono(target))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

func isWAV(path string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return true
	}
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func decodeWAV(data []byte) ([]float32, resampler.Format, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, resampler.Format{}, fmt.Errorf("invalid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, resampler.Format{}, fmt.Errorf("decode WAV: %w", err)
	}
	return wavSamples(buf, int(dec.BitDepth))
}

func wavSamples(buf *audio.IntBuffer, bitDepth int) ([]float32, resampler.Format, error) {
	if buf.Format == nil {
		return nil, resampler.Format{}, fmt.Errorf("WAV has no format chunk")
	}
	src := resampler.Format{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels}
	samples, err := frame.FromInts(buf.Data, bitDepth)
	if err != nil {
		return nil, src, err
	}
	return samples, src, nil
}
