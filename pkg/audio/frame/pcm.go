package frame

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FromInt16 converts signed 16-bit samples to float32 in [-1, 1).
func FromInt16(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// DecodePCM16 decodes little-endian signed 16-bit mono PCM. A trailing odd
// byte is an error.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("frame: PCM16 payload has odd length %d", len(data))
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768.0
	}
	return out, nil
}

// EncodePCM16 encodes float32 samples as little-endian signed 16-bit PCM,
// clipping to the int16 range.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32768.0)
		v = max(math.MinInt16, min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}

// FromInts converts integer samples of the given bit depth (8, 16, 24 or
// 32) to float32. 8-bit samples are taken as unsigned, the WAV convention.
func FromInts(data []int, bitDepth int) ([]float32, error) {
	var scale float32
	var bias int
	switch bitDepth {
	case 8:
		scale, bias = 128, 128
	case 16:
		scale = 1 << 15
	case 24:
		scale = 1 << 23
	case 32:
		scale = 1 << 31
	default:
		return nil, fmt.Errorf("frame: unsupported bit depth %d", bitDepth)
	}
	out := make([]float32, len(data))
	for i, s := range data {
		out[i] = float32(s-bias) / scale
	}
	return out, nil
}
