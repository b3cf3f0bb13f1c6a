// Package audio groups the audio front-end sub-packages:
//
//   - frame: fixed-size detector frames, PCM16 conversion and splitting
//   - resampler: sample rate and channel conversion, streaming PCM reader
//   - fbank: log mel filterbank features for speaker embedding models
//
// Typical flow:
//
//	samples, _ := resampler.Convert(pcm, resampler.Mono(44100), resampler.Mono(16000))
//	frames, _ := frame.Split(16000, 0, samples)
package audio
