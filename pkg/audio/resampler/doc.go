// Package resampler converts float32 audio between sample rates and channel
// layouts before it is cut into detector frames.
//
// Rate conversion uses the pure Go polyphase resampler from
// github.com/tphakala/go-audio-resampling, so no cgo is needed. Channel
// conversion supports down-mixing any interleaved layout to mono and mono
// to stereo.
//
// Example usage:
//
//	rs, err := resampler.New(
//	    resampler.Format{SampleRate: 44100, Channels: 2},
//	    resampler.Format{SampleRate: 16000, Channels: 1},
//	)
//	if err != nil {
//	    return err
//	}
//	mono16k, err := rs.Process(interleaved)
package resampler
