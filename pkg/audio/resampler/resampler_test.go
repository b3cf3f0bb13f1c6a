package resampler

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/haivivi/speechprint/pkg/audio/frame"
)

func sine(n int, freq, rate float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.5 * float32(math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		ch     int
		bytes  int
	}{
		{"zero channels is mono", Format{SampleRate: 16000}, 1, 2},
		{"mono", Mono(8000), 1, 2},
		{"stereo", Format{SampleRate: 48000, Channels: 2}, 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.channels(); got != tt.ch {
				t.Errorf("channels() = %d, want %d", got, tt.ch)
			}
			if got := tt.format.pcm16Bytes(); got != tt.bytes {
				t.Errorf("pcm16Bytes() = %d, want %d", got, tt.bytes)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(Format{SampleRate: 0}, Mono(16000)); err == nil {
		t.Error("expected error for zero source rate")
	}
	if _, err := New(Mono(16000), Format{SampleRate: 16000, Channels: -1}); err == nil {
		t.Error("expected error for negative channels")
	}
	if _, err := New(Format{SampleRate: 16000, Channels: 3}, Format{SampleRate: 16000, Channels: 2}); err == nil {
		t.Error("expected error for 3 -> 2 channels")
	}
}

func TestPassthrough(t *testing.T) {
	r, err := New(Mono(16000), Mono(16000))
	if err != nil {
		t.Fatal(err)
	}
	if !r.Passthrough() {
		t.Fatal("same-rate resampler should pass through")
	}
	in := []float32{0.1, -0.2, 0.3}
	out, err := r.Process(in)
	if err != nil {
		t.Fatal(err)
	}
	in[0] = 1
	if len(out) != 3 || out[0] != 0.1 || out[2] != 0.3 {
		t.Errorf("out = %v", out)
	}
}

func TestDownmix(t *testing.T) {
	got := Downmix([]float32{1, 0, 0.5, 0.5, -1, 1, 0.2}, 2)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestUpmix(t *testing.T) {
	got := Upmix([]float32{0.25, -0.5})
	want := []float32{0.25, 0.25, -0.5, -0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestStereoToMonoSameRate(t *testing.T) {
	out, err := Convert([]float32{0.2, 0.4, -0.2, -0.4, 0.9}, Format{SampleRate: 8000, Channels: 2}, Mono(8000))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if math.Abs(float64(out[0]-0.3)) > 1e-6 || math.Abs(float64(out[1]+0.3)) > 1e-6 {
		t.Errorf("out = %v", out)
	}
}

func TestDownsample(t *testing.T) {
	r, err := New(Mono(48000), Mono(16000))
	if err != nil {
		t.Fatal(err)
	}
	if r.Passthrough() {
		t.Fatal("rate change should not pass through")
	}
	in := sine(48000, 440, 48000)
	var total int
	for start := 0; start < len(in); start += 4800 {
		out, err := r.Process(in[start : start+4800])
		if err != nil {
			t.Fatal(err)
		}
		for i, s := range out {
			if s < -1 || s > 1 || math.IsNaN(float64(s)) {
				t.Fatalf("sample %d = %f out of range", i, s)
			}
		}
		total += len(out)
	}
	tail, err := r.Flush()
	if err != nil {
		t.Fatal(err)
	}
	total += len(tail)
	if !nominal(total, 16000) {
		t.Errorf("total output = %d, want about 16000", total)
	}
}

// nominal reports whether n is within 1% below want and never above it.
func nominal(n, want int) bool {
	return n <= want && n >= want-want/100
}

func TestConvertFlushesTail(t *testing.T) {
	tests := []struct {
		name     string
		src, dst int
		n        int
	}{
		{"48k to 16k", 48000, 16000, 24000},
		{"8k to 16k", 8000, 16000, 8000},
		{"16k to 8k", 16000, 8000, 16000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Convert(sine(tt.n, 300, float64(tt.src)), Mono(tt.src), Mono(tt.dst))
			if err != nil {
				t.Fatal(err)
			}
			if want := tt.n * tt.dst / tt.src; !nominal(len(out), want) {
				t.Errorf("len = %d, want about %d", len(out), want)
			}
		})
	}
}

func TestFlushResets(t *testing.T) {
	r, err := New(Mono(8000), Mono(16000))
	if err != nil {
		t.Fatal(err)
	}
	if tail, err := r.Flush(); err != nil || tail != nil {
		t.Fatalf("Flush before input = %v, %v", tail, err)
	}
	for round := range 2 {
		out, err := r.Process(sine(4000, 300, 8000))
		if err != nil {
			t.Fatal(err)
		}
		tail, err := r.Flush()
		if err != nil {
			t.Fatal(err)
		}
		if n := len(out) + len(tail); !nominal(n, 8000) {
			t.Errorf("round %d: len = %d, want about 8000", round, n)
		}
	}

	same, _ := New(Mono(16000), Mono(16000))
	if tail, err := same.Flush(); err != nil || tail != nil {
		t.Errorf("passthrough Flush = %v, %v", tail, err)
	}
}

func TestReader(t *testing.T) {
	in := sine(1000, 300, 8000)
	pcm := frame.EncodePCM16(in)
	pcm = append(pcm, 0x7f) // dangling half sample

	got, err := ReadAll(bytes.NewReader(pcm), Mono(8000), Mono(8000))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if math.Abs(float64(got[i]-in[i])) > 1.0/16384 {
			t.Fatalf("[%d] = %f, want %f", i, got[i], in[i])
		}
	}
}

func TestReaderFlushesTail(t *testing.T) {
	pcm := frame.EncodePCM16(sine(8000, 300, 8000))
	got, err := ReadAll(bytes.NewReader(pcm), Mono(8000), Mono(16000))
	if err != nil {
		t.Fatal(err)
	}
	if !nominal(len(got), 16000) {
		t.Errorf("len = %d, want about 16000", len(got))
	}
}

func TestReaderEOF(t *testing.T) {
	rd, err := NewReader(bytes.NewReader(nil), Mono(16000), Mono(16000), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rd.ReadSamples(); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestSampleReaderPartialSample(t *testing.T) {
	r := newSampleReader(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6}), 4)
	buf := make([]byte, 8)

	n, err := r.Read(buf)
	if err != nil || n != 4 {
		t.Fatalf("first Read = %d, %v; want 4, nil", n, err)
	}
	if !bytes.Equal(buf[:n], []byte{1, 2, 3, 4}) {
		t.Fatalf("first Read got %v", buf[:n])
	}
	n, err = r.Read(buf)
	if err != io.ErrUnexpectedEOF || n != 2 {
		t.Fatalf("second Read = %d, %v; want 2, io.ErrUnexpectedEOF", n, err)
	}
}

func TestSampleReaderShortBuffer(t *testing.T) {
	r := newSampleReader(bytes.NewReader([]byte{1, 2, 3, 4}), 4)
	if _, err := r.Read(make([]byte, 2)); err != io.ErrShortBuffer {
		t.Fatalf("err = %v, want io.ErrShortBuffer", err)
	}
}

type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) { return o.r.Read(p[:1]) }

func TestSampleReaderTrickle(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	r := newSampleReader(oneByteReader{bytes.NewReader(data)}, 2)
	var got []byte
	buf := make([]byte, 4)
	for {
		n, err := r.Read(buf)
		if n%2 != 0 {
			t.Fatalf("unaligned read of %d bytes", n)
		}
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %v, want %v", got, data)
	}
}
