package speaker

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"strings"
)

// LabelPrefix is prepended to every label produced by a Labeler.
const LabelPrefix = "voice:"

const hexDigits = "0123456789ABCDEF"

// Labeler maps embeddings to short locality-sensitive labels such as
// "voice:A3F8" using random hyperplane hashing. Nearby embeddings produce
// the same label with high probability, so labels give a coarse,
// human-readable speaker key without any enrollment store.
//
// Labels can be truncated for coarser matching: "voice:A3F8" → "voice:A3".
type Labeler struct {
	dim    int
	bits   int
	planes [][]float32
}

// NewLabeler creates a Labeler for embeddings of length dim producing bits
// hash bits (a positive multiple of 4). The seed fixes the hyperplanes;
// use the same seed to get stable labels across restarts.
func NewLabeler(dim, bits int, seed uint64) (*Labeler, error) {
	if bits <= 0 || bits%4 != 0 {
		return nil, fmt.Errorf("speaker: label bits must be a positive multiple of 4, got %d", bits)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("speaker: label dimension must be positive, got %d", dim)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	planes := make([][]float32, bits)
	for i := range planes {
		p := make([]float32, dim)
		for j := range p {
			p[j] = float32(rng.NormFloat64())
		}
		planes[i] = Normalize(p)
	}
	return &Labeler{dim: dim, bits: bits, planes: planes}, nil
}

// Label returns the label of embedding, which must have the Labeler's
// dimension.
func (l *Labeler) Label(embedding []float32) (string, error) {
	if len(embedding) != l.dim {
		return "", fmt.Errorf("speaker: label: embedding has %d dims, want %d", len(embedding), l.dim)
	}
	var b strings.Builder
	b.WriteString(LabelPrefix)
	for i := 0; i < l.bits; i += 4 {
		var nibble int
		for k := range 4 {
			if dot(l.planes[i+k], embedding) > 0 {
				nibble |= 1 << (3 - k)
			}
		}
		b.WriteByte(hexDigits[nibble])
	}
	return b.String(), nil
}

// Bits returns the number of hash bits.
func (l *Labeler) Bits() int { return l.bits }

// Dim returns the expected embedding dimension.
func (l *Labeler) Dim() int { return l.dim }

// Truncate shortens a label to its first bits hash bits.
func Truncate(label string, bits int) (string, error) {
	hash, ok := strings.CutPrefix(label, LabelPrefix)
	if !ok {
		return "", errors.New("speaker: not a voice label")
	}
	n := bits / 4
	if n >= len(hash) {
		return label, nil
	}
	if n <= 0 {
		return LabelPrefix + "*", nil
	}
	return LabelPrefix + hash[:n], nil
}

// Distance counts the differing bits between two labels of equal length.
func Distance(a, b string) (int, error) {
	ha, oka := strings.CutPrefix(a, LabelPrefix)
	hb, okb := strings.CutPrefix(b, LabelPrefix)
	if !oka || !okb || len(ha) != len(hb) {
		return 0, fmt.Errorf("speaker: cannot compare labels %q and %q", a, b)
	}
	var d int
	for i := range len(ha) {
		x, y := strings.IndexByte(hexDigits, ha[i]), strings.IndexByte(hexDigits, hb[i])
		if x < 0 || y < 0 {
			return 0, fmt.Errorf("speaker: malformed label %q or %q", a, b)
		}
		d += bits.OnesCount(uint(x ^ y))
	}
	return d, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	if math.IsNaN(sum) {
		return 0
	}
	return sum
}
