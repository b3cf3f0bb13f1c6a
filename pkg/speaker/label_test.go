package speaker

import (
	"strings"
	"testing"
)

func ramp(dim int, step, offset float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(i)*step + offset
	}
	return v
}

func TestLabelDeterministic(t *testing.T) {
	l, err := NewLabeler(192, 16, 42)
	if err != nil {
		t.Fatal(err)
	}
	a, err := l.Label(ramp(192, 0.01, 0))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := l.Label(ramp(192, 0.01, 0))
	if a != b {
		t.Errorf("same embedding produced %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "voice:") || len(a) != len("voice:")+4 {
		t.Errorf("label = %q", a)
	}

	// Same seed, new Labeler: same hyperplanes.
	l2, _ := NewLabeler(192, 16, 42)
	if c, _ := l2.Label(ramp(192, 0.01, 0)); c != a {
		t.Errorf("seeded labeler produced %q, want %q", c, a)
	}
}

func TestLabelScaleInvariant(t *testing.T) {
	l, _ := NewLabeler(64, 16, 7)
	v := ramp(64, 0.1, -3)
	w := make([]float32, len(v))
	for i := range v {
		w[i] = v[i] * 5
	}
	a, _ := l.Label(v)
	b, _ := l.Label(w)
	if a != b {
		t.Errorf("scaled embedding changed label: %q vs %q", a, b)
	}
	neg := make([]float32, len(v))
	for i := range v {
		neg[i] = -v[i]
	}
	c, _ := l.Label(neg)
	if d, _ := Distance(a, c); d != 16 {
		t.Errorf("negated embedding distance = %d, want 16", d)
	}
}

func TestLabelErrors(t *testing.T) {
	if _, err := NewLabeler(192, 6, 1); err == nil {
		t.Error("expected error for bits not multiple of 4")
	}
	if _, err := NewLabeler(0, 16, 1); err == nil {
		t.Error("expected error for zero dim")
	}
	l, _ := NewLabeler(8, 8, 1)
	if _, err := l.Label(make([]float32, 4)); err == nil {
		t.Error("expected error for dimension mismatch")
	}
	if l.Bits() != 8 || l.Dim() != 8 {
		t.Errorf("Bits/Dim = %d/%d", l.Bits(), l.Dim())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		bits int
		want string
	}{
		{16, "voice:A3F8"},
		{20, "voice:A3F8"},
		{12, "voice:A3F"},
		{8, "voice:A3"},
		{0, "voice:*"},
	}
	for _, tt := range tests {
		got, err := Truncate("voice:A3F8", tt.bits)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Truncate(%d) = %q, want %q", tt.bits, got, tt.want)
		}
	}
	if _, err := Truncate("A3F8", 8); err == nil {
		t.Error("expected error without prefix")
	}
}

func TestDistance(t *testing.T) {
	d, err := Distance("voice:A3F8", "voice:A3F9")
	if err != nil || d != 1 {
		t.Errorf("Distance = %d, %v; want 1", d, err)
	}
	if d, _ := Distance("voice:0000", "voice:FFFF"); d != 16 {
		t.Errorf("Distance = %d, want 16", d)
	}
	if _, err := Distance("voice:A3", "voice:A3F8"); err == nil {
		t.Error("expected error for length mismatch")
	}
	if _, err := Distance("voice:ZZ", "voice:00"); err == nil {
		t.Error("expected error for malformed label")
	}
}
