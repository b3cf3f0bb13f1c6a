package cli

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0ms"},
		{32 * time.Millisecond, "32ms"},
		{999 * time.Millisecond, "999ms"},
		{time.Second, "1.0s"},
		{1500 * time.Millisecond, "1.5s"},
		{59 * time.Second, "59.0s"},
		{time.Minute, "1m0.0s"},
		{90 * time.Second, "1m30.0s"},
		{125500 * time.Millisecond, "2m5.5s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatDuration(tt.d); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestFormatBar(t *testing.T) {
	tests := []struct {
		p    float32
		want string
	}{
		{0, "····"},
		{0.5, "██··"},
		{1, "████"},
		{-1, "····"},
		{2, "████"},
	}
	for _, tt := range tests {
		if got := FormatBar(tt.p, 4); got != tt.want {
			t.Errorf("FormatBar(%f) = %q, want %q", tt.p, got, tt.want)
		}
	}
}
