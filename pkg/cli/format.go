package cli

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration formats d as "32ms", "1.5s" or "2m5.5s".
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	secs = secs - float64(mins*60)
	return fmt.Sprintf("%dm%.1fs", mins, secs)
}

// FormatBar draws p in [0, 1] as a bar of width cells.
func FormatBar(p float32, width int) string {
	p = max(0, min(1, p))
	n := int(p*float32(width) + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("·", width-n)
}
