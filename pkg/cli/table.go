package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
	Border lipgloss.Style
	Footer lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Cell:   lipgloss.NewStyle(),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Footer: lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// PlainStyles renders without colors, for tests and pipes.
func PlainStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle(),
		Cell:   lipgloss.NewStyle(),
		Border: lipgloss.NewStyle(),
		Footer: lipgloss.NewStyle(),
	}
}

// Table is a boxed text table.
type Table struct {
	Headers []string
	Rows    [][]string
	Footer  string

	// MaxWidth truncates cells wider than this many columns; 0 disables.
	MaxWidth int
}

// Render draws the table with box characters.
func (t Table) Render(s Styles) string {
	cols := len(t.Headers)
	for _, row := range t.Rows {
		cols = max(cols, len(row))
	}
	cell := func(row []string, i int) string {
		if i >= len(row) {
			return ""
		}
		text := row[i]
		if t.MaxWidth > 1 && lipgloss.Width(text) > t.MaxWidth {
			text = truncateString(text, t.MaxWidth-1) + "…"
		}
		return text
	}

	widths := make([]int, cols)
	for i := range cols {
		widths[i] = lipgloss.Width(cell(t.Headers, i))
		for _, row := range t.Rows {
			widths[i] = max(widths[i], lipgloss.Width(cell(row, i)))
		}
	}

	bc := s.Border
	rule := func(left, mid, right string) string {
		parts := make([]string, cols)
		for i, w := range widths {
			parts[i] = strings.Repeat("─", w+2)
		}
		return bc.Render(left + strings.Join(parts, mid) + right)
	}
	line := func(row []string, style lipgloss.Style) string {
		var b strings.Builder
		b.WriteString(bc.Render("│"))
		for i, w := range widths {
			text := cell(row, i)
			b.WriteString(" " + style.Render(text) + strings.Repeat(" ", w-lipgloss.Width(text)) + " ")
			b.WriteString(bc.Render("│"))
		}
		return b.String()
	}

	lines := []string{rule("╭", "┬", "╮")}
	if len(t.Headers) > 0 {
		lines = append(lines, line(t.Headers, s.Header), rule("├", "┼", "┤"))
	}
	for _, row := range t.Rows {
		lines = append(lines, line(row, s.Cell))
	}
	lines = append(lines, rule("╰", "┴", "╯"))
	if t.Footer != "" {
		lines = append(lines, s.Footer.Render(t.Footer))
	}
	return strings.Join(lines, "\n")
}

// truncateString safely truncates a string to the given width,
// handling multi-byte characters correctly.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
