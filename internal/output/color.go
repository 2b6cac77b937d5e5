package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	ColorPrimary = lipgloss.Color("#64b5f6")
	ColorSuccess = lipgloss.Color("#66bb6a")
	ColorError   = lipgloss.Color("#ef5350")
	ColorHigh    = lipgloss.Color("#ffa726")
	ColorWarning = lipgloss.Color("#fff59d")
	ColorMuted   = lipgloss.Color("#888888")
)

type styles struct {
	header  lipgloss.Style
	success lipgloss.Style
	muted   lipgloss.Style
	bold    lipgloss.Style
	levels  map[int]lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{header: plain, success: plain, muted: plain, bold: plain, levels: map[int]lipgloss.Style{}}
	}
	return styles{
		header:  lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true),
		success: lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(ColorMuted),
		bold:    lipgloss.NewStyle().Bold(true),
		levels: map[int]lipgloss.Style{
			5: lipgloss.NewStyle().Foreground(ColorError).Bold(true),
			4: lipgloss.NewStyle().Foreground(ColorHigh),
			3: lipgloss.NewStyle().Foreground(ColorWarning),
			2: lipgloss.NewStyle().Foreground(ColorPrimary),
			1: lipgloss.NewStyle().Foreground(ColorMuted),
		},
	}
}

func (s styles) level(l int) lipgloss.Style {
	if st, ok := s.levels[l]; ok {
		return st
	}
	return lipgloss.NewStyle()
}

var current = newStyles(true)

// SetNoColor disables or re-enables styled output.
func SetNoColor(disabled bool) {
	current = newStyles(!disabled)
}

// ColorEnabled reports whether f is a terminal and NO_COLOR is unset.
func ColorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
