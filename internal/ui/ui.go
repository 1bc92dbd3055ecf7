// Package ui holds the CLI's terminal styles.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	pass   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	fail   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warn   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	accent = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Plain reports whether the terminal cannot render color, in which case
// all render helpers pass text through unchanged.
func Plain() bool {
	return termenv.EnvColorProfile() == termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if Plain() {
		return s
	}
	return style.Render(s)
}

// RenderPass styles success output.
func RenderPass(s string) string { return render(pass, s) }

// RenderFail styles error output.
func RenderFail(s string) string { return render(fail, s) }

// RenderWarn styles warning output.
func RenderWarn(s string) string { return render(warn, s) }

// RenderAccent styles titles and identifiers.
func RenderAccent(s string) string { return render(accent, s) }

// RenderMuted styles secondary detail like timestamps and tags.
func RenderMuted(s string) string { return render(muted, s) }
