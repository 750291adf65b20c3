package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/altinukshini/condense/internal/ui"
)

// RenderStatusBar lays out status on the left and key hints on the right.
// A status that is already styled keeps its own colours; one that does not
// fit is cut short so the bar stays on a single line.
func RenderStatusBar(status, hints string, width int) string {
	help := lipgloss.NewStyle().Foreground(ui.ColorMuted).
		Render(hints + " ")

	if avail := width - lipgloss.Width(help) - 2; avail > 0 && lipgloss.Width(status) > avail {
		status = ansi.Truncate(status, avail, "…")
	}
	left := lipgloss.NewStyle().Foreground(ui.ColorMuted).Render("  " + status)

	gap := width - lipgloss.Width(left) - lipgloss.Width(help)
	if gap < 0 {
		gap = 0
	}
	padding := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.NewStyle().
		Background(lipgloss.Color("#111827")).
		Width(width).
		Render(left + padding + help)
}
