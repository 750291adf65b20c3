package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/altinukshini/condense/internal/ui"
)

// RenderHeader shows the program name with the repo (when job logs are
// open) on the left and how many open documents are condensed on the right.
func RenderHeader(repo string, actives, docs int, width int) string {
	title := " condense"
	if repo != "" {
		title += " | " + repo
	}
	left := lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.Color("#F9FAFB")).
		Render(title)

	count := ""
	if docs > 0 {
		color := ui.ColorMuted
		if actives > 0 {
			color = ui.ColorSuccess
		}
		count = lipgloss.NewStyle().Foreground(color).
			Render(fmt.Sprintf("%d/%d condensed ", actives, docs))
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(count)
	if gap < 0 {
		gap = 0
	}
	padding := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.NewStyle().
		Background(ui.ColorHighlight).
		Width(width).
		Render(left + padding + count)
}
