package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/vidcoach/internal/agent"
)

var (
	colorAccent = lipgloss.Color("#7AA2F7")
	colorOK     = lipgloss.Color("#9ECE6A")
	colorErr    = lipgloss.Color("#F7768E")
	colorMuted  = lipgloss.Color("#565F89")

	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleOK    = lipgloss.NewStyle().Foreground(colorOK)
	styleErr   = lipgloss.NewStyle().Bold(true).Foreground(colorErr)
	styleMuted = lipgloss.NewStyle().Foreground(colorMuted)
	styleIndex = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Width(4)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
)

// observationWidth is the wrap width of one observation line in the summary box.
const observationWidth = 76

// renderAnswer formats a finished run for the terminal.
func renderAnswer(ans *agent.FinalAnswer, model string) string {
	var rows []string
	rows = append(rows, styleTitle.Render("Technique observations"))
	rows = append(rows, "")

	if len(ans.Observations) == 0 {
		rows = append(rows, strings.TrimSpace(ans.Text))
	}
	for i, obs := range ans.Observations {
		body := lipgloss.NewStyle().Width(observationWidth).Render(obs)
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			styleIndex.Render(fmt.Sprintf("%d.", i+1)), body))
	}

	rows = append(rows, "")
	rows = append(rows, styleMuted.Render(fmt.Sprintf(
		"%s · %d round-trips · %d in / %d out tokens · ~$%.4f · run %s",
		model, ans.Usage.RoundTrips, ans.Usage.InputUnits, ans.Usage.OutputUnits,
		ans.Usage.EstimatedCost, ans.RunID)))

	return styleBox.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)) + "\n"
}

// truncateCell cuts s to at most width terminal cells, collapsing newlines.
func truncateCell(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "...")
}

// padCell pads or truncates s to exactly width terminal cells.
func padCell(s string, width int) string {
	return runewidth.FillRight(truncateCell(s, width), width)
}
