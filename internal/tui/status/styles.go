package status

import "github.com/charmbracelet/lipgloss"

// Color palette shared with the state API band colors.
var (
	colorDone    = lipgloss.Color("#22C55E")
	colorActive  = lipgloss.Color("#EAB308")
	colorFail    = lipgloss.Color("#EF4444")
	colorOrange  = lipgloss.Color("#F97316")
	colorPrimary = lipgloss.Color("#4A9EFF")
	colorDim     = lipgloss.Color("#9CA3AF")
	colorWhite   = lipgloss.Color("#F9FAFB")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorDim)

	messageStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			MarginTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(colorDim)

	summaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1).
			MarginTop(1)

	doneStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorDone)
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(colorActive)
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorFail)
	orangeStyle = lipgloss.NewStyle().Bold(true).Foreground(colorOrange)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
)

// bandStyle maps a configured band color name onto a lipgloss style.
func bandStyle(color string) lipgloss.Style {
	switch color {
	case "green":
		return doneStyle
	case "yellow":
		return activeStyle
	case "orange":
		return orangeStyle
	case "red":
		return failStyle
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
}
