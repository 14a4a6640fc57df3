package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("141")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255"))

	taglineStyle = lipgloss.NewStyle().
			Foreground(accent)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("183")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 3).
			Width(56)

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("98")).
			Padding(0, 2)

	buttonDisabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("237")).
				Padding(0, 2)

	chipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("183")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	// Session view styles
	stateTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255"))

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("98")).
			Padding(0, 1)

	hostLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent)

	playerLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("250"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 2)

	endStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("210")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("131")).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))
)

// indicatorColor tints the status glyph by state.
var indicatorColor = map[string]lipgloss.Color{
	"host-speaking":        lipgloss.Color("135"),
	"participant-speaking": lipgloss.Color("141"),
	"ready":                lipgloss.Color("250"),
	"connecting":           lipgloss.Color("242"),
}
