package ui

import "github.com/charmbracelet/lipgloss"

var (
	emerald   = lipgloss.Color("36")
	mint      = lipgloss.Color("157")
	slate     = lipgloss.Color("240")
	slateDark = lipgloss.Color("237")
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(emerald).Padding(0, 2)
	subtitleStyle = lipgloss.NewStyle().Foreground(mint).Padding(0, 2)

	emptyTitleStyle = lipgloss.NewStyle().Bold(true)
	emptyHintStyle  = lipgloss.NewStyle().Foreground(slate)

	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(emerald)
	timeStyle           = lipgloss.NewStyle().Foreground(slate)

	userBubbleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(slateDark).Padding(0, 1)
	assistantBubbleStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(emerald).Padding(0, 1)

	indicatorStyle = lipgloss.NewStyle().Foreground(emerald)
	inputStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(slate).Padding(0, 1)
	inputBusyStyle = inputStyle.BorderForeground(slateDark)
	statusStyle    = lipgloss.NewStyle().Foreground(slate).Italic(true)
)
