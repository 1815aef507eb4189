package tui

import "github.com/charmbracelet/lipgloss"

var (
	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Width(22)
	navStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	navActiveStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginBottom(1)
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")).MarginBottom(1)
	tempStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	cardStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1).
			Align(lipgloss.Center)
	unitActiveStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mainStyle       = lipgloss.NewStyle().Padding(0, 2)
)
