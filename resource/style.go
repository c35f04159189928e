package resource

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	ColorRed     = lipgloss.Color("#FF5555")
	ColorYellow  = lipgloss.Color("#F1FA8C")
	ColorGreen   = lipgloss.Color("#50FA7B")
	ColorCyan    = lipgloss.Color("#8BE9FD")
	ColorMagenta = lipgloss.Color("#FF79C6")
	ColorOrange  = lipgloss.Color("#FFB86C")
	ColorBlue    = lipgloss.Color("#6C8CFF")
	ColorWhite   = lipgloss.Color("#F8F8F2")
	ColorGray    = lipgloss.Color("#6272A4")

	plainStyle    = lipgloss.NewStyle()
	boldStyle     = lipgloss.NewStyle().Bold(true)
	hostStyle     = lipgloss.NewStyle().Bold(true).Foreground(ColorCyan)
	deviceIDStyle = lipgloss.NewStyle().Foreground(ColorBlue)
	memoryStyle   = lipgloss.NewStyle().Foreground(ColorOrange)
	powerStyle    = lipgloss.NewStyle().Foreground(ColorMagenta)
	utilStyle     = lipgloss.NewStyle().Foreground(ColorGreen)
	tempStyle     = lipgloss.NewStyle().Foreground(ColorRed)
)
