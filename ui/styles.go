package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ftahirops/nbstat/resource"
)

var (
	statusStyle = lipgloss.NewStyle().Foreground(resource.ColorCyan)
	scrollStyle = lipgloss.NewStyle().Foreground(resource.ColorGray).Italic(true)
)
