package styles

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

// Palette for command output
const (
	ColorAddress = "#9CDCFE" // addresses (light blue)
	ColorName    = "#DCDCAA" // target names (yellow)
	ColorOK      = "#B5CEA8" // resolved (light green)
	ColorError   = "#F44747" // failures (red)
	ColorMuted   = "#858585" // secondary text (gray)
)

var (
	Header  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(charmtone.Malibu.Hex()))
	Name    = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorName)).Bold(true)
	Address = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAddress))
	OK      = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorOK))
	Error   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	Muted   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted))
)
