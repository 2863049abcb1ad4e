// Package styles provides shared lipgloss styles for terminal output.
package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Tokyo Night color palette.
var (
	ColorGreen  = lipgloss.Color("#9ece6a")
	ColorYellow = lipgloss.Color("#e0af68")
	ColorBlue   = lipgloss.Color("#7aa2f7")
	ColorGray   = lipgloss.Color("#565f89")
	ColorWhite  = lipgloss.Color("#c0caf5")
)

// Banner ASCII art for the serve header.
const Banner = `
 ╦ ╦╔═╗╔═╗╔═╗╔╗╔╔╦╗
 ║║║╠═╣╚═╗║╣ ║║║ ║║
 ╚╩╝╩ ╩╚═╝╚═╝╝╚╝═╩╝`

// BannerStyle styles the ASCII art banner.
var BannerStyle = lipgloss.NewStyle().
	Foreground(ColorGreen).
	Bold(true)

// TitleStyle styles box titles.
var TitleStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true)

// HintStyle styles secondary guidance text.
var HintStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// PairingBoxStyle frames the pairing QR code.
var PairingBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorGreen).
	Padding(0, 1)
