package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	header     lipgloss.Style
	title      lipgloss.Style
	tile       lipgloss.Style
	tileTalk   lipgloss.Style
	tileLocal  lipgloss.Style
	screen     lipgloss.Style
	screenBig  lipgloss.Style
	on         lipgloss.Style
	off        lipgloss.Style
	banner     lipgloss.Style
	toast      lipgloss.Style
	status     lipgloss.Style
	errStatus  lipgloss.Style
	help       lipgloss.Style
	inputPanel lipgloss.Style
}

func newStyles() styles {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	amber := lipgloss.Color("#ffd166")
	muted := lipgloss.Color("#9ca3d8")

	tile := lipgloss.NewStyle().
		Width(22).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(muted)

	return styles{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue),
		title:     lipgloss.NewStyle().Foreground(pink).Bold(true),
		tile:      tile,
		tileTalk:  tile.BorderForeground(mint),
		tileLocal: tile.BorderForeground(blue),
		screen: lipgloss.NewStyle().
			Width(30).
			Padding(0, 1).
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(amber),
		screenBig: lipgloss.NewStyle().
			Width(70).
			Height(8).
			Padding(1, 2).
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(amber),
		on:         lipgloss.NewStyle().Foreground(mint),
		off:        lipgloss.NewStyle().Foreground(muted),
		banner:     lipgloss.NewStyle().Foreground(lipgloss.Color("#22062f")).Background(amber).Bold(true).Padding(0, 1),
		toast:      lipgloss.NewStyle().Foreground(blue).Italic(true),
		status:     lipgloss.NewStyle().Foreground(blue).Bold(true),
		errStatus:  lipgloss.NewStyle().Foreground(pink).Bold(true),
		help:       lipgloss.NewStyle().Foreground(muted),
		inputPanel: lipgloss.NewStyle().Padding(0, 1).BorderStyle(lipgloss.RoundedBorder()).BorderForeground(pink),
	}
}
