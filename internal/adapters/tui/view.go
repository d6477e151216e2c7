package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dkeye/roomview/internal/core"
	"github.com/dkeye/roomview/internal/domain"
)

const tilesPerRow = 3

func (m model) View() string {
	if m.screen == screenJoin {
		return m.joinView()
	}
	return m.roomView()
}

func (m model) joinView() string {
	var b strings.Builder
	b.WriteString(m.theme.title.Render("roomview"))
	b.WriteString("\n\n")
	for _, in := range m.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	form := m.theme.inputPanel.Render(strings.TrimRight(b.String(), "\n"))

	status := m.theme.status.Render(m.status)
	if m.failed {
		status = m.theme.errStatus.Render(m.status)
	}
	if m.joining {
		status = m.spinner.View() + " " + status
	}
	help := m.theme.help.Render("tab switch field · enter join · esc quit")
	return lipgloss.JoinVertical(lipgloss.Left, form, status, m.toastLine(), help)
}

func (m model) roomView() string {
	header := m.theme.header.Render(fmt.Sprintf("Room: %s · %s · %s", m.room, m.conn, m.layout.Mode))
	parts := []string{header}
	if m.banner != "" {
		parts = append(parts, m.theme.banner.Render(m.banner))
	}
	if !m.drawn {
		parts = append(parts, m.spinner.View()+" waiting for the room")
	} else {
		parts = append(parts, m.stage())
	}
	parts = append(parts, m.toastLine(), m.theme.help.Render(
		"m mic · c camera · s share · l layout · f focus · t talk · i invite · x dismiss · q leave · ctrl+c quit"))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// stage draws the focused share alone in focus layout, otherwise every
// share followed by the participant grid.
func (m model) stage() string {
	views := m.snap.All()
	if m.layout.Mode == core.ModeFocus && m.layout.Focused != nil {
		for _, v := range views {
			if v.Ref.Identity == m.layout.Focused.Identity && v.Presenting(domain.TrackScreenShare) {
				return m.theme.screenBig.Render(shareLabel(v))
			}
		}
	}

	var shares []string
	for _, v := range views {
		if v.Presenting(domain.TrackScreenShare) {
			shares = append(shares, m.theme.screen.Render(shareLabel(v)))
		}
	}
	var tiles []string
	for _, v := range views {
		tiles = append(tiles, m.tile(v))
	}
	rows := []string{}
	if len(shares) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, shares...))
	}
	rows = append(rows, grid(tiles)...)
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func grid(tiles []string) []string {
	var rows []string
	for i := 0; i < len(tiles); i += tilesPerRow {
		end := min(i+tilesPerRow, len(tiles))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, tiles[i:end]...))
	}
	return rows
}

func shareLabel(v core.ParticipantView) string {
	name := string(v.Ref.Identity)
	if v.IsLocal {
		name += " (You)"
	}
	return "▣ " + name + " is presenting"
}

func (m model) tile(v core.ParticipantView) string {
	name := string(v.Ref.Identity)
	if v.IsLocal {
		name += " (You)"
	}
	line := fmt.Sprintf("%s %s %s",
		m.indicator("mic", v.Presenting(domain.TrackAudio)),
		m.indicator("cam", v.Presenting(domain.TrackVideo)),
		qualityBars(v.Quality))
	style := m.theme.tile
	switch {
	case v.Speaking:
		style = m.theme.tileTalk
	case v.IsLocal:
		style = m.theme.tileLocal
	}
	return style.Render(name + "\n" + line)
}

func (m model) indicator(label string, on bool) string {
	if on {
		return m.theme.on.Render("● " + label)
	}
	return m.theme.off.Render("○ " + label)
}

func qualityBars(q domain.ConnectionQuality) string {
	switch q {
	case domain.QualityExcellent:
		return "▂▄▆"
	case domain.QualityGood:
		return "▂▄ "
	case domain.QualityPoor:
		return "▂  "
	}
	return "   "
}

func (m model) toastLine() string {
	if m.toast == "" {
		return ""
	}
	return m.theme.toast.Render(m.toast)
}
