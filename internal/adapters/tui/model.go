package tui

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dkeye/roomview/internal/app"
	"github.com/dkeye/roomview/internal/core"
	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	actionTimeout = 15 * time.Second
	toastTTL      = 4 * time.Second
)

// Client is the part of app.Client the terminal drives.
type Client interface {
	Join(ctx context.Context, username, room string) (*app.Session, error)
	Leave(ctx context.Context) error
	Current() *app.Session
	LastName() string
}

type joinResultMsg struct {
	room string
	err  error
}

type actionDoneMsg struct {
	what string
	err  error
}

type leftMsg struct{}

type toastExpireMsg struct {
	seq int
}

type screen int

const (
	screenJoin screen = iota
	screenRoom
)

type model struct {
	client    Client
	inviteURL string

	screen  screen
	inputs  []textinput.Model
	focus   int
	spinner spinner.Model
	joining bool
	status  string
	failed  bool

	room     string
	conn     core.ConnState
	snap     core.RosterSnapshot
	layout   core.LayoutState
	drawn    bool
	speaking bool

	toast    string
	toastSeq int
	banner   string

	width  int
	height int
	theme  styles
}

// NewModel builds the program model. inviteURL is the page peers open to
// join; the room name is appended as a query parameter.
func NewModel(client Client, room, inviteURL string) tea.Model {
	return newModel(client, room, inviteURL)
}

func newModel(client Client, room, inviteURL string) model {
	name := textinput.New()
	name.Prompt = "name ❯ "
	name.CharLimit = domain.MaxIdentityLen
	name.Placeholder = "your display name"
	name.SetValue(client.LastName())
	name.Focus()

	roomInput := textinput.New()
	roomInput.Prompt = "room ❯ "
	roomInput.CharLimit = domain.MaxRoomNameLen
	roomInput.Placeholder = "room to join"
	roomInput.SetValue(room)

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	m := model{
		client:    client,
		inviteURL: inviteURL,
		inputs:    []textinput.Model{name, roomInput},
		spinner:   sp,
		status:    "enter a name and a room",
		theme:     newStyles(),
	}
	if name.Value() != "" && room == "" {
		m.setFocus(1)
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink)
}

func (m *model) setFocus(i int) {
	m.focus = i
	for j := range m.inputs {
		if j == i {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quitCmd()
		}
		if m.screen == screenJoin {
			return m.updateJoin(msg)
		}
		return m.updateRoom(msg)
	case joinResultMsg:
		m.joining = false
		if msg.err != nil {
			m.failed = true
			m.status = "join failed: " + msg.err.Error()
			return m, nil
		}
		m.failed = false
		m.screen = screenRoom
		m.room = msg.room
		m.status = ""
	case actionDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, core.ErrSessionClosed) {
			log.Warn().Err(msg.err).Str("module", "tui").Str("action", msg.what).Msg("action failed")
			if m.toast == "" {
				cmds = append(cmds, m.showToast(msg.what+" failed"))
			}
		}
	case leftMsg:
		m.backToJoin("left the room")
	case renderMsg:
		m.snap = msg.snap
		m.layout = msg.layout
		m.drawn = true
	case indicatorsMsg:
		m.snap = msg.snap
	case clearMsg:
		m.snap = core.RosterSnapshot{}
		m.layout = core.LayoutState{}
		m.drawn = false
	case connMsg:
		m.conn = msg.tr.To
		if msg.tr.To == core.StateDisconnected && m.screen == screenRoom {
			m.backToJoin("disconnected")
		}
	case toastMsg:
		cmds = append(cmds, m.showToast(msg.text))
	case toastExpireMsg:
		if msg.seq == m.toastSeq {
			m.toast = ""
		}
	case bannerMsg:
		m.banner = msg.text
	}
	return m, tea.Batch(cmds...)
}

func (m *model) backToJoin(status string) {
	m.screen = screenJoin
	m.status = status
	m.banner = ""
	m.speaking = false
	m.snap = core.RosterSnapshot{}
	m.layout = core.LayoutState{}
	m.drawn = false
	m.setFocus(1)
}

func (m *model) showToast(text string) tea.Cmd {
	m.toast = text
	m.toastSeq++
	seq := m.toastSeq
	return tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpireMsg{seq: seq} })
}

func (m model) updateJoin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab", "down", "shift+tab", "up":
		m.setFocus((m.focus + 1) % len(m.inputs))
		return m, nil
	case "enter":
		if m.joining {
			return m, nil
		}
		name := strings.TrimSpace(m.inputs[0].Value())
		room := strings.TrimSpace(m.inputs[1].Value())
		if name == "" || room == "" {
			m.failed = true
			m.status = "name and room are required"
			return m, nil
		}
		m.joining = true
		m.failed = false
		m.status = "joining " + room
		return m, tea.Batch(m.spinner.Tick, joinCmd(m.client, name, room))
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m model) updateRoom(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "m":
		return m, m.sessionCmd("microphone", (*app.Session).ToggleMicrophone)
	case "c":
		return m, m.sessionCmd("camera", (*app.Session).ToggleCamera)
	case "s":
		return m, m.sessionCmd("screen share", (*app.Session).ToggleScreenShare)
	case "l":
		return m, m.sessionCmd("layout", (*app.Session).ToggleLayout)
	case "t":
		m.speaking = !m.speaking
		on := m.speaking
		return m, m.sessionCmd("speaking", func(s *app.Session, ctx context.Context) error {
			return s.SetSpeaking(ctx, on)
		})
	case "f":
		next, ok := nextPresenter(m.snap, m.layout)
		if !ok {
			return m, m.showToast("No screen share to focus")
		}
		return m, m.sessionCmd("focus", func(s *app.Session, ctx context.Context) error {
			return s.FocusOn(ctx, next)
		})
	case "i":
		return m, m.showToast("Invite link: " + m.invite())
	case "x":
		m.banner = ""
		return m, nil
	case "q":
		return m, leaveCmd(m.client)
	}
	return m, nil
}

func (m model) invite() string {
	u, err := url.Parse(m.inviteURL)
	if err != nil || m.inviteURL == "" {
		return m.room
	}
	q := u.Query()
	q.Set("room", m.room)
	u.RawQuery = q.Encode()
	return u.String()
}

// nextPresenter picks the sharer after the focused one, wrapping around.
func nextPresenter(snap core.RosterSnapshot, layout core.LayoutState) (domain.Identity, bool) {
	var sharers []domain.Identity
	for _, v := range snap.All() {
		if v.Presenting(domain.TrackScreenShare) {
			sharers = append(sharers, v.Ref.Identity)
		}
	}
	if len(sharers) == 0 {
		return "", false
	}
	if layout.Focused == nil {
		return sharers[0], true
	}
	for i, id := range sharers {
		if id == layout.Focused.Identity {
			return sharers[(i+1)%len(sharers)], true
		}
	}
	return sharers[0], true
}

func joinCmd(client Client, name, room string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		_, err := client.Join(ctx, name, room)
		return joinResultMsg{room: room, err: err}
	}
}

func leaveCmd(client Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := client.Leave(ctx); err != nil {
			log.Warn().Err(err).Str("module", "tui").Msg("leave")
		}
		return leftMsg{}
	}
}

func (m model) quitCmd() tea.Cmd {
	client := m.client
	return tea.Sequence(func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		_ = client.Leave(ctx)
		return nil
	}, tea.Quit)
}

func (m model) sessionCmd(what string, fn func(*app.Session, context.Context) error) tea.Cmd {
	s := m.client.Current()
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{what: what, err: fn(s, ctx)}
	}
}
