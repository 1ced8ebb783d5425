package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/muurk/lemuria/internal/events"
	"github.com/muurk/lemuria/internal/server"
)

const (
	// maxEvents bounds the event log kept in memory
	maxEvents = 500

	statusInterval = 2 * time.Second
	reconnectDelay = 3 * time.Second
	dialTimeout    = 5 * time.Second
)

// Messages for async operations
type eventMsg events.Event

type eventsConnectedMsg struct {
	conn *websocket.Conn
}

type eventsClosedMsg struct {
	err error
}

type statusMsg struct {
	status *server.Status
	err    error
}

type statusTickMsg struct{}
type reconnectMsg struct{}

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Clear     key.Binding
	Reconnect key.Binding
	Quit      key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Clear, k.Reconnect, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Clear, k.Reconnect, k.Quit},
	}
}

func defaultWatchKeys() watchKeyMap {
	return watchKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear log"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reconnect"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
	}
}

// WatchModel shows the live status and event stream of a running emulator
type WatchModel struct {
	client *Client
	conn   *websocket.Conn

	Status     *server.Status
	StatusErr  error
	Events     []events.Event
	EventsErr  error
	Connecting bool

	Spinner  spinner.Model
	Viewport viewport.Model
	Help     help.Model
	Keys     watchKeyMap

	Width  int
	Height int
}

// NewWatchModel creates a watch screen for the monitor reached through client
func NewWatchModel(client *Client) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	return WatchModel{
		client:     client,
		Connecting: true,
		Spinner:    s,
		Viewport:   viewport.New(80, 10),
		Help:       help.New(),
		Keys:       defaultWatchKeys(),
	}
}

// Init starts the event connection and the first status poll
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(
		m.connect(),
		m.fetchStatus(),
		m.Spinner.Tick,
	)
}

// connect dials the event WebSocket
func (m WatchModel) connect() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()

		conn, err := client.DialEvents(ctx)
		if err != nil {
			return eventsClosedMsg{err: err}
		}
		return eventsConnectedMsg{conn: conn}
	}
}

// listen reads the next event from conn
func listen(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		var e events.Event
		if err := conn.ReadJSON(&e); err != nil {
			return eventsClosedMsg{err: err}
		}
		return eventMsg(e)
	}
}

// fetchStatus polls /status once
func (m WatchModel) fetchStatus() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()

		st, err := client.Status(ctx)
		return statusMsg{status: st, err: err}
	}
}

// Update handles messages and updates the model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			if m.conn != nil {
				m.conn.Close()
			}
			return m, tea.Quit

		case key.Matches(msg, m.Keys.Clear):
			m.Events = nil
			m.refreshLog()
			return m, nil

		case key.Matches(msg, m.Keys.Reconnect):
			if m.conn == nil && !m.Connecting {
				m.Connecting = true
				return m, tea.Batch(m.connect(), m.Spinner.Tick)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		m.Viewport.Width = msg.Width
		// Title, status box, log heading and help line
		m.Viewport.Height = max(msg.Height-13, 3)
		m.refreshLog()
		return m, nil

	case eventsConnectedMsg:
		m.conn = msg.conn
		m.Connecting = false
		m.EventsErr = nil
		return m, listen(msg.conn)

	case eventMsg:
		m.Events = append(m.Events, events.Event(msg))
		if len(m.Events) > maxEvents {
			m.Events = m.Events[len(m.Events)-maxEvents:]
		}
		m.refreshLog()
		if m.conn == nil {
			return m, nil
		}
		return m, listen(m.conn)

	case eventsClosedMsg:
		if m.conn != nil {
			m.conn.Close()
		}
		m.conn = nil
		m.Connecting = false
		m.EventsErr = msg.err
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		if m.conn != nil || m.Connecting {
			return m, nil
		}
		m.Connecting = true
		return m, tea.Batch(m.connect(), m.Spinner.Tick)

	case statusMsg:
		if msg.err != nil {
			m.StatusErr = msg.err
		} else {
			m.Status = msg.status
			m.StatusErr = nil
		}
		return m, tea.Tick(statusInterval, func(time.Time) tea.Msg { return statusTickMsg{} })

	case statusTickMsg:
		return m, m.fetchStatus()

	case spinner.TickMsg:
		if !m.Connecting {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	m.Viewport, cmd = m.Viewport.Update(msg)
	return m, cmd
}

// refreshLog re-renders the event log into the viewport
func (m *WatchModel) refreshLog() {
	lines := make([]string, len(m.Events))
	for i, e := range m.Events {
		lines[i] = formatEvent(e)
	}
	m.Viewport.SetContent(strings.Join(lines, "\n"))
	m.Viewport.GotoBottom()
}

// formatEvent renders one event log line
func formatEvent(e events.Event) string {
	var detail string
	switch e.Type {
	case events.StreamEnabled, events.StreamDisabled:
		if e.Stream != nil {
			detail = fmt.Sprintf("stream %d", *e.Stream)
		}
	default:
		detail = e.RemoteAddr
		if e.SessionID != "" {
			detail += " session " + shortID(e.SessionID)
		}
	}

	return TimeStyle.Render(e.Time.Local().Format("15:04:05.000")) + "  " +
		eventStyle(e.Type).Render(fmt.Sprintf("%-20s", e.Type)) + " " +
		strings.TrimSpace(detail)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// View renders the watch screen
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(AppName))
	b.WriteString("  ")
	b.WriteString(SubtitleStyle.Render(m.client.StatusURL()))
	b.WriteString("\n\n")

	b.WriteString(StatusBoxStyle.Render(m.renderStatus()))
	b.WriteString("\n\n")

	switch {
	case m.Connecting:
		b.WriteString(m.Spinner.View() + " Connecting to " + m.client.EventsURL())
	case m.conn == nil && m.EventsErr != nil:
		b.WriteString(ErrorStyle.Render("Event stream disconnected: " + m.EventsErr.Error()))
	default:
		b.WriteString(SubtitleStyle.Render(fmt.Sprintf("Events (%d)", len(m.Events))))
	}
	b.WriteString("\n")
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.Help.View(m.Keys))

	return b.String()
}

func (m WatchModel) renderStatus() string {
	if m.Status == nil {
		if m.StatusErr != nil {
			return ErrorStyle.Render(m.StatusErr.Error())
		}
		return IdleStyle.Render("Waiting for status...")
	}

	st := m.Status
	row := func(label, value string) string {
		return LabelStyle.Render(label) + ValueStyle.Render(value)
	}

	session := IdleStyle.Render("idle")
	if st.Session.Connected {
		session = ConnectedStyle.Render("connected") + " " +
			ValueStyle.Render(st.Session.RemoteAddr+" since "+st.Session.ConnectedAt.Local().Format("15:04:05"))
	}

	streams := "none"
	if len(st.ActiveStreams) > 0 {
		parts := make([]string, len(st.ActiveStreams))
		for i, s := range st.ActiveStreams {
			parts[i] = fmt.Sprint(s)
		}
		streams = strings.Join(parts, ", ")
	}

	lines := []string{
		row("Device", st.Serial+" ("+st.Board+")"),
		row("Listening", st.TCPAddr),
		LabelStyle.Render("Session") + session,
		row("Streams", streams),
		row("Frames", fmt.Sprintf("%d in, %d out, %d dropped, queue %d", st.FramesIn, st.FramesOut, st.Dropped, st.QueueDepth)),
	}
	if m.StatusErr != nil {
		lines = append(lines, ErrorStyle.Render("stale: "+m.StatusErr.Error()))
	}
	return strings.Join(lines, "\n")
}

// Run starts the watch screen in the alternate screen buffer and blocks
// until the user quits
func Run(client *Client) error {
	p := tea.NewProgram(NewWatchModel(client), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
