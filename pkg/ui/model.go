package ui

import (
	"context"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/twin/pkg/config"
	"github.com/go-go-golems/twin/pkg/conversation"
)

const statusTTL = 3 * time.Second

type clearStatusMsg struct{ id int }

type ModelOption func(*Model)

// WithMarkdown renders assistant replies through md.
func WithMarkdown(md MarkdownRenderer) ModelOption {
	return func(m *Model) { m.markdown = md }
}

// WithClipboard replaces the function used by the copy key binding.
func WithClipboard(write func(string) error) ModelOption {
	return func(m *Model) {
		if write != nil {
			m.copy = write
		}
	}
}

// WithLocation sets the zone message times are shown in.
func WithLocation(loc *time.Location) ModelOption {
	return func(m *Model) { m.location = loc }
}

// Model is the terminal chat widget. Everything it draws comes from the
// latest snapshot plus local input state.
type Model struct {
	ctx       context.Context
	backend   *StoreBackend
	forwarder *Forwarder
	widget    config.WidgetSettings

	snap     conversation.Snapshot
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	markdown MarkdownRenderer
	location *time.Location
	copy     func(string) error

	width    int
	height   int
	status   string
	statusID int
}

// NewModel builds the widget. forwarder must be attached to the backend's
// store.
func NewModel(ctx context.Context, backend *StoreBackend, forwarder *Forwarder, widget config.WidgetSettings, opts ...ModelOption) Model {
	ti := textinput.New()
	ti.Placeholder = widget.Placeholder
	ti.Prompt = "› "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = indicatorStyle

	m := Model{
		ctx:       ctx,
		backend:   backend,
		forwarder: forwarder,
		widget:    widget,
		snap:      backend.Store().Snapshot(),
		input:     ti,
		viewport:  viewport.New(80, 20),
		spinner:   sp,
		copy:      clipboard.WriteAll,
		width:     80,
		height:    24,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.refresh(true)
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForSnapshot(m.ctx, m.forwarder))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = ev.Width, ev.Height
		m.layout()
		m.refresh(m.viewport.AtBottom())
		return m, nil

	case SnapshotMsg:
		return m.applySnapshot(ev.Snapshot)

	case ExchangeFinishedMsg:
		if ev.Err != nil {
			log.Debug().Err(ev.Err).Str("component", "ui").Msg("exchange finished with error")
		}
		return m, nil

	case spinner.TickMsg:
		if !m.snap.Pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(ev)
		m.refresh(m.viewport.AtBottom())
		return m, cmd

	case clearStatusMsg:
		if ev.id == m.statusID {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		switch ev.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			return m.submit()
		case "ctrl+y":
			return m.copyLastReply()
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(ev)
			return m, cmd
		}
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(ev)
		return m, cmd
	}

	if m.snap.Pending {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if m.snap.Pending || strings.TrimSpace(text) == "" {
		return m, nil
	}
	cmd, err := m.backend.Start(text)
	if err != nil {
		if !IsRejection(err) {
			log.Warn().Err(err).Str("component", "ui").Msg("submit failed")
		}
		return m, nil
	}
	m.input.Reset()
	return m, cmd
}

func (m Model) copyLastReply() (tea.Model, tea.Cmd) {
	last, ok := m.snap.LastAssistant()
	if !ok {
		return m, nil
	}
	if err := m.copy(last.Content); err != nil {
		log.Warn().Err(err).Str("component", "ui").Msg("clipboard write failed")
		return m.setStatus("Could not copy to clipboard")
	}
	return m.setStatus("Copied last reply")
}

func (m Model) setStatus(s string) (tea.Model, tea.Cmd) {
	m.statusID++
	m.status = s
	id := m.statusID
	return m, tea.Tick(statusTTL, func(time.Time) tea.Msg { return clearStatusMsg{id: id} })
}

func (m Model) applySnapshot(snap conversation.Snapshot) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{waitForSnapshot(m.ctx, m.forwarder)}
	if snap.Version < m.snap.Version {
		return m, tea.Batch(cmds...)
	}

	grew := len(snap.Messages) > len(m.snap.Messages)
	wasPending := m.snap.Pending
	m.snap = snap

	switch {
	case snap.Pending && !wasPending:
		m.input.Blur()
		cmds = append(cmds, m.spinner.Tick)
	case !snap.Pending && wasPending:
		cmds = append(cmds, m.input.Focus())
	}

	m.refresh(grew || m.viewport.AtBottom())
	return m, tea.Batch(cmds...)
}

// refresh re-renders the transcript, jumping to the newest message when
// follow is set.
func (m *Model) refresh(follow bool) {
	m.viewport.SetContent(RenderTranscript(m.snap, TranscriptOptions{
		Width:         m.viewport.Width,
		AssistantName: m.widget.DisplayTitle(),
		Greeting:      m.widget.Greeting(),
		Indicator:     m.spinner.View(),
		Markdown:      m.markdown,
		Location:      m.location,
	}))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) layout() {
	chrome := lipgloss.Height(m.headerView()) + lipgloss.Height(m.footerView())
	h := m.height - chrome
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.Width = m.width - 8
}

func (m Model) headerView() string {
	title := headerStyle.Width(m.width).Render(m.widget.DisplayTitle())
	if m.widget.Subtitle == "" {
		return title
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, subtitleStyle.Render(m.widget.Subtitle))
}

func (m Model) footerView() string {
	style := inputStyle
	if m.snap.Pending {
		style = inputBusyStyle
	}
	box := style.Width(m.width - 2).Render(m.input.View())
	status := m.status
	if status == "" {
		status = "enter send · ctrl+y copy reply · esc quit"
	}
	return lipgloss.JoinVertical(lipgloss.Left, box, statusStyle.Render(status))
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), m.viewport.View(), m.footerView())
}

// Snapshot is the snapshot the widget currently displays.
func (m Model) Snapshot() conversation.Snapshot { return m.snap }

// InputValue is the text currently typed into the input.
func (m Model) InputValue() string { return m.input.Value() }

// Focused reports whether the input accepts typing.
func (m Model) Focused() bool { return m.input.Focused() }

// Status is the transient notice line, empty when none is shown.
func (m Model) Status() string { return m.status }
