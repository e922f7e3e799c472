package main

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/runic-sh/runic/lib/config"
	"github.com/runic-sh/runic/lib/host"
	"github.com/runic-sh/runic/lib/plugin"
)

var (
	promptStyle   = lipgloss.NewStyle().Bold(true)
	pluginStyle   = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	descStyle     = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// eventMsg wraps an orchestrator event for bubbletea.
type eventMsg struct {
	event host.Event
}

// sessionEndedMsg means the event channel closed.
type sessionEndedMsg struct{}

type model struct {
	orch *host.Orchestrator
	cfg  config.Config

	query  string
	cursor int
	states []host.PluginState
	errMsg string
}

// row is one selectable line: a match and its owning plugin.
type row struct {
	info  plugin.PluginInfo
	match plugin.Match
}

func newModel(orch *host.Orchestrator, cfg config.Config) model {
	return model{orch: orch, cfg: cfg}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.nextEvent()}
	if m.cfg.ShowResultsImmediately {
		orch := m.orch
		cmds = append(cmds, func() tea.Msg {
			orch.Query("")
			return nil
		})
	}
	return tea.Batch(cmds...)
}

func (m model) nextEvent() tea.Cmd {
	events := m.orch.Events()
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return sessionEndedMsg{}
		}
		return eventMsg{event: event}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		switch event := msg.event.(type) {
		case host.EventClose:
			return m, tea.Quit
		case host.EventError:
			m.errMsg = event.Err.Error()
			m.states = m.orch.Snapshot()
			return m, m.nextEvent()
		default:
			m.states = m.orch.Snapshot()
			m.clampCursor()
			return m, m.nextEvent()
		}

	case sessionEndedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyUp:
			m.moveCursor(-1)
		case tea.KeyDown, tea.KeyTab:
			m.moveCursor(1)
		case tea.KeyEnter:
			if r, ok := m.selected(); ok {
				m.orch.Select(r.info, r.match)
			}
		case tea.KeyBackspace:
			if m.query != "" {
				m.query = m.query[:len(m.query)-1]
				m.orch.Query(m.query)
			}
		case tea.KeySpace:
			m.query += " "
			m.orch.Query(m.query)
		case tea.KeyRunes:
			m.query += string(msg.Runes)
			m.orch.Query(m.query)
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(promptStyle.Render("> "+m.query) + "\n")
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render("session error: "+m.errMsg) + "\n")
	}

	i := 0
	for _, state := range m.states {
		if !state.Visible || !state.Enabled || len(state.Matches) == 0 {
			continue
		}
		b.WriteString(pluginStyle.Render(state.Info.Name) + "\n")
		for _, match := range state.Matches {
			if m.cfg.MaxEntries > 0 && i >= m.cfg.MaxEntries {
				return b.String()
			}
			line := "  " + match.Title
			if match.Description != "" {
				line += " " + descStyle.Render(match.Description)
			}
			if i == m.cursor {
				line = selectedStyle.Render(line)
			}
			b.WriteString(line + "\n")
			i++
		}
	}
	return b.String()
}

// rows flattens the visible matches in plugin load order.
func (m model) rows() []row {
	var rows []row
	for _, state := range m.states {
		if !state.Visible || !state.Enabled {
			continue
		}
		for _, match := range state.Matches {
			if m.cfg.MaxEntries > 0 && len(rows) >= m.cfg.MaxEntries {
				return rows
			}
			rows = append(rows, row{info: state.Info, match: match})
		}
	}
	return rows
}

func (m *model) selected() (row, bool) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return row{}, false
	}
	return rows[m.cursor], true
}

// moveCursor steps the selection, wrapping top to bottom and back.
func (m *model) moveCursor(delta int) {
	n := len(m.rows())
	if n == 0 {
		m.cursor = 0
		return
	}
	m.cursor = (m.cursor + delta + n) % n
}

func (m *model) clampCursor() {
	if n := len(m.rows()); m.cursor >= n {
		m.cursor = 0
	}
}
