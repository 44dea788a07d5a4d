// ABOUTME: Bubbletea model for the live client TUI
// ABOUTME: Shows playback state, levels, turn counts, and stream stats
package ui

import (
	"fmt"
	"strings"

	"github.com/Resonate-Protocol/resonate-live/pkg/stream"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string
	codec      string
	sampleRate int

	// Local file playback
	title string

	// Playback
	state    string
	volume   int
	muted    bool
	level    float32
	micLevel float32

	// Turns
	turns         int
	interruptions int

	// Stats
	stats     stream.Stats
	recording string

	showDebug bool

	width  int
	height int

	controls *Controls
}

// StatusMsg updates connection and format info. Zero fields are left unchanged.
type StatusMsg struct {
	Connected  *bool
	ServerName string
	Codec      string
	SampleRate int
	Title      string
	Recording  string
}

// StatsMsg carries a streamer stats snapshot
type StatsMsg stream.Stats

// LevelMsg carries output and microphone levels in [0, 1]
type LevelMsg struct {
	Output float32
	Input  float32
}

// TurnMsg reports the end of a reply turn
type TurnMsg struct {
	Interrupted bool
}

var (
	stateStyles = map[string]lipgloss.Style{
		stream.Idle.String():     lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		stream.Playing.String():  lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		stream.Draining.String(): lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		stream.Stopping.String(): lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
	faint = lipgloss.NewStyle().Faint(true)
)

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case StatsMsg:
		m.stats = stream.Stats(msg)
		m.state = m.stats.State.String()
	case LevelMsg:
		m.level = msg.Output
		m.micLevel = msg.Input
	case TurnMsg:
		if msg.Interrupted {
			m.interruptions++
		} else {
			m.turns++
		}
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderPlayback())
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	conn := "Local playback"
	if m.connected {
		conn = fmt.Sprintf("Connected to %s", m.serverName)
	} else if m.title == "" {
		conn = "Disconnected"
	}

	format := "-"
	if m.codec != "" {
		format = fmt.Sprintf("%s %dHz mono", m.codec, m.sampleRate)
	}

	s := "┌─ Resonate Live ──────────────────────────────────────┐\n"
	s += fmt.Sprintf("│ Status: %-45s │\n", truncate(conn, 45))
	s += fmt.Sprintf("│ Format: %-45s │\n", format)
	if m.title != "" {
		s += fmt.Sprintf("│ File:   %-45s │\n", truncate(m.title, 45))
	}
	s += "├──────────────────────────────────────────────────────┤\n"
	return s
}

func (m Model) renderPlayback() string {
	style, ok := stateStyles[m.state]
	if !ok {
		style = faint
	}

	muteIcon := ""
	if m.muted {
		muteIcon = " muted"
	}

	s := fmt.Sprintf("│ State:  %s%s │\n", style.Render(m.state), strings.Repeat(" ", max(45-len(m.state), 0)))
	s += fmt.Sprintf("│ Output: [%s]%-33s │\n", renderBar(int(m.level*100), 100, 10), "")
	s += fmt.Sprintf("│ Mic:    [%s]%-33s │\n", renderBar(int(m.micLevel*100), 100, 10), "")
	s += fmt.Sprintf("│ Volume: [%s] %3d%%%-23s │\n", renderBar(m.volume, 100, 10), m.volume, muteIcon)
	return s
}

func (m Model) renderStats() string {
	st := m.stats
	s := "├──────────────────────────────────────────────────────┤\n"
	s += fmt.Sprintf("│ Turns: %d  Interrupted: %d%-26s │\n", m.turns, m.interruptions, "")
	s += fmt.Sprintf("│ Queue: %d blocks  Scheduled: %d  Underruns: %d%-6s │\n", st.QueueDepth, st.Scheduled, st.Underruns, "")
	s += fmt.Sprintf("│ RX: %d  Discarded: %d  Dropped: %d%-16s │\n", st.Received, st.Discarded, st.Dropped, "")
	if m.recording != "" {
		s += fmt.Sprintf("│ Recording: %-42s │\n", truncate(m.recording, 42))
	}
	return s
}

func (m Model) renderDebug() string {
	st := m.stats
	return fmt.Sprintf("│ DEBUG: remainder %d  queued %d  completions %d%-6s │\n",
		st.Remainder, st.Queued, st.Completions, "")
}

func (m Model) renderHelp() string {
	return "│ ↑/↓:Volume  m:Mute  s:Stop  r:Resume  d:Debug  q:Quit │\n" +
		"└──────────────────────────────────────────────────────┘\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+5, 100)
		m.sendVolume()
	case "down":
		m.volume = max(m.volume-5, 0)
		m.sendVolume()
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	case "s":
		m.sendCommand(CommandStop)
	case "r":
		m.sendCommand(CommandResume)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) sendVolume() {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Volume <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

func (m Model) sendCommand(cmd Command) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Commands <- cmd:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Codec != "" {
		m.codec = msg.Codec
		m.sampleRate = msg.SampleRate
	}
	if msg.Title != "" {
		m.title = msg.Title
	}
	if msg.Recording != "" {
		m.recording = msg.Recording
	}
}

func renderBar(value, total, width int) string {
	filled := min(max(value*width/total, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
