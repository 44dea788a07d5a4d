// ABOUTME: Server TUI showing connected sessions and turn counts
// ABOUTME: Real-time echo server status display using bubbletea and lipgloss
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{}

	mu     sync.Mutex
	closed bool
}

// ServerStatus holds server state for the TUI
type ServerStatus struct {
	Name     string
	Port     int
	Greeting string
	Sessions []SessionInfo
}

type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg ServerStatus

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	listStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	speakerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Resonate Echo Server"))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Server", m.status.Name)
	field("Port", fmt.Sprintf("%d", m.status.Port))
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	field("Greeting", m.status.Greeting)
	b.WriteString("\n")

	b.WriteString(listStyle.Render(fmt.Sprintf("Sessions (%d)", len(m.status.Sessions))))
	b.WriteString("\n\n")

	if len(m.status.Sessions) == 0 {
		b.WriteString(valueStyle.Render("  No sessions"))
		b.WriteString("\n")
	}
	for _, s := range m.status.Sessions {
		b.WriteString(fmt.Sprintf("  • %s", s.Name))
		b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s %dHz, %s, %d turns)", s.Codec, s.Rate, s.State, s.Turns)))
		if s.Speaker {
			b.WriteString(speakerStyle.Render(" speaking"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewServerTUI creates a new server TUI
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until it quits
func (t *ServerTUI) Start(status ServerStatus) error {
	m := tuiModel{
		status:    status,
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range t.updates {
			t.program.Send(statusMsg(status))
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI without blocking
func (t *ServerTUI) Update(status ServerStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.updates <- status:
	default:
	}
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan returns the channel that signals when the user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}

// status snapshots the server for the TUI
func (s *Server) status() ServerStatus {
	greeting := "none"
	if len(s.config.Greeting) > 0 {
		greeting = s.config.GreetingTitle
	}
	return ServerStatus{
		Name:     s.config.Name,
		Port:     s.config.Port,
		Greeting: greeting,
		Sessions: s.Sessions(),
	}
}

// refreshTUI pushes status to the TUI until the server stops
func (s *Server) refreshTUI() {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tui.Update(s.status())
		}
	}
}
