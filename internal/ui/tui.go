// ABOUTME: TUI initialization and control channels
// ABOUTME: Wraps the bubbletea program for the live client UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg carries a volume or mute change from the keyboard
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// Command is a playback command from the keyboard
type Command int

const (
	CommandStop Command = iota
	CommandResume
)

// QuitMsg is sent when the user quits
type QuitMsg struct{}

// Controls holds channels the UI uses to reach the player
type Controls struct {
	Volume   chan VolumeChangeMsg
	Commands chan Command
	Quit     chan QuitMsg
}

// NewControls creates control channels
func NewControls() *Controls {
	return &Controls{
		Volume:   make(chan VolumeChangeMsg, 10),
		Commands: make(chan Command, 10),
		Quit:     make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model. controls may be nil.
func NewModel(controls *Controls) Model {
	return Model{
		volume:   100,
		state:    "idle",
		controls: controls,
	}
}

// Run creates the TUI program; the caller runs it
func Run(controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(controls), tea.WithAltScreen())
}
