// ABOUTME: Tests for the server TUI model
// ABOUTME: Checks rendering of sessions and the quit key
package server

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/gomega"
)

func TestTUIViewListsSessions(t *testing.T) {
	g := NewGomegaWithT(t)

	m := tuiModel{startTime: time.Now(), quitChan: make(chan struct{}, 1)}
	g.Expect(m.View()).To(ContainSubstring("No sessions"))

	next, _ := m.Update(statusMsg(ServerStatus{
		Name: "echo",
		Port: 8927,
		Sessions: []SessionInfo{
			{Name: "kitchen", Codec: "opus", Rate: 24000, State: "playing", Turns: 3, Speaker: true},
		},
	}))

	view := next.View()
	g.Expect(view).To(ContainSubstring("Sessions (1)"))
	g.Expect(view).To(ContainSubstring("kitchen"))
	g.Expect(view).To(ContainSubstring("opus 24000Hz, playing, 3 turns"))
	g.Expect(view).To(ContainSubstring("speaking"))
}

func TestTUIQuitSignalsServer(t *testing.T) {
	g := NewGomegaWithT(t)

	quit := make(chan struct{}, 1)
	m := tuiModel{startTime: time.Now(), quitChan: quit}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	g.Expect(cmd).NotTo(BeNil())
	g.Expect(quit).To(Receive())
	g.Expect(next.View()).To(Equal("Shutting down server...\n"))
}
