// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling, and rendering
package ui

import (
	"strings"
	"testing"

	"github.com/Resonate-Protocol/resonate-live/pkg/stream"
	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(Model)
	}
	return m
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil)

	if model.connected {
		t.Error("expected connected to be false initially")
	}
	if model.volume != 100 {
		t.Errorf("expected default volume 100, got %d", model.volume)
	}
	if model.state != "idle" {
		t.Errorf("expected idle state, got %s", model.state)
	}
	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
}

func TestStatusMsgConnected(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{
		Connected:  &connected,
		ServerName: "test-server",
		Codec:      "opus",
		SampleRate: 24000,
	})

	if !model.connected {
		t.Error("expected connected to be true after status update")
	}
	if model.serverName != "test-server" {
		t.Errorf("expected serverName 'test-server', got '%s'", model.serverName)
	}
	if model.codec != "opus" || model.sampleRate != 24000 {
		t.Errorf("expected opus 24000, got %s %d", model.codec, model.sampleRate)
	}

	disconnected := false
	model.applyStatus(StatusMsg{Connected: &disconnected})
	if model.connected {
		t.Error("expected connected to be false after disconnect")
	}
	if model.serverName != "test-server" {
		t.Error("expected zero fields to leave serverName unchanged")
	}
}

func TestStatsMsgSetsState(t *testing.T) {
	model := NewModel(nil)

	next, _ := model.Update(StatsMsg{State: stream.Draining, QueueDepth: 3, Underruns: 1})
	model = next.(Model)

	if model.state != "draining" {
		t.Errorf("expected draining, got %s", model.state)
	}
	if model.stats.QueueDepth != 3 {
		t.Errorf("expected queue depth 3, got %d", model.stats.QueueDepth)
	}
}

func TestTurnMsgCounts(t *testing.T) {
	model := NewModel(nil)

	for _, msg := range []TurnMsg{{}, {Interrupted: true}, {}} {
		next, _ := model.Update(msg)
		model = next.(Model)
	}

	if model.turns != 2 {
		t.Errorf("expected 2 turns, got %d", model.turns)
	}
	if model.interruptions != 1 {
		t.Errorf("expected 1 interruption, got %d", model.interruptions)
	}
}

func TestVolumeKeysClampAndNotify(t *testing.T) {
	controls := NewControls()
	model := press(NewModel(controls), "up", "down", "down", "m")

	if model.volume != 90 {
		t.Errorf("expected volume 90, got %d", model.volume)
	}
	if !model.muted {
		t.Error("expected muted after m")
	}

	// up at 100 still notifies
	expected := []VolumeChangeMsg{{100, false}, {95, false}, {90, false}, {90, true}}
	for i, want := range expected {
		select {
		case got := <-controls.Volume:
			if got != want {
				t.Errorf("change %d: expected %+v, got %+v", i, want, got)
			}
		default:
			t.Fatalf("change %d: nothing sent", i)
		}
	}

	model.volume = 2
	model = press(model, "down")
	if model.volume != 0 {
		t.Errorf("expected volume clamped to 0, got %d", model.volume)
	}
}

func TestPlaybackKeysSendCommands(t *testing.T) {
	controls := NewControls()
	press(NewModel(controls), "s", "r")

	if cmd := <-controls.Commands; cmd != CommandStop {
		t.Errorf("expected stop, got %v", cmd)
	}
	if cmd := <-controls.Commands; cmd != CommandResume {
		t.Errorf("expected resume, got %v", cmd)
	}
}

func TestKeysWithoutControls(t *testing.T) {
	// must not block or panic
	press(NewModel(nil), "s", "r", "up", "m")
}

func TestQuitKey(t *testing.T) {
	controls := NewControls()
	_, cmd := NewModel(controls).Update(key("q"))

	if cmd == nil {
		t.Fatal("expected quit command")
	}
	select {
	case <-controls.Quit:
	default:
		t.Error("expected quit signal")
	}
}

func TestViewRendersState(t *testing.T) {
	model := NewModel(nil)
	if model.View() != "Loading..." {
		t.Error("expected loading view before first window size")
	}

	next, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = next.(Model)
	model.applyStatus(StatusMsg{Title: "greeting", Recording: "out.wav"})
	next, _ = model.Update(StatsMsg{State: stream.Playing, Received: 4800})
	model = next.(Model)

	view := model.View()
	for _, want := range []string{"Local playback", "greeting", "playing", "RX: 4800", "out.wav"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
	if strings.Contains(view, "DEBUG") {
		t.Error("debug section shown before d")
	}

	model = press(model, "d")
	if !strings.Contains(model.View(), "DEBUG") {
		t.Error("expected debug section after d")
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value    int
		expected string
	}{
		{0, "░░░░░░░░░░"},
		{50, "█████░░░░░"},
		{100, "██████████"},
		{150, "██████████"},
		{-5, "░░░░░░░░░░"},
	}

	for _, tt := range tests {
		if got := renderBar(tt.value, 100, 10); got != tt.expected {
			t.Errorf("renderBar(%d): expected %s, got %s", tt.value, tt.expected, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected short, got %s", got)
	}
	if got := truncate("a very long file name", 10); got != "a very ..." {
		t.Errorf("expected 'a very ...', got %s", got)
	}
}
