// ABOUTME: Entry point for the Resonate Live player
// ABOUTME: Parses CLI flags, finds a server, and runs a voice session with the TUI
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-live/internal/discovery"
	"github.com/Resonate-Protocol/resonate-live/internal/source"
	"github.com/Resonate-Protocol/resonate-live/internal/ui"
	"github.com/Resonate-Protocol/resonate-live/internal/version"
	"github.com/Resonate-Protocol/resonate-live/pkg/resonate"
	"github.com/Resonate-Protocol/resonate-live/pkg/stream"
	"github.com/Resonate-Protocol/resonate-live/pkg/tap"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

var (
	serverAddr = flag.String("server", "", "Manual server address (skip mDNS)")
	name       = flag.String("name", "", "Player friendly name (default: hostname-resonate-live)")
	file       = flag.String("file", "", "Play a local audio file instead of connecting to a server")
	record     = flag.String("record", "", "Record reply audio to this WAV file")
	outBackend = flag.String("output", "malgo", "Output backend: malgo, oto, portaudio")
	inBackend  = flag.String("input", "malgo", "Input backend: malgo, portaudio")
	noMic      = flag.Bool("no-mic", false, "Do not capture the microphone")
	preferPCM  = flag.Bool("pcm", false, "Ask for uncompressed replies")
	volume     = flag.Int("volume", 100, "Initial volume (0-100)")
	rate       = flag.Int("rate", 24000, "Engine sample rate in Hz")
	lookAhead  = flag.Duration("look-ahead", 200*time.Millisecond, "How far ahead blocks are scheduled")
	maxQueued  = flag.Int("max-queued", 0, "Bound on queued blocks (0 = unbounded)")
	dropOldest = flag.Bool("drop-oldest", false, "Drop the oldest block instead of the newest when the queue is full")
	logFile    = flag.String("log-file", "resonate-live.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	// .env is optional; RESONATE_* values become flag defaults
	_ = godotenv.Load()
	for env, name := range map[string]string{
		"RESONATE_SERVER": "server",
		"RESONATE_NAME":   "name",
		"RESONATE_RATE":   "rate",
	} {
		if v, ok := os.LookupEnv(env); ok {
			if err := flag.Set(name, v); err != nil {
				log.Printf("Ignoring %s: %v", env, err)
			}
		}
	}
	flag.Parse()

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-resonate-live", hostname)
	}
	log.Printf("Starting Resonate Live: %s (%s)", playerName, version.Version)

	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg = ui.Run(controls)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	}
	send := func(msg tea.Msg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	addr, path := *serverAddr, ""
	if addr == "" && *file == "" {
		addr, path = discover(playerName)
	}

	overflow := stream.DropNewest
	if *dropOldest {
		overflow = stream.DropOldest
	}

	config := resonate.PlayerConfig{
		ServerAddr: addr,
		Path:       path,
		PlayerName: playerName,
		Volume:     *volume,
		Stream: stream.Config{
			SampleRate:      *rate,
			LookAhead:       *lookAhead,
			MaxQueuedBlocks: *maxQueued,
			Overflow:        overflow,
		},
		OutputBackend: *outBackend,
		InputBackend:  *inBackend,
		NoCapture:     *noMic || *file != "",
		PreferPCM:     *preferPCM,
		DeviceInfo: resonate.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		OnStateChange: func(state resonate.PlayerState) {
			connected := state.Connected
			send(ui.StatusMsg{Connected: &connected, Codec: state.Codec, SampleRate: state.SampleRate})
		},
		OnTurn: func(ev resonate.TurnEvent) {
			if ev.Interrupted {
				log.Printf("Turn %d interrupted: %s", ev.TurnID, ev.Reason)
			} else {
				log.Printf("Turn %d finished", ev.TurnID)
			}
			send(ui.TurnMsg{Interrupted: ev.Interrupted})
		},
		OnError: func(err error) {
			log.Printf("Player error: %v", err)
		},
	}

	player, err := resonate.NewPlayer(config)
	if err != nil {
		log.Fatalf("Failed to create player: %v", err)
	}

	var outputLevel atomic.Uint32
	err = player.AddTap("meter", tap.Unit{Kind: "vumeter", Params: map[string]string{"interval_ms": "50"}}, func(msg tap.Message) {
		outputLevel.Store(math.Float32bits(float32(msg.Value)))
	})
	if err != nil {
		log.Printf("Level meter unavailable: %v", err)
	}
	if *record != "" {
		err := player.AddTap("record", tap.Unit{Kind: "recorder", Params: map[string]string{"path": *record}}, func(msg tap.Message) {
			if msg.Err != nil {
				log.Printf("Recorder: %v", msg.Err)
			}
		})
		if err != nil {
			log.Fatalf("Failed to start recorder: %v", err)
		}
		send(ui.StatusMsg{Recording: *record})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *file != "" {
		if err := playFile(ctx, player, *file, send); err != nil {
			log.Fatalf("Playback failed: %v", err)
		}
	} else {
		if err := player.Connect(); err != nil {
			log.Fatalf("Connection failed: %v", err)
		}
		send(ui.StatusMsg{ServerName: addr})
		log.Printf("Connected to server: %s", addr)
	}

	if controls != nil {
		go handleControls(player, controls)
	}
	if tuiProg != nil {
		go statsLoop(ctx, player, send, func() float32 {
			return math.Float32frombits(outputLevel.Load())
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var quit <-chan ui.QuitMsg
	if controls != nil {
		quit = controls.Quit
	}
	select {
	case <-quit:
		log.Printf("Received quit signal from TUI")
	case <-sigChan:
		log.Printf("Shutdown signal received")
	}

	cancel()
	if err := player.Close(); err != nil {
		log.Printf("Error closing player: %v", err)
	}
	if tuiProg != nil {
		tuiProg.Quit()
	}

	log.Printf("Player stopped")
}

// discover waits for a server advertised over mDNS
func discover(playerName string) (string, string) {
	log.Printf("Starting server discovery...")
	disc := discovery.NewManager(discovery.Config{ServiceName: playerName})
	defer disc.Stop()

	if err := disc.Browse(); err != nil {
		log.Fatalf("Discovery failed: %v", err)
	}

	select {
	case server := <-disc.Servers():
		log.Printf("Discovered %s at %s", server.Name, server.Addr())
		return server.Addr(), server.Path
	case <-time.After(10 * time.Second):
		log.Fatalf("No server found after 10 seconds")
	}
	return "", ""
}

// playFile plays a local file in the background
func playFile(ctx context.Context, player *resonate.Player, path string, send func(tea.Msg)) error {
	src, err := source.Open(path)
	if err != nil {
		return err
	}
	if err := player.Start(); err != nil {
		src.Close()
		return err
	}
	send(ui.StatusMsg{Title: src.Title(), Codec: "file", SampleRate: src.SampleRate()})
	log.Printf("Playing %s (%dHz)", src.Title(), src.SampleRate())

	go func() {
		defer src.Close()
		if err := player.PlaySource(ctx, src); err != nil && ctx.Err() == nil {
			log.Printf("Playback error: %v", err)
		}
	}()
	return nil
}

// handleControls applies keyboard commands from the TUI. Quit is left to main.
func handleControls(player *resonate.Player, controls *ui.Controls) {
	for {
		select {
		case v := <-controls.Volume:
			player.SetVolume(v.Volume)
			player.Mute(v.Muted)
		case cmd := <-controls.Commands:
			switch cmd {
			case ui.CommandStop:
				player.Stop()
			case ui.CommandResume:
				if err := player.Resume(); err != nil {
					log.Printf("Resume failed: %v", err)
				}
			}
		}
	}
}

// statsLoop pushes engine stats and levels to the TUI
func statsLoop(ctx context.Context, player *resonate.Player, send func(tea.Msg), level func() float32) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := player.Stats()
			send(ui.StatsMsg(stats.Stats))
			send(ui.LevelMsg{Output: level(), Input: stats.InputLevel})
		case <-ctx.Done():
			return
		}
	}
}
