// ABOUTME: Entry point for the Resonate Live echo server
// ABOUTME: Parses CLI flags and starts a server that speaks each caller's turn back
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/resonate-live/internal/server"
	"github.com/Resonate-Protocol/resonate-live/internal/source"
	"github.com/joho/godotenv"
)

var (
	port      = flag.Int("port", 8927, "WebSocket server port")
	name      = flag.String("name", "", "Server friendly name (default: hostname-resonate-echo)")
	logFile   = flag.String("log-file", "resonate-echo.log", "Log file path")
	debug     = flag.Bool("debug", false, "Enable debug logging")
	noMDNS    = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	noTUI     = flag.Bool("no-tui", false, "Disable TUI, stream logs instead")
	greeting  = flag.String("greeting", "", "Audio file played to each new session (WAV, MP3, FLAC, Ogg)")
	toneHello = flag.Bool("tone", false, "Greet sessions with a short test tone when -greeting is not set")
	gap       = flag.Duration("silence-gap", 600*time.Millisecond, "Silence that ends a caller's turn")
	threshold = flag.Float64("speech-threshold", 0.02, "RMS level that counts as speech")
)

func main() {
	// .env supplies defaults; flags on the command line still win
	if err := godotenv.Load(); err == nil {
		applyEnv()
	}
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	useTUI := !*noTUI
	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-resonate-echo", hostname)
	}

	log.Printf("Starting Resonate Echo: %s on port %d", serverName, *port)
	if *debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", *logFile)

	config := server.Config{
		Port:            *port,
		Name:            serverName,
		EnableMDNS:      !*noMDNS,
		Debug:           *debug,
		UseTUI:          useTUI,
		SilenceGap:      *gap,
		SpeechThreshold: float32(*threshold),
	}

	switch {
	case *greeting != "":
		src, err := source.Open(*greeting)
		if err != nil {
			log.Fatalf("Failed to open greeting: %v", err)
		}
		samples, err := source.ReadAll(src)
		src.Close()
		if err != nil {
			log.Fatalf("Failed to read greeting: %v", err)
		}
		config.Greeting = samples
		config.GreetingRate = src.SampleRate()
		config.GreetingTitle = src.Title()
		log.Printf("Greeting: %s (%d samples at %dHz)", src.Title(), len(samples), src.SampleRate())
	case *toneHello:
		tone := source.NewTone(24000, 440, 500*time.Millisecond)
		config.Greeting, _ = source.ReadAll(tone)
		config.GreetingRate = tone.SampleRate()
		config.GreetingTitle = tone.Title()
	}

	srv := server.New(config)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}

// applyEnv maps RESONATE_* variables onto flags that were not given
func applyEnv() {
	for env, fl := range map[string]string{
		"RESONATE_PORT":        "port",
		"RESONATE_NAME":        "name",
		"RESONATE_GREETING":    "greeting",
		"RESONATE_SILENCE_GAP": "silence-gap",
	} {
		if v, ok := os.LookupEnv(env); ok {
			if err := flag.Set(fl, v); err != nil {
				log.Printf("Ignoring %s: %v", env, err)
			}
		}
	}
}
