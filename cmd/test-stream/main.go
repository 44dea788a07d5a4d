// ABOUTME: Test app to check playback continuity under arbitrary fragmentation
// ABOUTME: Streams a tone in random-sized chunks and reports underruns and completions
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/Resonate-Protocol/resonate-live/internal/source"
	"github.com/Resonate-Protocol/resonate-live/pkg/resonate"
	"github.com/Resonate-Protocol/resonate-live/pkg/stream"
)

var (
	duration = flag.Duration("duration", 5*time.Second, "Length of the test tone")
	maxChunk = flag.Int("max-chunk", 4096, "Largest chunk in samples")
	backend  = flag.String("output", "malgo", "Output backend: malgo, oto, portaudio")
	seed     = flag.Int64("seed", time.Now().UnixNano(), "Random seed for chunk sizes")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	fmt.Println("=== Stream Fragmentation Test ===")
	fmt.Println("This test will:")
	fmt.Println("1. Generate a 440Hz tone")
	fmt.Println("2. Feed it to the engine in random-sized chunks, faster than real time")
	fmt.Println("3. Report underruns; a clean run has none and exactly one completion")
	fmt.Println()

	done := make(chan struct{}, 1)
	player, err := resonate.NewPlayer(resonate.PlayerConfig{
		OutputBackend: *backend,
		NoCapture:     true,
		OnTurn:        func(resonate.TurnEvent) { done <- struct{}{} },
	})
	if err != nil {
		log.Fatalf("Failed to create player: %v", err)
	}
	defer player.Close()

	if err := player.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	rate := stream.DefaultConfig().SampleRate
	samples, _ := source.ReadAll(source.NewTone(rate, 440, *duration))

	rng := rand.New(rand.NewSource(*seed))
	start := time.Now()
	chunks := 0
	for off := 0; off < len(samples); chunks++ {
		n := min(1+rng.Intn(*maxChunk), len(samples)-off)
		player.AddSamples(samples[off : off+n])
		off += n
		// stay roughly half a second ahead of playback
		ahead := time.Duration(off)*time.Second/time.Duration(rate) - time.Since(start)
		if ahead > 500*time.Millisecond {
			time.Sleep(ahead - 500*time.Millisecond)
		}
	}
	player.Complete()

	select {
	case <-done:
	case <-time.After(*duration + 5*time.Second):
		log.Printf("Timed out waiting for completion")
	}

	stats := player.Stats()
	log.Printf("Seed %d: %d chunks, %d blocks scheduled, %d underruns, %d completions",
		*seed, chunks, stats.Scheduled, stats.Underruns, stats.Completions)
}
