// ABOUTME: Tests for the echo server
// ABOUTME: Drives real sessions through the protocol client over httptest
package server

import (
	"bytes"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/Resonate-Protocol/resonate-live/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-live/pkg/protocol"
	. "github.com/onsi/gomega"
)

const testRate = 1000

var quiet = log.New(io.Discard, "", 0)

func startServer(t *testing.T, config Config) (*Server, string) {
	config.SilenceGap = 50 * time.Millisecond
	config.Logger = quiet
	srv := New(config)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, strings.TrimPrefix(ts.URL, "http://")
}

func connect(t *testing.T, addr string) *protocol.Client {
	pcm := protocol.AudioFormat{Codec: "pcm", Channels: 1, SampleRate: testRate, BitDepth: 16}
	client := protocol.NewClient(protocol.Config{
		ServerAddr:    addr,
		ClientID:      "caller",
		Name:          "Caller",
		Version:       ProtocolVersion,
		OutputFormats: []protocol.AudioFormat{pcm},
		InputFormat:   pcm,
		Logger:        quiet,
	})
	if err := client.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func constant(n int, v int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// untilTurnEvent collects reply audio up to the next turn message
func untilTurnEvent(t *testing.T, client *protocol.Client, timeout time.Duration) ([]protocol.AudioChunk, protocol.Event) {
	t.Helper()
	var chunks []protocol.AudioChunk
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-client.Events:
			if chunk, ok := ev.(protocol.AudioChunk); ok {
				chunks = append(chunks, chunk)
				continue
			}
			return chunks, ev
		case <-deadline:
			t.Fatal("timed out waiting for a turn message")
			return nil, nil
		}
	}
}

func samplesOf(chunks []protocol.AudioChunk) []int16 {
	var out []int16
	for _, c := range chunks {
		out = append(out, c.Samples...)
	}
	return out
}

func TestEchoesTurnAfterSilence(t *testing.T) {
	g := NewGomegaWithT(t)
	_, addr := startServer(t, Config{})
	client := connect(t, addr)

	g.Expect(client.OutputFormat().Codec).To(Equal("pcm"))

	speech := constant(200, 16384)
	g.Expect(client.SendAudio(audio.Int16ToBytes(speech))).To(Succeed())

	chunks, ev := untilTurnEvent(t, client, 3*time.Second)
	g.Expect(ev).To(Equal(protocol.TurnComplete{TurnID: 1}))

	g.Expect(samplesOf(chunks)).To(Equal(speech))
	g.Expect(chunks).To(HaveLen(10))
	g.Expect(chunks[1].Timestamp).To(Equal(int64(20000)))
}

func TestSilenceAloneIsNotATurn(t *testing.T) {
	g := NewGomegaWithT(t)
	_, addr := startServer(t, Config{})
	client := connect(t, addr)

	g.Expect(client.SendAudio(audio.Int16ToBytes(make([]int16, 200)))).To(Succeed())
	g.Consistently(client.Events, 200*time.Millisecond).ShouldNot(Receive())
}

func TestSpeechInterruptsReply(t *testing.T) {
	g := NewGomegaWithT(t)
	_, addr := startServer(t, Config{
		Greeting:     constant(5000, 8000),
		GreetingRate: testRate,
	})
	client := connect(t, addr)

	g.Eventually(client.Events, time.Second).Should(Receive(BeAssignableToTypeOf(protocol.AudioChunk{})))
	g.Expect(client.SendAudio(audio.Int16ToBytes(constant(100, 16384)))).To(Succeed())

	_, ev := untilTurnEvent(t, client, time.Second)
	g.Expect(ev).To(Equal(protocol.TurnInterrupted{TurnID: 1, Reason: "barge_in"}))

	// the barge-in speech becomes the next turn
	chunks, ev := untilTurnEvent(t, client, 3*time.Second)
	g.Expect(ev).To(Equal(protocol.TurnComplete{TurnID: 2}))
	g.Expect(samplesOf(chunks)).To(Equal(constant(100, 16384)))
}

func TestGreetingResampledToSessionRate(t *testing.T) {
	g := NewGomegaWithT(t)
	_, addr := startServer(t, Config{
		Greeting:     constant(100, 8000),
		GreetingRate: 2 * testRate,
	})
	client := connect(t, addr)

	chunks, ev := untilTurnEvent(t, client, 2*time.Second)
	g.Expect(ev).To(BeAssignableToTypeOf(protocol.TurnComplete{}))
	g.Expect(samplesOf(chunks)).To(Equal(constant(50, 8000)))
}

func TestSessionsTracksConnections(t *testing.T) {
	g := NewGomegaWithT(t)
	srv, addr := startServer(t, Config{})
	client := connect(t, addr)

	g.Eventually(srv.Sessions).Should(HaveLen(1))
	info := srv.Sessions()[0]
	g.Expect(info.Name).To(Equal("Caller"))
	g.Expect(info.Codec).To(Equal("pcm"))
	g.Expect(info.Rate).To(Equal(testRate))

	g.Expect(client.SendState(protocol.ClientState{State: "playing", Volume: 80})).To(Succeed())
	g.Eventually(func() string { return srv.Sessions()[0].State }).Should(Equal("playing"))

	client.Close()
	g.Eventually(srv.Sessions).Should(BeEmpty())
}

func TestNegotiateFormat(t *testing.T) {
	pcm24 := protocol.AudioFormat{Codec: "pcm", Channels: 1, SampleRate: 24000, BitDepth: 16}
	opus24 := protocol.AudioFormat{Codec: "opus", Channels: 1, SampleRate: 24000}

	tests := []struct {
		name     string
		offered  []protocol.AudioFormat
		rate     int
		expected protocol.AudioFormat
	}{
		{"first match wins", []protocol.AudioFormat{opus24, pcm24}, 24000, opus24},
		{"rate must match", []protocol.AudioFormat{opus24}, 16000,
			protocol.AudioFormat{Codec: "pcm", Channels: 1, SampleRate: 16000, BitDepth: 16}},
		{"stereo skipped", []protocol.AudioFormat{{Codec: "opus", Channels: 2, SampleRate: 24000}, pcm24}, 24000, pcm24},
		{"unknown codec skipped", []protocol.AudioFormat{{Codec: "flac", Channels: 1, SampleRate: 24000}}, 24000, pcm24},
		{"24-bit pcm skipped", []protocol.AudioFormat{{Codec: "pcm", Channels: 1, SampleRate: 24000, BitDepth: 24}}, 24000, pcm24},
		{"nothing offered", nil, 24000, pcm24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := negotiateFormat(tt.offered, tt.rate); got != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestDroppedTurnMessagesAreLogged(t *testing.T) {
	g := NewGomegaWithT(t)

	var logs bytes.Buffer
	srv := New(Config{Logger: log.New(&logs, "", 0)})
	format := protocol.AudioFormat{Codec: "pcm", Channels: 1, SampleRate: testRate, BitDepth: 16}
	enc, err := encode.NewPCM(format.Format())
	g.Expect(err).NotTo(HaveOccurred())

	c := newSession(srv, nil, "s1", protocol.SessionHello{Name: "Caller"}, format, enc)
	defer c.close()
	for range sendBuffer {
		c.sendChan <- []byte{}
	}

	c.mu.Lock()
	c.reply = &reply{turnID: 3, stop: make(chan struct{})}
	c.mu.Unlock()
	c.interrupt("barge_in")
	g.Expect(logs.String()).To(ContainSubstring("dropping turn/interrupted for turn 3"))

	r := &reply{turnID: 4, stop: make(chan struct{})}
	c.mu.Lock()
	c.reply = r
	c.mu.Unlock()
	c.play(r, nil)
	g.Expect(logs.String()).To(ContainSubstring("dropping turn/complete for turn 4"))
}
