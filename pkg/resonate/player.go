// ABOUTME: High-level Player API for live voice sessions
// ABOUTME: Wires microphone capture, the protocol client, and the streaming engine together
package resonate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-live/internal/source"
	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/Resonate-Protocol/resonate-live/pkg/audio/input"
	"github.com/Resonate-Protocol/resonate-live/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-live/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-live/pkg/capture"
	"github.com/Resonate-Protocol/resonate-live/pkg/mixer"
	"github.com/Resonate-Protocol/resonate-live/pkg/protocol"
	"github.com/Resonate-Protocol/resonate-live/pkg/stream"
	"github.com/Resonate-Protocol/resonate-live/pkg/tap"
	"github.com/google/uuid"
)

// PlayerConfig holds player configuration
type PlayerConfig struct {
	// ServerAddr is the server address (host:port)
	ServerAddr string
	// Path is the websocket endpoint; empty uses the protocol default
	Path string

	// PlayerName is the display name for this player
	PlayerName string

	// Volume is the initial volume (0-100)
	Volume int

	// Stream configures the playback engine; zero fields take defaults
	Stream stream.Config

	// Output is the playback device. Nil selects OutputBackend.
	Output output.Output
	// OutputBackend is "malgo" (default), "oto", or "portaudio"
	OutputBackend string

	// Input is the microphone. Nil selects InputBackend unless NoCapture is set.
	Input input.Input
	// InputBackend is "malgo" (default) or "portaudio"
	InputBackend string
	NoCapture    bool

	// Capture configures microphone framing; SampleRate follows Stream
	Capture capture.Config

	// PreferPCM offers uncompressed replies ahead of Opus
	PreferPCM bool

	// Catalog lists the processing units AddTap can load; nil uses the
	// default catalog
	Catalog tap.Catalog

	// DeviceInfo provides device identification
	DeviceInfo DeviceInfo

	Logger *log.Logger

	// OnStateChange is called when the playback or connection state changes
	OnStateChange func(PlayerState)

	// OnTurn is called when a reply turn finishes playing or is interrupted
	OnTurn func(TurnEvent)

	// OnError is called when errors occur
	OnError func(error)
}

// DeviceInfo describes the player device
type DeviceInfo struct {
	ProductName     string
	Manufacturer    string
	SoftwareVersion string
}

// PlayerState describes the current state
type PlayerState struct {
	State      string // "idle", "playing", "draining", "stopping"
	Volume     int
	Muted      bool
	Codec      string
	SampleRate int
	Connected  bool
}

// TurnEvent describes the end of a reply turn
type TurnEvent struct {
	TurnID      int
	Interrupted bool
	Reason      string
}

// PlayerStats contains playback and capture statistics
type PlayerStats struct {
	stream.Stats
	InputLevel     float32
	CapturedFrames int64
}

// Player plays reply audio from a live voice server while streaming the
// microphone to it
type Player struct {
	config PlayerConfig
	logger *log.Logger

	device   output.Output
	mixer    *mixer.Mixer
	streamer *stream.Streamer
	recorder *capture.Recorder
	client   *protocol.Client

	mu    sync.Mutex
	state PlayerState

	// completing lists turns whose end was handed to the streamer, oldest
	// first; finished counts completion hooks not yet matched to them
	routing    bool
	completing []int
	finished   int
	turnDone   chan struct{}
	// held is owned by route
	held []protocol.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPlayer creates a new player with the given configuration
func NewPlayer(config PlayerConfig) (*Player, error) {
	if config.Volume == 0 {
		config.Volume = 100
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.DeviceInfo.ProductName == "" {
		config.DeviceInfo.ProductName = "Resonate Live"
	}
	if config.DeviceInfo.Manufacturer == "" {
		config.DeviceInfo.Manufacturer = "Resonate"
	}
	if config.DeviceInfo.SoftwareVersion == "" {
		config.DeviceInfo.SoftwareVersion = "dev"
	}
	if config.Stream.SampleRate == 0 {
		config.Stream.SampleRate = stream.DefaultConfig().SampleRate
	}
	config.Stream.Logger = config.Logger

	device := config.Output
	if device == nil {
		var err error
		if device, err = newOutput(config.OutputBackend, config.Logger); err != nil {
			return nil, err
		}
	}
	if v, ok := device.(output.Volume); ok {
		v.SetVolume(config.Volume)
	}

	mix := mixer.New(mixer.Config{
		SampleRate: config.Stream.SampleRate,
		Channels:   2,
		Logger:     config.Logger,
	}, device)

	ctx, cancel := context.WithCancel(context.Background())

	p := &Player{
		config:   config,
		logger:   config.Logger,
		device:   device,
		mixer:    mix,
		streamer: stream.New(config.Stream, mix, tap.NewRegistry(config.Catalog, config.Logger)),
		ctx:      ctx,
		cancel:   cancel,
		turnDone: make(chan struct{}, 1),
		state: PlayerState{
			State:      stream.Idle.String(),
			Volume:     config.Volume,
			SampleRate: config.Stream.SampleRate,
		},
	}
	p.streamer.OnComplete(p.turnFinished)

	if !config.NoCapture {
		mic := config.Input
		if mic == nil {
			var err error
			if mic, err = newInput(config.InputBackend, config.Logger); err != nil {
				cancel()
				mix.Close()
				return nil, err
			}
		}
		cc := config.Capture
		cc.SampleRate = config.Stream.SampleRate
		cc.Logger = config.Logger
		p.recorder = capture.NewRecorder(cc, mic)
	}

	return p, nil
}

func newOutput(backend string, logger *log.Logger) (output.Output, error) {
	switch backend {
	case "", "malgo":
		return output.NewMalgo(logger), nil
	case "oto":
		return output.NewOto(logger), nil
	case "portaudio":
		return output.NewPortAudio(), nil
	default:
		return nil, audio.SetupError.New("unknown output backend %q", backend)
	}
}

func newInput(backend string, logger *log.Logger) (input.Input, error) {
	switch backend {
	case "", "malgo":
		return input.NewMalgo(logger), nil
	case "portaudio":
		return input.NewPortAudio(), nil
	default:
		return nil, audio.SetupError.New("unknown input backend %q", backend)
	}
}

// Start starts the playback engine without a server, for local playback
func (p *Player) Start() error {
	if err := p.streamer.Start(p.ctx); err != nil {
		p.notifyError(err)
		return err
	}
	p.wg.Add(1)
	go p.reportLoop()
	return nil
}

// Connect establishes connection to the server, starts playback, and begins
// streaming the microphone
func (p *Player) Connect() error {
	rate := p.config.Stream.SampleRate
	pcm := protocol.AudioFormat{Codec: "pcm", Channels: 1, SampleRate: rate, BitDepth: 16}
	formats := []protocol.AudioFormat{pcm}
	if opusRate(rate) {
		opus := protocol.AudioFormat{Codec: "opus", Channels: 1, SampleRate: rate, BitDepth: 16}
		if p.config.PreferPCM {
			formats = append(formats, opus)
		} else {
			formats = []protocol.AudioFormat{opus, pcm}
		}
	}

	p.client = protocol.NewClient(protocol.Config{
		ServerAddr: p.config.ServerAddr,
		Path:       p.config.Path,
		ClientID:   uuid.New().String(),
		Name:       p.config.PlayerName,
		Version:    1,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     p.config.DeviceInfo.ProductName,
			Manufacturer:    p.config.DeviceInfo.Manufacturer,
			SoftwareVersion: p.config.DeviceInfo.SoftwareVersion,
		},
		OutputFormats: formats,
		InputFormat:   pcm,
		Logger:        p.logger,
	})

	if err := p.client.Connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	format := p.client.OutputFormat()
	if format.SampleRate != rate || format.Channels != 1 {
		p.client.Close()
		return audio.SetupError.New("server replies at %dHz/%dch, player runs at %dHz mono",
			format.SampleRate, format.Channels, rate)
	}

	if err := p.Start(); err != nil {
		p.client.Close()
		return err
	}

	p.logger.Printf("Connected to server: %s (%s %dHz)", p.config.ServerAddr, format.Codec, format.SampleRate)
	p.mu.Lock()
	p.state.Connected = true
	p.state.Codec = format.Codec
	p.mu.Unlock()
	p.notifyStateChange()

	if p.recorder != nil {
		err := p.recorder.Start(p.ctx, func(pcm []byte) {
			if err := p.client.SendAudio(pcm); err != nil && p.client.IsConnected() {
				p.logger.Printf("Failed to send audio: %v", err)
			}
		})
		if err != nil {
			p.notifyError(err)
		}
	}

	p.wg.Add(1)
	go p.route()

	return nil
}

// route feeds server events to the streamer in wire order. Events that
// arrive while an earlier turn is still draining are held back until it has
// finished so every turn completes on its own.
func (p *Player) route() {
	defer p.wg.Done()

	p.mu.Lock()
	p.routing = true
	p.mu.Unlock()

	for {
		select {
		case ev := <-p.client.Events:
			p.handle(ev)

		case <-p.turnDone:
			p.finishTurns()

		case <-p.client.Done():
			p.mu.Lock()
			p.state.Connected = false
			p.mu.Unlock()
			p.notifyStateChange()
			return

		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Player) handle(ev protocol.Event) {
	if ti, ok := ev.(protocol.TurnInterrupted); ok {
		p.interrupted(ti)
		return
	}
	if p.holding() {
		p.held = append(p.held, ev)
		return
	}
	p.release()

	switch ev := ev.(type) {
	case protocol.AudioChunk:
		p.play(ev.Samples)
	case protocol.TurnComplete:
		p.mu.Lock()
		p.completing = append(p.completing, ev.TurnID)
		p.mu.Unlock()
		p.streamer.Complete()
	}
}

// interrupted drops the reply in flight. Turns that already played out are
// reported first.
func (p *Player) interrupted(ti protocol.TurnInterrupted) {
	p.finishTurns()

	p.mu.Lock()
	p.completing = nil
	p.finished = 0
	p.mu.Unlock()
	p.held = nil

	p.logger.Printf("Turn %d interrupted: %s", ti.TurnID, ti.Reason)
	p.streamer.Stop()
	p.notifyTurn(TurnEvent{TurnID: ti.TurnID, Interrupted: true, Reason: ti.Reason})
}

// holding reports whether a completed turn is still draining
func (p *Player) holding() bool {
	p.mu.Lock()
	waiting := len(p.completing) > p.finished
	p.mu.Unlock()
	return waiting && p.streamer.State() == stream.Draining
}

// release replays held events once nothing is draining
func (p *Player) release() {
	held := p.held
	p.held = nil
	for _, ev := range held {
		p.handle(ev)
	}
}

// finishTurns reports turns whose completion hook has fired
func (p *Player) finishTurns() {
	p.mu.Lock()
	n := min(p.finished, len(p.completing))
	ids := append([]int(nil), p.completing[:n]...)
	p.completing = p.completing[n:]
	p.finished = 0
	p.mu.Unlock()

	for _, id := range ids {
		p.notifyTurn(TurnEvent{TurnID: id})
	}
	if !p.holding() {
		p.release()
	}
}

// play queues reply samples, re-arming playback after a stop
func (p *Player) play(samples []int16) {
	if p.streamer.State() == stream.Stopping {
		if err := p.streamer.Resume(); err != nil {
			p.notifyError(err)
			return
		}
	}
	p.streamer.AddSamples(samples)
}

// turnFinished is the completion hook. Local playback reports directly;
// connected playback hands off to route.
func (p *Player) turnFinished() {
	p.mu.Lock()
	if !p.routing {
		p.mu.Unlock()
		p.notifyTurn(TurnEvent{})
		return
	}
	p.finished++
	p.mu.Unlock()
	p.wake()
}

func (p *Player) wake() {
	select {
	case p.turnDone <- struct{}{}:
	default:
	}
}

// reportLoop publishes state changes to the callback and the server
func (p *Player) reportLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			state := p.streamer.State().String()
			p.mu.Lock()
			changed := state != p.state.State
			p.state.State = state
			p.mu.Unlock()
			if changed {
				p.notifyStateChange()
				p.sendState()
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// PlaySource streams a local source through the engine in real time,
// resampling to the engine rate, and completes the turn at its end
func (p *Player) PlaySource(ctx context.Context, src source.Source) error {
	rate := p.config.Stream.SampleRate
	var rs *resample.Resampler
	if src.SampleRate() != rate {
		rs = resample.New(src.SampleRate(), rate, 1)
	}

	// a fifth of a second per chunk; the first two go out immediately
	const lead = 2
	chunk := make([]int16, src.SampleRate()/5)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var out []int16
	for i := 0; ; i++ {
		n, err := src.Read(chunk)
		if n > 0 {
			samples := chunk[:n]
			if rs != nil {
				out = rs.Resample(out[:0], samples)
				samples = out
			}
			p.play(samples)
		}
		if err != nil {
			p.streamer.Complete()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if i < lead {
			continue
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			p.streamer.Stop()
			return ctx.Err()
		}
	}
}

// AddSamples queues PCM16 samples at the engine rate for playback
func (p *Player) AddSamples(samples []int16) {
	p.play(samples)
}

// Complete marks the end of the current turn; OnTurn fires once it has played
func (p *Player) Complete() {
	p.streamer.Complete()
}

// AddTap registers a handler on a processing tap of the reply signal
func (p *Player) AddTap(name string, unit tap.Unit, handler tap.Handler) error {
	return p.streamer.AddTap(name, unit, handler)
}

// Stop fades out and drops the current reply. A turn stopped while draining
// is never reported.
func (p *Player) Stop() {
	p.mu.Lock()
	p.completing = p.completing[:min(p.finished, len(p.completing))]
	p.mu.Unlock()
	p.streamer.Stop()
	p.wake()
}

// Resume re-arms playback after Stop
func (p *Player) Resume() error {
	return p.streamer.Resume()
}

// SetVolume sets the volume (0-100)
func (p *Player) SetVolume(volume int) {
	volume = min(max(volume, 0), 100)

	if v, ok := p.device.(output.Volume); ok {
		v.SetVolume(volume)
	}

	p.mu.Lock()
	p.state.Volume = volume
	p.mu.Unlock()

	p.sendState()
	p.notifyStateChange()
}

// Mute sets the mute state
func (p *Player) Mute(muted bool) {
	if v, ok := p.device.(output.Volume); ok {
		v.SetMuted(muted)
	}

	p.mu.Lock()
	p.state.Muted = muted
	p.mu.Unlock()

	p.sendState()
	p.notifyStateChange()
}

func (p *Player) sendState() {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	p.mu.Lock()
	state := protocol.ClientState{State: p.state.State, Volume: p.state.Volume, Muted: p.state.Muted}
	p.mu.Unlock()

	if err := p.client.SendState(state); err != nil {
		p.logger.Printf("Failed to send state: %v", err)
	}
}

// Status returns the current player state
func (p *Player) Status() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns playback statistics
func (p *Player) Stats() PlayerStats {
	stats := PlayerStats{Stats: p.streamer.Stats()}
	if p.recorder != nil {
		stats.InputLevel = p.recorder.Level()
		stats.CapturedFrames = p.recorder.Frames()
	}
	return stats
}

// Close closes the player and releases all resources
func (p *Player) Close() error {
	if p.recorder != nil && p.recorder.Recording() {
		if err := p.recorder.Stop(); err != nil {
			p.logger.Printf("Error stopping recorder: %v", err)
		}
	}

	if p.client != nil && p.client.IsConnected() {
		p.client.SendGoodbye("shutdown")
		p.client.Close()
	}

	p.cancel()
	p.wg.Wait()

	p.streamer.Close()
	err := p.mixer.Close()

	p.mu.Lock()
	p.state.Connected = false
	p.state.State = stream.Idle.String()
	p.mu.Unlock()
	p.notifyStateChange()

	return err
}

func (p *Player) notifyStateChange() {
	if p.config.OnStateChange != nil {
		p.config.OnStateChange(p.Status())
	}
}

func (p *Player) notifyTurn(ev TurnEvent) {
	if p.config.OnTurn != nil {
		p.config.OnTurn(ev)
	}
}

func (p *Player) notifyError(err error) {
	if p.config.OnError != nil {
		p.config.OnError(err)
	} else {
		p.logger.Printf("Player error: %v", err)
	}
}

func opusRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}
