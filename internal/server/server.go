// ABOUTME: Echo voice server speaking the live protocol
// ABOUTME: Manages WebSocket sessions, codec negotiation, and mDNS advertisement
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-live/internal/discovery"
	"github.com/Resonate-Protocol/resonate-live/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-live/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-live/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// ProtocolVersion is the live protocol version we implement
	ProtocolVersion = 1

	// FrameDuration is the length of one reply audio frame
	FrameDuration = 20 * time.Millisecond
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	Path       string
	EnableMDNS bool
	Debug      bool
	UseTUI     bool

	// SilenceGap is how long the caller must be quiet before a turn ends
	SilenceGap time.Duration
	// SpeechThreshold is the RMS level that counts as speech
	SpeechThreshold float32
	// ReplyLead is how much reply audio is sent ahead of real time
	ReplyLead time.Duration
	// MaxUtterance bounds how much speech one turn may buffer
	MaxUtterance time.Duration

	// Greeting is played to each session when it opens, if set, resampled
	// from GreetingRate to the session rate
	Greeting      []int16
	GreetingRate  int
	GreetingTitle string

	Logger *log.Logger
}

// Server represents the echo server
type Server struct {
	config   Config
	serverID string
	logger   *log.Logger

	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	sessions   map[string]*session
	sessionsMu sync.RWMutex

	greetings   map[int][]int16
	greetingsMu sync.Mutex

	mdnsManager *discovery.Manager
	tui         *ServerTUI

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// SessionInfo describes a connected session
type SessionInfo struct {
	ID      string
	Name    string
	Codec   string
	Rate    int
	State   string
	Turns   int
	Speaker bool
}

// New creates a new server instance
func New(config Config) *Server {
	if config.Port == 0 {
		config.Port = 8927
	}
	if config.Name == "" {
		config.Name = "Resonate Echo"
	}
	if config.Path == "" {
		config.Path = protocol.DefaultPath
	}
	if config.SilenceGap <= 0 {
		config.SilenceGap = 600 * time.Millisecond
	}
	if config.SpeechThreshold <= 0 {
		config.SpeechThreshold = 0.02
	}
	if config.ReplyLead <= 0 {
		config.ReplyLead = 100 * time.Millisecond
	}
	if config.MaxUtterance <= 0 {
		config.MaxUtterance = 30 * time.Second
	}
	if config.GreetingRate <= 0 {
		config.GreetingRate = 24000
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		logger:   config.Logger,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// non-browser clients send no Origin; the server is meant for trusted local networks
				return true
			},
		},
		sessions:  make(map[string]*session),
		greetings: make(map[int][]int16),
		stopChan:  make(chan struct{}),
	}
	s.mux.HandleFunc(config.Path, s.handleWebSocket)

	return s
}

// Handler returns the HTTP handler serving the websocket endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.UseTUI {
		s.tui = NewServerTUI()
		go func() {
			if err := s.tui.Start(s.status()); err != nil {
				s.logger.Printf("TUI error: %v", err)
			}
		}()
		go s.refreshTUI()
	}

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        s.config.Path,
			Logger:      s.logger,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Printf("Failed to start mDNS advertisement: %v", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Printf("WebSocket server listening on %s%s", addr, s.config.Path)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		s.logger.Printf("Server shutting down...")
	case <-tuiQuitChan:
		s.logger.Printf("TUI quit requested, shutting down...")
		s.Stop()
	case err := <-errChan:
		s.logger.Printf("HTTP server error: %v", err)
		return err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Printf("HTTP server shutdown error: %v", err)
	}

	s.closeSessions()
	s.wg.Wait()
	s.logger.Printf("Server stopped cleanly")

	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Sessions returns information about all connected sessions
func (s *Server) Sessions() []SessionInfo {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, sess.info())
	}
	return infos
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}

	s.logger.Printf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		s.logger.Printf("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var hello struct {
		Type    string                `json:"type"`
		Payload protocol.SessionHello `json:"payload"`
	}
	if err := conn.ReadJSON(&hello); err != nil {
		s.logger.Printf("Error reading hello: %v", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	if hello.Type != protocol.TypeSessionHello {
		s.logger.Printf("Expected session/hello, got %s", hello.Type)
		return
	}
	if hello.Payload.ClientID == "" || hello.Payload.Name == "" {
		s.logger.Printf("Session hello missing required fields")
		return
	}

	rate := hello.Payload.InputFormat.SampleRate
	if rate == 0 {
		rate = 24000
	}
	format := negotiateFormat(hello.Payload.OutputFormats, rate)
	enc, err := encode.New(format.Format())
	if err != nil {
		s.logger.Printf("Failed to create %s encoder for %s, falling back to PCM: %v", format.Codec, hello.Payload.Name, err)
		format = protocol.AudioFormat{Codec: "pcm", Channels: 1, SampleRate: rate, BitDepth: 16}
		enc, _ = encode.New(format.Format())
	}

	sess := newSession(s, conn, uuid.New().String(), hello.Payload, format, enc)

	s.sessionsMu.Lock()
	s.sessions[sess.id] = sess
	s.sessionsMu.Unlock()

	defer func() {
		s.removeSession(sess)
		s.logger.Printf("Session closed: %s (%s)", sess.name, sess.id)
	}()

	s.logger.Printf("Session %s opened for %s: replies as %s %dHz", sess.id, sess.name, format.Codec, format.SampleRate)

	if err := sess.sendMessage(protocol.TypeServerHello, protocol.ServerHello{
		ServerID:     s.serverID,
		SessionID:    sess.id,
		Name:         s.config.Name,
		Version:      ProtocolVersion,
		OutputFormat: format,
	}); err != nil {
		s.logger.Printf("Error sending server hello: %v", err)
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		sess.writer()
	}()
	go func() {
		defer s.wg.Done()
		sess.turnLoop()
	}()

	if len(s.config.Greeting) > 0 {
		sess.startReply(s.greeting(rate))
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleSessionMessage(sess, data)
	}
}

func (s *Server) handleSessionMessage(sess *session, data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Printf("Error unmarshaling message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeAudioInput:
		var in protocol.AudioInput
		if err := json.Unmarshal(msg.Payload, &in); err != nil {
			s.logger.Printf("Error parsing audio/input: %v", err)
			return
		}
		samples, err := in.Samples()
		if err != nil {
			s.logger.Printf("Session %s: %v", sess.id, err)
			return
		}
		sess.addInput(samples)

	case protocol.TypeClientState:
		var state protocol.ClientState
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			return
		}
		sess.setState(state)
		if s.config.Debug {
			s.logger.Printf("Session %s state: %s (vol: %d, muted: %v)", sess.id, state.State, state.Volume, state.Muted)
		}

	case protocol.TypeClientGoodbye:
		var goodbye protocol.ClientGoodbye
		if err := json.Unmarshal(msg.Payload, &goodbye); err != nil {
			return
		}
		s.logger.Printf("Session %s goodbye: %s", sess.id, goodbye.Reason)

	default:
		if s.config.Debug {
			s.logger.Printf("Unknown message type: %s", msg.Type)
		}
	}
}

// greeting returns the greeting at rate, resampling once per rate
func (s *Server) greeting(rate int) []int16 {
	s.greetingsMu.Lock()
	defer s.greetingsMu.Unlock()

	if g, ok := s.greetings[rate]; ok {
		return g
	}
	g := resample.Convert(s.config.Greeting, s.config.GreetingRate, rate)
	s.greetings[rate] = g
	return g
}

func (s *Server) removeSession(sess *session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess.id)
	s.sessionsMu.Unlock()

	sess.close()
}

func (s *Server) closeSessions() {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	for _, sess := range s.sessions {
		sess.interrupt("shutdown")
		sess.conn.Close()
	}
}

// negotiateFormat picks the first offered format at the session rate that
// has an encoder, falling back to mono PCM
func negotiateFormat(offered []protocol.AudioFormat, rate int) protocol.AudioFormat {
	for _, f := range offered {
		if f.SampleRate != rate || f.Channels != 1 {
			continue
		}
		switch f.Codec {
		case "pcm":
			if f.BitDepth == 16 || f.BitDepth == 0 {
				return f
			}
		case "opus":
			return f
		}
	}
	return protocol.AudioFormat{Codec: "pcm", Channels: 1, SampleRate: rate, BitDepth: 16}
}
