// ABOUTME: WebSocket client for the live voice protocol
// ABOUTME: Handles connection, handshake, audio upload, and reply routing
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio/decode"
	"github.com/gorilla/websocket"
)

// DefaultPath is the server's websocket endpoint
const DefaultPath = "/live"

// Config holds client configuration
type Config struct {
	ServerAddr    string
	Path          string
	ClientID      string
	Name          string
	Version       int
	DeviceInfo    DeviceInfo
	OutputFormats []AudioFormat
	InputFormat   AudioFormat
	Logger        *log.Logger
}

// Client represents a WebSocket client
type Client struct {
	config Config
	logger *log.Logger
	conn   *websocket.Conn
	mu     sync.RWMutex
	// gorilla allows one concurrent writer
	writeMu sync.Mutex

	// Events carries reply audio and turn messages in wire order
	Events chan Event

	// Negotiated during handshake
	hello   ServerHello
	decoder decode.Decoder
	seq     int64

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// AudioChunk is one decoded reply frame
type AudioChunk struct {
	Timestamp int64 // Microseconds since the turn started, server clock
	Samples   []int16
}

// Event is an inbound AudioChunk, TurnComplete, or TurnInterrupted
type Event interface {
	event()
}

func (AudioChunk) event()      {}
func (TurnComplete) event()    {}
func (TurnInterrupted) event() {}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config: config,
		logger: config.Logger,
		Events: make(chan Event, 128),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	c.logger.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake sends session/hello and sets up the negotiated decoder
func (c *Client) handshake() error {
	hello := SessionHello{
		ClientID:      c.config.ClientID,
		Name:          c.config.Name,
		Version:       c.config.Version,
		DeviceInfo:    &c.config.DeviceInfo,
		OutputFormats: c.config.OutputFormats,
		InputFormat:   c.config.InputFormat,
	}

	if err := c.sendJSON(Message{Type: TypeSessionHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send session/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var serverMsg struct {
		Type    string      `json:"type"`
		Payload ServerHello `json:"payload"`
	}
	if err := json.Unmarshal(data, &serverMsg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if serverMsg.Type != TypeServerHello {
		return fmt.Errorf("expected server/hello, got %s", serverMsg.Type)
	}

	dec, err := decode.New(serverMsg.Payload.OutputFormat.Format())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.hello = serverMsg.Payload
	c.decoder = dec
	c.mu.Unlock()

	f := serverMsg.Payload.OutputFormat
	c.logger.Printf("Handshake complete with %s: session %s, replies %s %dHz %dch",
		serverMsg.Payload.Name, serverMsg.Payload.SessionID, f.Codec, f.SampleRate, f.Channels)

	return nil
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msg Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Printf("Read error: %v", err)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinaryMessage(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		default:
			c.logger.Printf("Unknown WebSocket message type: %d", messageType)
		}
	}
}

// handleBinaryMessage decodes reply audio with the negotiated codec
func (c *Client) handleBinaryMessage(data []byte) {
	ts, payload, err := DecodeAudioFrame(data)
	if err != nil {
		c.logger.Printf("Invalid binary message: %v", err)
		return
	}

	c.mu.RLock()
	dec := c.decoder
	c.mu.RUnlock()

	samples, err := dec.Decode(payload)
	if err != nil {
		c.logger.Printf("Failed to decode reply audio: %v", err)
		return
	}

	c.deliver(AudioChunk{Timestamp: ts, Samples: samples})
}

// deliver blocks while Events is full so the reader never reorders
func (c *Client) deliver(ev Event) {
	select {
	case c.Events <- ev:
	case <-c.ctx.Done():
	}
}

// handleJSONMessage routes JSON control messages
func (c *Client) handleJSONMessage(data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Printf("Failed to parse JSON message: %v", err)
		return
	}

	switch msg.Type {
	case TypeTurnComplete:
		var done TurnComplete
		if err := json.Unmarshal(msg.Payload, &done); err != nil {
			c.logger.Printf("Failed to parse turn/complete: %v", err)
			return
		}
		c.deliver(done)

	case TypeTurnInterrupted:
		var interrupted TurnInterrupted
		if err := json.Unmarshal(msg.Payload, &interrupted); err != nil {
			c.logger.Printf("Failed to parse turn/interrupted: %v", err)
			return
		}
		c.logger.Printf("Turn %d interrupted: %s", interrupted.TurnID, interrupted.Reason)
		c.deliver(interrupted)

	default:
		c.logger.Printf("Unknown message type: %s", msg.Type)
	}
}

// SendAudio uploads one captured PCM16LE frame
func (c *Client) SendAudio(pcm []byte) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	return c.sendJSON(Message{Type: TypeAudioInput, Payload: NewAudioInput(seq, pcm)})
}

// SendState sends a client/state message
func (c *Client) SendState(state ClientState) error {
	return c.sendJSON(Message{Type: TypeClientState, Payload: state})
}

// SendGoodbye sends a client/goodbye message before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	return c.sendJSON(Message{Type: TypeClientGoodbye, Payload: ClientGoodbye{Reason: reason}})
}

// OutputFormat returns the negotiated reply format
func (c *Client) OutputFormat() AudioFormat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hello.OutputFormat
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		if c.decoder != nil {
			c.decoder.Close()
		}
		c.logger.Printf("Connection closed")
	}
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
