// ABOUTME: Live voice protocol message type definitions
// ABOUTME: JSON control messages and the binary audio frame layout
package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
)

// Message types
const (
	TypeSessionHello    = "session/hello"
	TypeServerHello     = "server/hello"
	TypeAudioInput      = "audio/input"
	TypeClientState     = "client/state"
	TypeTurnComplete    = "turn/complete"
	TypeTurnInterrupted = "turn/interrupted"
	TypeClientGoodbye   = "client/goodbye"
)

const (
	// BinaryMessageHeaderSize is the size of binary message header (type byte + timestamp)
	BinaryMessageHeaderSize = 1 + 8

	// AudioChunkMessageType is the binary message type ID for reply audio
	AudioChunkMessageType = 4
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SessionHello is sent by clients to open a session
type SessionHello struct {
	ClientID   string      `json:"client_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
	// OutputFormats lists reply formats the client can play, in preference order
	OutputFormats []AudioFormat `json:"output_formats"`
	// InputFormat is the format of audio/input payloads
	InputFormat AudioFormat `json:"input_format"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// AudioFormat describes a supported audio format
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// Format converts to the engine format
func (f AudioFormat) Format() audio.Format {
	return audio.Format{
		Codec:      f.Codec,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   f.BitDepth,
	}
}

// ServerHello is the server's response to session/hello
type ServerHello struct {
	ServerID  string `json:"server_id"`
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Version   int    `json:"version"`
	// OutputFormat is the negotiated reply format
	OutputFormat AudioFormat `json:"output_format"`
}

// AudioInput carries one captured frame as base64 PCM16LE
type AudioInput struct {
	Sequence int64  `json:"sequence"`
	Data     string `json:"data"`
}

// NewAudioInput wraps a PCM16LE frame
func NewAudioInput(seq int64, pcm []byte) AudioInput {
	return AudioInput{Sequence: seq, Data: base64.StdEncoding.EncodeToString(pcm)}
}

// Samples decodes the payload
func (a AudioInput) Samples() ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid audio/input payload: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("invalid audio/input payload: odd length %d", len(raw))
	}
	return audio.BytesToInt16(raw), nil
}

// ClientState reports the client's playback state
type ClientState struct {
	State  string `json:"state"` // "idle", "playing", "draining", "stopping"
	Volume int    `json:"volume"`
	Muted  bool   `json:"muted"`
}

// TurnComplete ends the reply audio for a turn
type TurnComplete struct {
	TurnID int `json:"turn_id"`
}

// TurnInterrupted tells the client to drop any reply audio it still holds
type TurnInterrupted struct {
	TurnID int    `json:"turn_id"`
	Reason string `json:"reason"` // "barge_in", "shutdown"
}

// ClientGoodbye is sent before graceful disconnect
type ClientGoodbye struct {
	Reason string `json:"reason"` // "shutdown", "restart", "user_request"
}

// EncodeAudioFrame builds a binary reply audio frame
func EncodeAudioFrame(timestamp int64, payload []byte) []byte {
	frame := make([]byte, BinaryMessageHeaderSize+len(payload))
	frame[0] = AudioChunkMessageType
	binary.BigEndian.PutUint64(frame[1:BinaryMessageHeaderSize], uint64(timestamp))
	copy(frame[BinaryMessageHeaderSize:], payload)
	return frame
}

// DecodeAudioFrame splits a binary frame into timestamp and payload
func DecodeAudioFrame(data []byte) (int64, []byte, error) {
	if len(data) < BinaryMessageHeaderSize {
		return 0, nil, fmt.Errorf("binary message too short: %d bytes", len(data))
	}
	if data[0] != AudioChunkMessageType {
		return 0, nil, fmt.Errorf("unknown binary message type: %d", data[0])
	}
	ts := int64(binary.BigEndian.Uint64(data[1:BinaryMessageHeaderSize]))
	return ts, data[BinaryMessageHeaderSize:], nil
}
