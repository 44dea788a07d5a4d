// ABOUTME: Per-connection echo session
// ABOUTME: Detects turns from caller audio and streams the echoed reply in real time
package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-live/pkg/audio"
	"github.com/Resonate-Protocol/resonate-live/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-live/pkg/protocol"
	"github.com/gorilla/websocket"
)

const sendBuffer = 256

type session struct {
	server *Server
	conn   *websocket.Conn
	id     string
	name   string
	format protocol.AudioFormat

	encMu     sync.Mutex
	enc       encode.Encoder
	encClosed bool

	sendChan  chan interface{}
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	state     protocol.ClientState
	speaking  bool
	lastVoice time.Time
	utterance []int16
	turns     int
	reply     *reply
}

// reply is one echoed turn in flight
type reply struct {
	turnID int
	stop   chan struct{}
}

func newSession(s *Server, conn *websocket.Conn, id string, hello protocol.SessionHello, format protocol.AudioFormat, enc encode.Encoder) *session {
	return &session{
		server:   s,
		conn:     conn,
		id:       id,
		name:     hello.Name,
		format:   format,
		enc:      enc,
		sendChan: make(chan interface{}, sendBuffer),
		done:     make(chan struct{}),
		state:    protocol.ClientState{State: "idle", Volume: 100},
	}
}

func (c *session) info() SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SessionInfo{
		ID:      c.id,
		Name:    c.name,
		Codec:   c.format.Codec,
		Rate:    c.format.SampleRate,
		State:   c.state.State,
		Turns:   c.turns,
		Speaker: c.speaking,
	}
}

func (c *session) setState(state protocol.ClientState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// addInput feeds caller audio into turn detection. Speech that starts while
// a reply is playing interrupts it.
func (c *session) addInput(samples []int16) {
	cfg := c.server.config
	loud := audio.Level(samples) >= cfg.SpeechThreshold

	c.mu.Lock()
	defer c.mu.Unlock()

	if loud {
		if !c.speaking && c.reply != nil {
			c.interruptLocked("barge_in")
		}
		c.speaking = true
		c.lastVoice = time.Now()
	}
	if !c.speaking {
		return
	}

	limit := int(audio.Frames(cfg.MaxUtterance, c.format.SampleRate))
	if room := limit - len(c.utterance); room < len(samples) {
		samples = samples[:max(room, 0)]
	}
	c.utterance = append(c.utterance, samples...)
}

// turnLoop ends a turn once the caller has been quiet for the silence gap
func (c *session) turnLoop() {
	gap := c.server.config.SilenceGap
	ticker := time.NewTicker(max(gap/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if !c.speaking || time.Since(c.lastVoice) < gap {
			c.mu.Unlock()
			continue
		}
		utterance := c.utterance
		c.utterance = nil
		c.speaking = false
		c.mu.Unlock()

		if c.server.config.Debug {
			c.server.logger.Printf("Session %s: turn of %v", c.id, audio.Duration(len(utterance), c.format.SampleRate))
		}
		c.startReply(utterance)
	}
}

// startReply streams samples back as a new turn, replacing any reply in flight
func (c *session) startReply(samples []int16) {
	c.mu.Lock()
	if c.reply != nil {
		close(c.reply.stop)
	}
	c.turns++
	r := &reply{turnID: c.turns, stop: make(chan struct{})}
	c.reply = r
	c.mu.Unlock()

	go c.play(r, samples)
}

func (c *session) play(r *reply, samples []int16) {
	frames := c.frames(samples)
	lead := int(c.server.config.ReplyLead / FrameDuration)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for i, frame := range frames {
		if i >= lead {
			select {
			case <-r.stop:
				return
			case <-c.done:
				return
			case <-ticker.C:
			}
		}

		payload, err := c.encode(frame)
		if err != nil {
			c.server.logger.Printf("Session %s: encode failed: %v", c.id, err)
			continue
		}

		// frames of an interrupted reply never follow its turn/interrupted
		ts := (time.Duration(i) * FrameDuration).Microseconds()
		c.mu.Lock()
		if c.reply != r {
			c.mu.Unlock()
			return
		}
		err = c.sendBinary(protocol.EncodeAudioFrame(ts, payload))
		c.mu.Unlock()
		if err != nil {
			c.server.logger.Printf("Session %s: dropping reply frame: %v", c.id, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reply != r {
		return
	}
	c.reply = nil
	c.sendTurnMessage(protocol.TypeTurnComplete, r.turnID, protocol.TurnComplete{TurnID: r.turnID})
}

func (c *session) encode(frame []int16) ([]byte, error) {
	c.encMu.Lock()
	defer c.encMu.Unlock()
	if c.encClosed {
		return nil, audio.ErrNotOpen
	}
	return c.enc.Encode(frame)
}

// frames splits samples into 20ms wire frames
func (c *session) frames(samples []int16) [][]int16 {
	if c.enc.FrameSize() > 0 {
		return encode.Frames(c.enc, c.format.Channels, samples)
	}

	size := c.format.SampleRate / 50 * c.format.Channels
	var frames [][]int16
	for start := 0; start < len(samples); start += size {
		frames = append(frames, samples[start:min(start+size, len(samples))])
	}
	return frames
}

func (c *session) interrupt(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interruptLocked(reason)
}

func (c *session) interruptLocked(reason string) {
	if c.reply == nil {
		return
	}
	close(c.reply.stop)
	id := c.reply.turnID
	c.sendTurnMessage(protocol.TypeTurnInterrupted, id, protocol.TurnInterrupted{TurnID: id, Reason: reason})
	c.reply = nil
}

// sendTurnMessage queues a turn message; a full buffer leaves the caller
// waiting on a turn that never ends, so it is logged
func (c *session) sendTurnMessage(msgType string, turnID int, payload interface{}) {
	if err := c.sendMessage(msgType, payload); err != nil {
		c.server.logger.Printf("Session %s: dropping %s for turn %d: %v", c.id, msgType, turnID, err)
	}
}

func (c *session) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.reply != nil {
			close(c.reply.stop)
			c.reply = nil
		}
		c.mu.Unlock()

		close(c.done)

		c.encMu.Lock()
		c.encClosed = true
		c.enc.Close()
		c.encMu.Unlock()
	})
}

// writer owns all writes to the connection
func (c *session) writer() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.sendChan:
			switch v := msg.(type) {
			case []byte:
				c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
					return
				}
			default:
				data, err := json.Marshal(v)
				if err != nil {
					continue
				}
				c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (c *session) sendMessage(msgType string, payload interface{}) error {
	select {
	case c.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("session send buffer full")
	}
}

func (c *session) sendBinary(data []byte) error {
	select {
	case c.sendChan <- data:
		return nil
	default:
		return fmt.Errorf("session send buffer full")
	}
}
