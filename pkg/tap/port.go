// ABOUTME: Message port between render-time units and handler dispatch
// ABOUTME: Posting never blocks; overflow is counted instead
package tap

import "sync/atomic"

// Message is emitted by a processing unit
type Message struct {
	Tap   string
	Kind  string
	Value float64
	Err   error
}

// Handler receives every message emitted by its tap
type Handler func(Message)

// Port carries messages out of the render callback
type Port struct {
	name    string
	ch      chan Message
	dropped atomic.Int64
}

func newPort(name string, capacity int) *Port {
	return &Port{name: name, ch: make(chan Message, capacity)}
}

// Post queues msg for dispatch and reports whether it was accepted
func (p *Port) Post(msg Message) bool {
	msg.Tap = p.name
	select {
	case p.ch <- msg:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of messages lost to a full port
func (p *Port) Dropped() int64 {
	return p.dropped.Load()
}
