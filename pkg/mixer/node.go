// ABOUTME: Send nodes attached to the render graph
// ABOUTME: A node processes the voices routed to it once per render quantum
package mixer

// Processor is a render-time processing stage. Process runs in the device
// callback with equal-length in and out slices and must not block.
type Processor interface {
	Process(in, out []float32)
}

// Node feeds the voices routed to it through a Processor. Its output is summed
// into the destination, bypassing the gain stage.
type Node struct {
	proc  Processor
	in    []float32
	out   []float32
	owner *Mixer
}

// NewNode wraps p in a node that can be connected to a Mixer
func NewNode(p Processor) *Node {
	return &Node{proc: p}
}

// Processor returns the node's processing stage
func (n *Node) Processor() Processor {
	return n.proc
}
