// ABOUTME: FIFO queue of playback blocks
// ABOUTME: Blocks leave in the order they arrived
package stream

import "github.com/Resonate-Protocol/resonate-live/pkg/audio"

// BlockQueue is a FIFO of blocks awaiting scheduling
type BlockQueue struct {
	blocks []audio.Block
	head   int
}

// Push appends a block
func (q *BlockQueue) Push(b audio.Block) {
	q.blocks = append(q.blocks, b)
}

// Pop removes and returns the oldest block, or nil when empty
func (q *BlockQueue) Pop() audio.Block {
	if q.head == len(q.blocks) {
		return nil
	}
	b := q.blocks[q.head]
	q.blocks[q.head] = nil
	q.head++
	if q.head == len(q.blocks) {
		q.blocks = q.blocks[:0]
		q.head = 0
	}
	return b
}

// Len returns the number of queued blocks
func (q *BlockQueue) Len() int {
	return len(q.blocks) - q.head
}

// Clear drops every queued block
func (q *BlockQueue) Clear() {
	clear(q.blocks)
	q.blocks = q.blocks[:0]
	q.head = 0
}
