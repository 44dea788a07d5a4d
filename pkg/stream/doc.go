// ABOUTME: Streaming playback engine package
// ABOUTME: Turns arbitrary inbound PCM chunks into a gapless scheduled signal
// Package stream renders an open-ended sequence of PCM16 chunks as one
// continuous signal.
//
// Inbound chunks of any size are cut into fixed-size blocks and queued. A
// scheduling pass commits queued blocks to the output a short look-ahead
// window ahead of the output clock, keeping a monotonic timeline so adjacent
// blocks butt up exactly. Between passes a pacer keeps exactly one timer
// armed: a slow idle poll while the queue is empty, or a precise re-arm just
// before the committed audio runs out.
//
// The Streamer also owns the playback lifecycle:
//
//	s := stream.New(stream.DefaultConfig(), mixer, nil)
//	s.OnComplete(func() { log.Println("turn finished") })
//	s.Start(ctx)
//	io.Copy(s, conn)     // PCM16LE
//	s.Complete()         // no more data this turn
//
// Stop fades the output out and discards everything pending; Resume re-arms
// the timeline for the next turn.
package stream
