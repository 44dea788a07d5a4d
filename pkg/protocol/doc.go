// ABOUTME: Live voice wire protocol package
// ABOUTME: Defines protocol messages and the WebSocket client
// Package protocol implements the live voice wire protocol.
//
// A session opens with session/hello and server/hello, which negotiates the
// reply codec. The client uploads microphone frames as audio/input messages
// (base64 PCM16LE) and receives reply audio as binary frames:
//
//	[1 byte type=4][8 byte big-endian timestamp µs][encoded payload]
//
// followed by turn/complete, or turn/interrupted when the reply is cut short.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "localhost:8927"})
//	err := client.Connect()
//	for ev := range client.Events {
//	    switch ev := ev.(type) {
//	    case protocol.AudioChunk:
//	        streamer.AddSamples(ev.Samples)
//	    case protocol.TurnComplete:
//	        streamer.Complete()
//	    case protocol.TurnInterrupted:
//	        streamer.Stop()
//	    }
//	}
package protocol
