// ABOUTME: High-level Resonate Live library API
// ABOUTME: Provides a Player that holds a voice conversation with a live server
// Package resonate provides the high-level API for live voice sessions.
//
// A Player opens the speaker and microphone, connects to a server speaking
// the live protocol, streams the microphone up, and plays reply turns through
// the streaming engine. Turn ends and barge-in interruptions are reported
// through callbacks.
//
// For lower-level control, see the stream, capture, protocol, and tap packages.
//
// Example:
//
//	player, err := resonate.NewPlayer(resonate.PlayerConfig{
//	    ServerAddr: "localhost:8927",
//	    PlayerName: "Kitchen",
//	    OnTurn: func(ev resonate.TurnEvent) {
//	        log.Printf("turn %d done (interrupted: %v)", ev.TurnID, ev.Interrupted)
//	    },
//	})
//	err = player.Connect()
//	defer player.Close()
//
// Local files can be played without a server:
//
//	err = player.Start()
//	src, err := source.Open("greeting.wav")
//	err = player.PlaySource(ctx, src)
package resonate
