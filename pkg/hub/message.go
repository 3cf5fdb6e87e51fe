// Package hub fans session events out to websocket watchers using a
// channel-based broadcast loop.
package hub

import "time"

// Message is one encoded frame queued for clients.
type Message struct {
	Data []byte
}

// Event is the JSON shape broadcast for every session event.
type Event struct {
	Session string    `json:"session"`
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Text    string    `json:"text,omitempty"`
	Final   bool      `json:"final,omitempty"`
	Error   string    `json:"error,omitempty"`
	Fatal   bool      `json:"fatal,omitempty"`
	Latency string    `json:"latency,omitempty"`
}
