package rtc

import (
	"log/slog"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-humphrey/pkg/audio"
)

// Config holds peer settings.
type Config struct {
	// ICEServers are stun:/turn: URLs offered to ICE. Nil uses the
	// default STUN server; an empty slice gathers host candidates only.
	ICEServers []string

	// InputSampleRate is the rate of PCM delivered by Audio.
	InputSampleRate int

	// GatherTimeout bounds ICE candidate gathering before answering.
	GatherTimeout time.Duration

	// AudioBuffer is the number of inbound frames held before dropping.
	AudioBuffer int

	// OnStateChange is called on every connection state change.
	OnStateChange func(state webrtc.PeerConnectionState)

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ICEServers:      []string{"stun:stun.l.google.com:19302"},
		InputSampleRate: audio.RateSpeech,
		GatherTimeout:   5 * time.Second,
		AudioBuffer:     100,
		Logger:          slog.Default(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ICEServers == nil {
		c.ICEServers = def.ICEServers
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = def.InputSampleRate
	}
	if c.GatherTimeout <= 0 {
		c.GatherTimeout = def.GatherTimeout
	}
	if c.AudioBuffer <= 0 {
		c.AudioBuffer = def.AudioBuffer
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	return c
}

// Offer is the SDP offer posted by the client.
type Offer struct {
	SDP       string `json:"sdp"`
	Type      string `json:"type"`
	PCID      string `json:"pc_id,omitempty"`
	RestartPC bool   `json:"restart_pc,omitempty"`
}

// Answer is returned to the client.
type Answer struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
	PCID string `json:"pc_id"`
}
