// Package bot serves voice sessions to browser clients. A Manager turns
// each WebRTC offer into a peer, a voice session and an RTVI processor,
// and keeps track of them until they end.
package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-humphrey/pkg/hub"
	"github.com/teslashibe/go-humphrey/pkg/rtc"
	"github.com/teslashibe/go-humphrey/pkg/rtvi"
	"github.com/teslashibe/go-humphrey/pkg/voice"
)

// ErrClosed is returned by HandleOffer after Close.
var ErrClosed = errors.New("bot: manager closed")

// Bot is a named voice configuration with its vendor services.
type Bot struct {
	Name     string
	Voice    voice.Config
	Services voice.Services
}

// Validate checks the bot can start sessions.
func (b Bot) Validate() error {
	if b.Name == "" {
		return errors.New("bot: name is required")
	}
	if err := b.Voice.Validate(); err != nil {
		return fmt.Errorf("bot %s: %w", b.Name, err)
	}
	if err := b.Services.Validate(); err != nil {
		return fmt.Errorf("bot %s: %w", b.Name, err)
	}
	return nil
}

// Config holds manager settings.
type Config struct {
	// RTC configures every peer.
	RTC rtc.Config

	// Events receives every session event. Optional.
	Events *hub.Hub

	// OnSessionError is called when a session ends with an error.
	OnSessionError func(id string, err error)

	// ShutdownTimeout bounds the wait for sessions in Close.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID       string    `json:"id"`
	State    string    `json:"state"`
	Started  time.Time `json:"started"`
	Messages int       `json:"messages"`
	Turns    int       `json:"turns"`

	// ClientReady is set once the client has sent client-ready.
	ClientReady bool `json:"client_ready"`
}

func about(name string) rtvi.About {
	return rtvi.About{Library: "go-humphrey", LibraryVersion: name, Platform: "go"}
}
