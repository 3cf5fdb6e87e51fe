package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Environment variable names for vendor credentials.
const (
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvSpeechmaticsKey = "SPEECHMATICS_API_KEY"
	EnvElevenLabsKey   = "ELEVENLABS_API_KEY"
	EnvGoogleKey       = "GOOGLE_API_KEY"
)

// Server defaults.
const (
	DefaultHost = "localhost"
	DefaultPort = 7860
)

// DefaultICEServers is used when ICE_SERVERS is unset.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

// Server holds settings for the local web endpoint.
type Server struct {
	Host        string        `env:"BOT_HOST" default:"localhost"`
	Port        int           `env:"BOT_PORT" default:"7860"`
	LogLevel    string        `env:"LOG_LEVEL" default:"info"`
	SocksProxy  string        `env:"SOCKS_PROXY"`
	ICEServers  []string      `env:"ICE_SERVERS" delimiter:","`
	IdleTimeout time.Duration `env:"BOT_IDLE_TIMEOUT" default:"5m"`

	// OfferTimeout bounds answering one WebRTC offer, ICE gathering included.
	OfferTimeout time.Duration `env:"BOT_OFFER_TIMEOUT" default:"10s"`
}

func (s *Server) Name() string { return "server" }

func (s *Server) Missing() []string { return nil }

func (s *Server) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("BOT_PORT must be between 1 and 65535, got %d", s.Port)
	}
	if s.IdleTimeout < 0 {
		return fmt.Errorf("BOT_IDLE_TIMEOUT must not be negative, got %s", s.IdleTimeout)
	}
	if s.OfferTimeout <= 0 {
		return fmt.Errorf("BOT_OFFER_TIMEOUT must be positive, got %s", s.OfferTimeout)
	}
	if len(s.ICEServers) == 0 {
		s.ICEServers = DefaultICEServers
	}
	for _, u := range s.ICEServers {
		if !strings.HasPrefix(u, "stun:") && !strings.HasPrefix(u, "turn:") && !strings.HasPrefix(u, "turns:") {
			return fmt.Errorf("ICE_SERVERS entry %q is not a stun: or turn: URL", u)
		}
	}
	return nil
}

// Addr returns host:port for the listener.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ClientURL returns the browser URL of the client page.
func (s *Server) ClientURL() string {
	return fmt.Sprintf("http://%s:%d/client/", s.Host, s.Port)
}

// OpenAI holds LLM settings.
type OpenAI struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	Model   string `env:"OPENAI_MODEL" default:"gpt-4o"`
	BaseURL string `env:"OPENAI_BASE_URL"`
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Missing() []string {
	return required(map[string]string{EnvOpenAIKey: o.APIKey})
}

func (o *OpenAI) Validate() error {
	return validateURL("OPENAI_BASE_URL", o.BaseURL)
}

// Speechmatics holds real-time STT and TTS settings.
type Speechmatics struct {
	APIKey                string  `env:"SPEECHMATICS_API_KEY"`
	RTURL                 string  `env:"SPEECHMATICS_RT_URL" default:"wss://eu2.rt.speechmatics.com/v2"`
	TTSURL                string  `env:"SPEECHMATICS_TTS_URL" default:"https://preview.tts.speechmatics.com"`
	Language              string  `env:"SPEECHMATICS_LANGUAGE" default:"en"`
	OperatingPoint        string  `env:"SPEECHMATICS_OPERATING_POINT" default:"enhanced"`
	MaxDelay              float64 `env:"SPEECHMATICS_MAX_DELAY" default:"0.7"`
	EndOfUtteranceSilence float64 `env:"SPEECHMATICS_EOU_SILENCE" default:"0.5"`
	TTSVoice              string  `env:"SPEECHMATICS_TTS_VOICE" default:"sarah"`
}

func (s *Speechmatics) Name() string { return "speechmatics" }

func (s *Speechmatics) Missing() []string {
	return required(map[string]string{EnvSpeechmaticsKey: s.APIKey})
}

func (s *Speechmatics) Validate() error {
	if s.OperatingPoint != "standard" && s.OperatingPoint != "enhanced" {
		return fmt.Errorf("SPEECHMATICS_OPERATING_POINT must be standard or enhanced, got %q", s.OperatingPoint)
	}
	if s.EndOfUtteranceSilence <= 0 || s.EndOfUtteranceSilence > 2 {
		return fmt.Errorf("SPEECHMATICS_EOU_SILENCE must be in (0, 2], got %g", s.EndOfUtteranceSilence)
	}
	if err := validateURL("SPEECHMATICS_RT_URL", s.RTURL); err != nil {
		return err
	}
	return validateURL("SPEECHMATICS_TTS_URL", s.TTSURL)
}

// ElevenLabs transports.
const (
	ElevenLabsWebsocket = "websocket"
	ElevenLabsHTTP      = "http"
)

// ElevenLabs holds TTS settings.
type ElevenLabs struct {
	APIKey    string `env:"ELEVENLABS_API_KEY"`
	VoiceID   string `env:"ELEVENLABS_VOICE_ID" default:"97U3B7htAA7UsCIDST8b"`
	Model     string `env:"ELEVENLABS_MODEL" default:"eleven_turbo_v2_5"`
	Transport string `env:"ELEVENLABS_TRANSPORT" default:"websocket"`
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) Missing() []string {
	return required(map[string]string{EnvElevenLabsKey: e.APIKey})
}

func (e *ElevenLabs) Validate() error {
	if e.Transport != ElevenLabsWebsocket && e.Transport != ElevenLabsHTTP {
		return fmt.Errorf("ELEVENLABS_TRANSPORT must be websocket or http, got %q", e.Transport)
	}
	return nil
}

// Google holds Cloud Text-to-Speech settings.
type Google struct {
	APIKey       string `env:"GOOGLE_API_KEY"`
	Voice        string `env:"GOOGLE_TTS_VOICE" default:"en-GB-Neural2-B"`
	LanguageCode string `env:"GOOGLE_TTS_LANGUAGE" default:"en-GB"`
}

func (g *Google) Name() string { return "google" }

func (g *Google) Missing() []string {
	return required(map[string]string{EnvGoogleKey: g.APIKey})
}

func (g *Google) Validate() error { return nil }

func validateURL(key, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is not a valid URL: %q", key, raw)
	}
	return nil
}
