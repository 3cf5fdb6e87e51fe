package stt

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// DefaultSpeakerFormat wraps each speaker's words in a tag named after them.
const DefaultSpeakerFormat = "<{speaker_id}>{text}</{speaker_id}>"

// Config holds STT provider configuration.
type Config struct {
	APIKey string
	URL    string

	// Recognition
	Language              string
	OperatingPoint        string
	SampleRate            int
	EnablePartials        bool
	MaxDelay              float64
	EndOfUtteranceSilence float64

	// Diarization
	Diarization   bool
	SpeakerFormat string

	// Transport
	Timeout time.Duration
	NetDial func(ctx context.Context, network, addr string) (net.Conn, error)

	Logger *slog.Logger
}

// Option configures an STT provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithURL overrides the realtime endpoint.
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithLanguage sets the recognition language code.
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithOperatingPoint selects the "standard" or "enhanced" model.
func WithOperatingPoint(op string) Option {
	return func(c *Config) { c.OperatingPoint = op }
}

// WithSampleRate sets the input audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

// WithPartials enables or disables interim results.
func WithPartials(enabled bool) Option {
	return func(c *Config) { c.EnablePartials = enabled }
}

// WithMaxDelay sets the maximum finalisation delay in seconds.
func WithMaxDelay(seconds float64) Option {
	return func(c *Config) { c.MaxDelay = seconds }
}

// WithEndOfUtteranceSilence sets the silence in seconds that ends an utterance.
func WithEndOfUtteranceSilence(seconds float64) Option {
	return func(c *Config) { c.EndOfUtteranceSilence = seconds }
}

// WithDiarization enables speaker labelling.
func WithDiarization(enabled bool) Option {
	return func(c *Config) { c.Diarization = enabled }
}

// WithSpeakerFormat sets the template used to wrap each speaker's words.
// {speaker_id} and {text} are substituted.
func WithSpeakerFormat(format string) Option {
	return func(c *Config) { c.SpeakerFormat = format }
}

// WithTimeout sets the connect and handshake timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithNetDial routes connections through a custom dialer, e.g. a SOCKS proxy.
func WithNetDial(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(c *Config) { c.NetDial = dial }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns defaults suited to conversational use.
func DefaultConfig() *Config {
	return &Config{
		Language:              "en",
		OperatingPoint:        "enhanced",
		SampleRate:            16000,
		EnablePartials:        true,
		MaxDelay:              0.7,
		EndOfUtteranceSilence: 0.5,
		Diarization:           true,
		SpeakerFormat:         DefaultSpeakerFormat,
		Timeout:               10 * time.Second,
		Logger:                slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks required configuration.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.SampleRate <= 0 {
		return ErrBadSampleRate
	}
	return nil
}
