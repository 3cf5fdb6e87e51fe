package voice

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for Config.
const (
	DefaultInputSampleRate    = 16000
	DefaultAggregationTimeout = 5 * time.Millisecond
	DefaultIdleTimeout        = 5 * time.Minute
	DefaultConnectTimeout     = 30 * time.Second
	DefaultLLMTemperature     = 0.7
)

// Config holds session settings.
type Config struct {
	// SystemPrompt is the first message of the conversation context.
	SystemPrompt string

	// Greeting is appended as a system message once the client connects,
	// and answered by a bot turn. Empty disables the greeting.
	Greeting string

	// InputSampleRate is the rate of PCM delivered by the transport and
	// forwarded to STT.
	InputSampleRate int

	// AggregationTimeout is how long to wait after the user stops speaking
	// for trailing final transcripts before answering.
	AggregationTimeout time.Duration

	// IdleTimeout ends the session after this long without user or bot
	// activity. Zero disables it.
	IdleTimeout time.Duration

	// ConnectTimeout bounds the wait for the client to connect.
	ConnectTimeout time.Duration

	// LLMTemperature is sent with every completion request.
	LLMTemperature float64

	// EnableMetrics emits an EventMetrics after every completed bot turn.
	EnableMetrics bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		InputSampleRate:    DefaultInputSampleRate,
		AggregationTimeout: DefaultAggregationTimeout,
		IdleTimeout:        DefaultIdleTimeout,
		ConnectTimeout:     DefaultConnectTimeout,
		LLMTemperature:     DefaultLLMTemperature,
		EnableMetrics:      true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.InputSampleRate <= 0 {
		return fmt.Errorf("voice: input sample rate must be positive, got %d", c.InputSampleRate)
	}
	if c.AggregationTimeout < 0 {
		return errors.New("voice: aggregation timeout must not be negative")
	}
	if c.IdleTimeout < 0 {
		return errors.New("voice: idle timeout must not be negative")
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("voice: connect timeout must be positive")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("voice: temperature must be between 0 and 2, got %g", c.LLMTemperature)
	}
	return nil
}
