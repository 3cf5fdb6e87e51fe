// Package tts provides a unified interface for text-to-speech vendors.
//
// ElevenLabs, Speechmatics and Google Cloud Text-to-Speech all implement
// Provider, so a bot can switch vendor without touching the pipeline.
// Every provider is asked for raw 16-bit mono PCM so audio can go straight
// to the WebRTC encoder.
//
// Example usage:
//
//	provider, _ := tts.NewSpeechmatics(
//	    tts.WithAPIKey(os.Getenv("SPEECHMATICS_API_KEY")),
//	    tts.WithVoice("sarah"),
//	)
//	defer provider.Close()
//
//	stream, _ := provider.Stream(ctx, "Good evening.")
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Read()
//	    if err != nil || chunk == nil {
//	        break
//	    }
//	    // chunk is PCM16 at stream.Format().SampleRate
//	}
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream converts text to audio, returning chunks as they arrive.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioStream is a streaming audio response.
// Callers read until Read returns nil, then call Close.
type AudioStream interface {
	// Read returns the next audio chunk, or nil at the end of the stream.
	Read() ([]byte, error)

	// Close stops the stream and releases resources.
	Close() error

	// Format returns the audio format metadata.
	Format() AudioFormat
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	Audio  []byte
	Format AudioFormat

	// Duration is the playback length.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// PCMFormat returns mono 16-bit PCM at the sample rate of enc.
func PCMFormat(enc Encoding) AudioFormat {
	return AudioFormat{
		Encoding:   enc,
		SampleRate: SampleRateFromEncoding(enc),
		Channels:   1,
		BitDepth:   16,
	}
}

// Encoding names an audio encoding. Values follow the vendor output format
// strings.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
)

// VoiceSettings controls voice characteristics for vendors that support them.
type VoiceSettings struct {
	// Stability trades expressiveness (low) for consistency (high), 0.0-1.0.
	Stability float64

	// SimilarityBoost controls closeness to the original voice, 0.0-1.0.
	SimilarityBoost float64

	// Style exaggeration, 0.0-1.0.
	Style float64

	SpeakerBoost bool

	// Speed multiplier, 1.0 is normal.
	Speed float64
}

// DefaultVoiceSettings returns sensible defaults.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
		Speed:           1.0,
	}
}

// SampleRateFromEncoding extracts the sample rate from an encoding.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44:
		return 44100
	default:
		return 24000
	}
}

// EstimateDuration returns the playback length of PCM16 mono audio.
func EstimateDuration(bytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(bytes/2) * time.Second / time.Duration(sampleRate)
}
