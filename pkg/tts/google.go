package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"
)

const (
	providerGoogle = "google"

	// DefaultGoogleVoice is a British English neural voice.
	DefaultGoogleVoice = "en-GB-Neural2-B"

	defaultGoogleLanguage = "en-GB"
)

// Google implements Provider on Cloud Text-to-Speech. The API returns a
// whole utterance per call, so Stream chunks a complete synthesis.
type Google struct {
	config *Config
	svc    *texttospeech.Service
	logger *slog.Logger
}

// NewGoogle creates a Cloud Text-to-Speech provider authenticated with an
// API key.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultGoogleVoice
	cfg.LanguageCode = defaultGoogleLanguage
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create client: %w", err))
	}

	return &Google{
		config: cfg,
		svc:    svc,
		logger: cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Synthesize converts text to LINEAR16 PCM.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()
	format := PCMFormat(g.config.OutputFormat)

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.LanguageCode,
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(format.SampleRate),
			SpeakingRate:    g.config.VoiceSettings.Speed,
		},
	}

	resp, err := g.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, g.convertError(err)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio: %w", err))
	}
	audio := stripWAVHeader(raw)

	latency := time.Since(start).Milliseconds()
	g.logger.Debug("synthesized audio", "chars", len(text), "bytes", len(audio), "latency_ms", latency)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  EstimateDuration(len(audio), format.SampleRate),
	}, nil
}

// Stream synthesizes text and serves it in chunks.
func (g *Google) Stream(ctx context.Context, text string) (AudioStream, error) {
	res, err := g.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	return newBufferStream(res.Audio, res.Format), nil
}

// Health lists voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	if _, err := g.svc.Voices.List().LanguageCode(g.config.LanguageCode).Context(ctx).Do(); err != nil {
		return g.convertError(err)
	}
	return nil
}

// Close releases resources held by the provider.
func (g *Google) Close() error {
	return nil
}

func (g *Google) convertError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &APIError{StatusCode: gErr.Code, Message: gErr.Message, Provider: providerGoogle}
	}
	return WrapError(providerGoogle, err)
}

// stripWAVHeader returns the sample data of a RIFF/WAVE buffer, or the
// input unchanged if it has no RIFF header.
func stripWAVHeader(b []byte) []byte {
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return b
	}
	pos := 12
	for pos+8 <= len(b) {
		id := b[pos : pos+4]
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		pos += 8
		if bytes.Equal(id, []byte("data")) {
			end := pos + size
			if end > len(b) || size == 0 {
				end = len(b)
			}
			return b[pos:end]
		}
		pos += size + size%2
	}
	return b[len(b):]
}

var _ Provider = (*Google)(nil)
