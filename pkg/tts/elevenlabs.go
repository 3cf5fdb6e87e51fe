package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs.
const (
	// ModelTurboV2_5 is the low latency English model.
	ModelTurboV2_5 = "eleven_turbo_v2_5"

	// ModelFlashV2_5 is the fastest multilingual model.
	ModelFlashV2_5 = "eleven_flash_v2_5"

	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs implements Provider for ElevenLabs TTS.
type ElevenLabs struct {
	config  *Config
	client  *http.Client
	stream  *http.Client
	retry   *retrier
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates an ElevenLabs provider. Voice may be a preset name
// from ElevenLabsVoices or a raw voice ID.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTurboV2_5
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}
	cfg.VoiceID = ResolveElevenLabsVoice(cfg.VoiceID)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	client, stream := cfg.clients()
	e := &ElevenLabs{
		config:  cfg,
		client:  client,
		stream:  stream,
		logger:  cfg.Logger.With("component", "tts.elevenlabs"),
		baseURL: baseURL,
	}
	e.retry = &retrier{
		provider:   providerElevenLabs,
		maxRetries: cfg.MaxRetries,
		delay:      cfg.RetryDelay,
		logger:     e.logger,
		parseError: e.parseError,
	}
	return e, nil
}

// Synthesize converts text to audio, returning the complete buffer.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	resp, err := e.retry.do(ctx, e.client, e.request(ctx, "", text))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("read response: %w", err))
	}

	format := PCMFormat(e.config.OutputFormat)
	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", e.config.ModelID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  EstimateDuration(len(audio), format.SampleRate),
	}, nil
}

// Stream converts text to audio with chunked output.
func (e *ElevenLabs) Stream(ctx context.Context, text string) (AudioStream, error) {
	resp, err := e.retry.do(ctx, e.stream, e.request(ctx, "/stream", text))
	if err != nil {
		return nil, err
	}
	return &httpStream{body: resp.Body, format: PCMFormat(e.config.OutputFormat)}, nil
}

// Health checks API connectivity and API key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/user", nil)
	if err != nil {
		return WrapError(providerElevenLabs, err)
	}
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return WrapError(providerElevenLabs, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return e.parseError(resp)
	}
	return nil
}

// Close releases resources held by the provider.
func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the resolved voice ID.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// request returns a builder for a text-to-speech call; suffix selects the
// streaming endpoint.
func (e *ElevenLabs) request(ctx context.Context, suffix, text string) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		vs := e.config.VoiceSettings
		body, err := json.Marshal(elevenLabsRequest{
			Text:    text,
			ModelID: e.config.ModelID,
			VoiceSettings: elevenLabsVoiceSettings{
				Stability:       vs.Stability,
				SimilarityBoost: vs.SimilarityBoost,
				Style:           vs.Style,
				SpeakerBoost:    vs.SpeakerBoost,
				Speed:           vs.Speed,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}

		u := fmt.Sprintf("%s/text-to-speech/%s%s?%s", e.baseURL, url.PathEscape(e.config.VoiceID), suffix,
			url.Values{"output_format": {string(e.config.OutputFormat)}}.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("xi-api-key", e.config.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/pcm")
		return req, nil
	}
}

// parseError reads and parses an error response.
func (e *ElevenLabs) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body), Provider: providerElevenLabs}
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		apiErr.Message = errResp.Detail.Message
		apiErr.Code = errResp.Detail.Status
	}
	return apiErr
}

var _ Provider = (*ElevenLabs)(nil)
