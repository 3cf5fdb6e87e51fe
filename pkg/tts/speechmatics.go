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
	speechmaticsBaseURL  = "https://preview.tts.speechmatics.com"
	providerSpeechmatics = "speechmatics"

	// DefaultSpeechmaticsVoice is used when no voice is configured.
	DefaultSpeechmaticsVoice = "sarah"
)

// Speechmatics implements Provider for the Speechmatics TTS API, which
// returns 16 kHz PCM.
type Speechmatics struct {
	config  *Config
	client  *http.Client
	stream  *http.Client
	retry   *retrier
	logger  *slog.Logger
	baseURL string
}

// NewSpeechmatics creates a Speechmatics TTS provider.
func NewSpeechmatics(opts ...Option) (*Speechmatics, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultSpeechmaticsVoice
	cfg.Apply(opts...)
	// the API only offers this PCM rate
	cfg.OutputFormat = EncodingPCM16

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = speechmaticsBaseURL
	}

	client, stream := cfg.clients()
	s := &Speechmatics{
		config:  cfg,
		client:  client,
		stream:  stream,
		logger:  cfg.Logger.With("component", "tts.speechmatics"),
		baseURL: baseURL,
	}
	s.retry = &retrier{
		provider:   providerSpeechmatics,
		maxRetries: cfg.MaxRetries,
		delay:      cfg.RetryDelay,
		logger:     s.logger,
		parseError: s.parseError,
	}
	return s, nil
}

// Synthesize converts text to audio, returning the complete buffer.
func (s *Speechmatics) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	resp, err := s.retry.do(ctx, s.client, s.request(ctx, text))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerSpeechmatics, fmt.Errorf("read response: %w", err))
	}

	format := PCMFormat(EncodingPCM16)
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
		Duration:  EstimateDuration(len(audio), format.SampleRate),
	}, nil
}

// Stream returns audio chunks as the response body arrives.
func (s *Speechmatics) Stream(ctx context.Context, text string) (AudioStream, error) {
	resp, err := s.retry.do(ctx, s.stream, s.request(ctx, text))
	if err != nil {
		return nil, err
	}
	return &httpStream{body: resp.Body, format: PCMFormat(EncodingPCM16)}, nil
}

// Health synthesizes a single short word. The API has no cheaper
// authenticated endpoint.
func (s *Speechmatics) Health(ctx context.Context) error {
	req, err := s.request(ctx, "ok")()
	if err != nil {
		return WrapError(providerSpeechmatics, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return WrapError(providerSpeechmatics, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.parseError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close releases resources held by the provider.
func (s *Speechmatics) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Speechmatics) request(ctx context.Context, text string) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		body, err := json.Marshal(map[string]string{"text": text})
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}

		u := fmt.Sprintf("%s/generate/%s?output_format=%s",
			s.baseURL, url.PathEscape(s.config.VoiceID), EncodingPCM16)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}
}

func (s *Speechmatics) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Code   int    `json:"code"`
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body)), Provider: providerSpeechmatics}
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Error != "":
			apiErr.Message = errResp.Error
		case errResp.Detail != "":
			apiErr.Message = errResp.Detail
		}
	}
	return apiErr
}

var _ Provider = (*Speechmatics)(nil)
