package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

const providerOpenAI = "openai"

// OpenAI implements Provider on the OpenAI chat completions API.
type OpenAI struct {
	config *Config
	client openai.Client
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		config: cfg,
		client: openai.NewClient(reqOpts...),
		logger: cfg.Logger.With("component", "llm.openai"),
	}, nil
}

// Stream starts a streaming chat completion.
func (o *OpenAI) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	params := o.params(req)

	// The stream outlives this call, so its deadline is tied to a context
	// released by Close.
	sctx, cancel := context.WithTimeout(ctx, o.config.StreamTimeout)
	stream := o.client.Chat.Completions.NewStreaming(sctx, params)

	// Request errors surface on the first Next; probe now so callers see
	// them from Stream.
	s := &openaiStream{stream: stream, cancel: cancel, start: time.Now(), logger: o.logger}
	if !stream.Next() {
		err := stream.Err()
		cancel()
		stream.Close()
		if err != nil {
			return nil, o.convertError(err)
		}
		s.done = true
		return s, nil
	}
	s.pending = true
	return s, nil
}

// Health lists models, which validates the key without generating text.
func (o *OpenAI) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	if _, err := o.client.Models.List(ctx); err != nil {
		return o.convertError(err)
	}
	return nil
}

// Close releases resources held by the provider.
func (o *OpenAI) Close() error {
	return nil
}

// Model returns the configured model.
func (o *OpenAI) Model() string {
	return o.config.Model
}

func (o *OpenAI) params(req *ChatRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = o.config.Model
	}
	temp := o.config.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       openai.ChatModel(model),
		Temperature: openai.Float(temp),
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	return params
}

// convertError maps SDK errors onto APIError.
func (o *OpenAI) convertError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   providerOpenAI,
		}
	}
	return WrapError(providerOpenAI, err)
}

// openaiStream adapts the SDK's SSE stream to Stream.
type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	cancel context.CancelFunc
	logger *slog.Logger
	start  time.Time

	pending bool // stream.Current holds an unread chunk
	done    bool
	closed  bool
}

func (s *openaiStream) Recv() (*StreamChunk, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	for {
		if s.done {
			return &StreamChunk{Done: true}, nil
		}
		if !s.pending && !s.stream.Next() {
			s.done = true
			if err := s.stream.Err(); err != nil {
				return nil, WrapError(providerOpenAI, err)
			}
			s.logger.Debug("stream complete", "elapsed_ms", time.Since(s.start).Milliseconds())
			continue
		}
		s.pending = false

		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			s.done = true
		}
		if choice.Delta.Content == "" && !s.done {
			continue
		}
		return &StreamChunk{
			Delta:        choice.Delta.Content,
			FinishReason: choice.FinishReason,
			Done:         s.done,
		}, nil
	}
}

func (s *openaiStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return s.stream.Close()
}

var _ Provider = (*OpenAI)(nil)
