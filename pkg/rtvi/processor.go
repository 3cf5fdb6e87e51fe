package rtvi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-humphrey/pkg/voice"
)

// Sink delivers encoded messages to the client.
type Sink interface {
	SendMessage(data []byte) error
}

// Canceler ends the session on disconnect-bot.
type Canceler interface {
	Cancel()
}

// Option configures a Processor.
type Option func(*Processor)

// WithAbout sets the bot description sent in bot-ready.
func WithAbout(about About) Option {
	return func(p *Processor) { p.about = about }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// Processor translates between session events and RTVI messages.
// It implements voice.Observer.
type Processor struct {
	sink   Sink
	about  About
	logger *slog.Logger

	mu       sync.Mutex
	canceler Canceler

	ready     chan struct{}
	readyOnce sync.Once
}

// NewProcessor returns a processor writing to sink.
func NewProcessor(sink Sink, opts ...Option) *Processor {
	p := &Processor{
		sink:   sink,
		about:  About{Library: "go-humphrey", Platform: "go"},
		logger: slog.Default(),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "rtvi.processor")
	return p
}

// Attach sets the session ended by disconnect-bot.
func (p *Processor) Attach(c Canceler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceler = c
}

// Ready is closed once the client has sent client-ready.
func (p *Processor) Ready() <-chan struct{} {
	return p.ready
}

// Run handles client messages until messages is closed or ctx is done.
func (p *Processor) Run(ctx context.Context, messages <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-messages:
			if !ok {
				return
			}
			if err := p.HandleMessage(data); err != nil {
				p.logger.Warn("client message rejected", "error", err)
			}
		}
	}
}

// HandleMessage processes one client message. Unknown types are answered
// with error-response.
func (p *Processor) HandleMessage(data []byte) error {
	msg, err := ParseMessage(data)
	if err != nil {
		return err
	}

	switch msg.Type {
	case TypeClientReady:
		var ready ClientReadyData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &ready); err != nil {
				return p.reply(msg.ID, fmt.Errorf("invalid client-ready: %w", err))
			}
		}
		p.logger.Info("client ready", "version", ready.Version)
		p.readyOnce.Do(func() { close(p.ready) })
		return p.send(newMessage(TypeBotReady, msg.ID, BotReadyData{Version: ProtocolVersion, About: p.about}))

	case TypeDisconnectBot:
		p.logger.Info("client requested disconnect")
		p.mu.Lock()
		c := p.canceler
		p.mu.Unlock()
		if c != nil {
			c.Cancel()
		}
		return nil

	default:
		return p.reply(msg.ID, fmt.Errorf("unsupported message type %q", msg.Type))
	}
}

func (p *Processor) reply(id string, cause error) error {
	if err := p.send(newMessage(TypeErrorResponse, id, ErrorResponseData{Error: cause.Error()})); err != nil {
		return err
	}
	return cause
}

// OnEvent forwards a session event to the client.
func (p *Processor) OnEvent(ev voice.Event) {
	typ, data, ok := translate(ev)
	if !ok {
		return
	}
	if err := p.send(NewMessage(typ, data)); err != nil {
		p.logger.Debug("dropped server message", "type", typ, "error", err)
	}
}

func (p *Processor) send(msg Message, err error) error {
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rtvi: encode %s: %w", msg.Type, err)
	}
	return p.sink.SendMessage(raw)
}

// translate maps a session event to a server message type and payload.
func translate(ev voice.Event) (string, any, bool) {
	switch ev.Type {
	case voice.EventUserStartedSpeaking:
		return TypeUserStartedSpeaking, nil, true
	case voice.EventUserStoppedSpeaking:
		return TypeUserStoppedSpeaking, nil, true
	case voice.EventUserTranscription:
		return TypeUserTranscription, TranscriptionData{
			Text:      ev.Text,
			UserID:    strings.Join(ev.Speakers, ","),
			Timestamp: ev.Time.UTC().Format(time.RFC3339Nano),
			Final:     ev.Final,
		}, true
	case voice.EventBotStartedSpeaking:
		return TypeBotStartedSpeaking, nil, true
	case voice.EventBotStoppedSpeaking:
		return TypeBotStoppedSpeaking, nil, true
	case voice.EventBotLLMStarted:
		return TypeBotLLMStarted, nil, true
	case voice.EventBotLLMText:
		return TypeBotLLMText, TextData{Text: ev.Text}, true
	case voice.EventBotLLMStopped:
		return TypeBotLLMStopped, nil, true
	case voice.EventBotTTSStarted:
		return TypeBotTTSStarted, nil, true
	case voice.EventBotTTSText:
		return TypeBotTTSText, TextData{Text: ev.Text}, true
	case voice.EventBotTTSStopped:
		return TypeBotTTSStopped, nil, true
	case voice.EventMetrics:
		if ev.Metrics == nil {
			return "", nil, false
		}
		return TypeMetrics, metricsData(ev.Metrics), true
	case voice.EventError:
		msg := "unknown error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return TypeError, ErrorData{Error: msg, Fatal: ev.Fatal}, true
	}
	return "", nil, false
}

func metricsData(m *voice.Metrics) MetricsData {
	var d MetricsData
	add := func(dst *[]MetricValue, name string, v time.Duration) {
		if v > 0 {
			*dst = append(*dst, MetricValue{Processor: name, Value: v.Seconds()})
		}
	}
	add(&d.TTFB, "stt", m.ASRLatency)
	add(&d.TTFB, "llm", m.LLMFirstToken)
	add(&d.TTFB, "tts", m.TTSFirstAudio)
	add(&d.Processing, "turn", m.TotalLatency)
	return d
}

var _ voice.Observer = (*Processor)(nil)
