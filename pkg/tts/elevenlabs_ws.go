package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const elevenLabsWSBaseURL = "wss://api.elevenlabs.io/v1"

// chunkLengthSchedule sets how many characters ElevenLabs buffers before
// each generation. Small first values favour time to first audio.
var chunkLengthSchedule = []int{120, 160, 250, 290}

// ElevenLabsWS implements Provider on the ElevenLabs stream-input
// websocket, which starts sending audio before the whole sentence is
// synthesised. Each Stream call uses its own connection.
type ElevenLabsWS struct {
	config *Config
	logger *slog.Logger
	dialer *websocket.Dialer
	wsBase string

	// rest serves Health, which has no websocket equivalent.
	rest *ElevenLabs
}

// NewElevenLabsWS creates a websocket ElevenLabs provider. The base URL,
// if set, uses the ws or wss scheme.
func NewElevenLabsWS(opts ...Option) (*ElevenLabsWS, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTurboV2_5
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}
	cfg.VoiceID = ResolveElevenLabsVoice(cfg.VoiceID)

	wsBase := strings.TrimSuffix(cfg.BaseURL, "/")
	if wsBase == "" {
		wsBase = elevenLabsWSBaseURL
	}

	restOpts := append(append([]Option{}, opts...), WithBaseURL(restURL(wsBase)))
	rest, err := NewElevenLabs(restOpts...)
	if err != nil {
		return nil, err
	}

	return &ElevenLabsWS{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.elevenlabs_ws"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
			NetDialContext:   cfg.NetDial,
		},
		wsBase: wsBase,
		rest:   rest,
	}, nil
}

// restURL maps a websocket base URL to its HTTP counterpart.
func restURL(wsBase string) string {
	switch {
	case strings.HasPrefix(wsBase, "wss://"):
		return "https://" + strings.TrimPrefix(wsBase, "wss://")
	case strings.HasPrefix(wsBase, "ws://"):
		return "http://" + strings.TrimPrefix(wsBase, "ws://")
	}
	return wsBase
}

// Synthesize streams text and collects the audio.
func (e *ElevenLabsWS) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	stream, err := e.Stream(ctx, text)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var (
		audio   []byte
		latency int64
	)
	for {
		chunk, err := stream.Read()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		if latency == 0 {
			latency = time.Since(start).Milliseconds()
		}
		audio = append(audio, chunk...)
	}

	format := stream.Format()
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  EstimateDuration(len(audio), format.SampleRate),
	}, nil
}

// Stream opens a connection, sends text and returns audio as it arrives.
func (e *ElevenLabsWS) Stream(ctx context.Context, text string) (AudioStream, error) {
	u := fmt.Sprintf("%s/text-to-speech/%s/stream-input?%s", e.wsBase, url.PathEscape(e.config.VoiceID),
		url.Values{
			"model_id":      {e.config.ModelID},
			"output_format": {string(e.config.OutputFormat)},
		}.Encode())

	headers := http.Header{}
	headers.Set("xi-api-key", e.config.APIKey)

	conn, resp, err := e.dialer.DialContext(ctx, u, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, e.rest.parseError(resp)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, WrapError(providerElevenLabs, fmt.Errorf("dial: %w", err))
	}

	if err := e.send(conn, text); err != nil {
		conn.Close()
		return nil, WrapError(providerElevenLabs, err)
	}

	st := &wsStream{
		conn:   conn,
		ctx:    ctx,
		format: PCMFormat(e.config.OutputFormat),
		done:   make(chan struct{}),
	}
	go st.watch()

	e.logger.Debug("stream started", "chars", len(text), "voice", e.config.VoiceID)
	return st, nil
}

// send writes the opening settings, the text and the end of input.
func (e *ElevenLabsWS) send(conn *websocket.Conn, text string) error {
	vs := e.config.VoiceSettings
	bos := wsMessage{
		Text: " ",
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       vs.Stability,
			SimilarityBoost: vs.SimilarityBoost,
			Style:           vs.Style,
			SpeakerBoost:    vs.SpeakerBoost,
			Speed:           vs.Speed,
		},
		GenerationConfig: &wsGenerationConfig{ChunkLengthSchedule: chunkLengthSchedule},
	}
	if err := conn.WriteJSON(bos); err != nil {
		return fmt.Errorf("send settings: %w", err)
	}
	// the API expects every text message to end with a space
	if err := conn.WriteJSON(wsMessage{Text: strings.TrimSpace(text) + " ", Flush: true}); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	if err := conn.WriteJSON(wsMessage{Text: ""}); err != nil {
		return fmt.Errorf("send end of input: %w", err)
	}
	return nil
}

// Health checks the API key over HTTP.
func (e *ElevenLabsWS) Health(ctx context.Context) error {
	return e.rest.Health(ctx)
}

// Close releases idle HTTP connections.
func (e *ElevenLabsWS) Close() error {
	return e.rest.Close()
}

// VoiceID returns the resolved voice ID.
func (e *ElevenLabsWS) VoiceID() string {
	return e.config.VoiceID
}

// wsStream reads audio messages from one stream-input connection.
type wsStream struct {
	conn   *websocket.Conn
	ctx    context.Context
	format AudioFormat

	done      chan struct{}
	closeOnce sync.Once

	finished bool
	odd      []byte
}

// watch closes the connection when the context ends so Read unblocks.
func (s *wsStream) watch() {
	select {
	case <-s.ctx.Done():
		s.conn.Close()
	case <-s.done:
	}
}

func (s *wsStream) Read() ([]byte, error) {
	for {
		select {
		case <-s.done:
			return nil, ErrStreamClosed
		default:
		}
		if s.finished {
			return nil, nil
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil, s.ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.finished = true
				return nil, nil
			}
			return nil, WrapError(providerElevenLabs, fmt.Errorf("read: %w", err))
		}

		var msg wsResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, WrapError(providerElevenLabs, fmt.Errorf("parse message: %w", err))
		}
		if msg.Error != "" {
			return nil, &APIError{Provider: providerElevenLabs, Code: msg.Error, Message: msg.Message}
		}
		s.finished = msg.IsFinal

		if msg.Audio == "" {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			return nil, WrapError(providerElevenLabs, fmt.Errorf("decode audio: %w", err))
		}

		chunk := append(s.odd, pcm...)
		s.odd = nil
		if len(chunk)%2 == 1 {
			s.odd = []byte{chunk[len(chunk)-1]}
			chunk = chunk[:len(chunk)-1]
		}
		if len(chunk) > 0 {
			return chunk, nil
		}
	}
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.conn.Close()
	})
	return nil
}

func (s *wsStream) Format() AudioFormat {
	return s.format
}

// Wire types.

type wsMessage struct {
	Text             string                   `json:"text"`
	Flush            bool                     `json:"flush,omitempty"`
	VoiceSettings    *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
	GenerationConfig *wsGenerationConfig      `json:"generation_config,omitempty"`
}

type wsGenerationConfig struct {
	ChunkLengthSchedule []int `json:"chunk_length_schedule"`
}

type wsResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

var _ Provider = (*ElevenLabsWS)(nil)
