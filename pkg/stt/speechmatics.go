package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	speechmaticsURL      = "wss://eu2.rt.speechmatics.com/v2"
	providerSpeechmatics = "speechmatics"
)

// Speechmatics implements Service for the Speechmatics realtime API.
type Speechmatics struct {
	config *Config
	logger *slog.Logger
	dialer *websocket.Dialer
	url    string
}

// NewSpeechmatics creates a Speechmatics realtime client.
func NewSpeechmatics(opts ...Option) (*Speechmatics, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	url := cfg.URL
	if url == "" {
		url = speechmaticsURL
	}

	return &Speechmatics{
		config: cfg,
		logger: cfg.Logger.With("component", "stt.speechmatics"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
			NetDialContext:   cfg.NetDial,
		},
		url: url,
	}, nil
}

// Connect opens a realtime session and waits for RecognitionStarted.
func (s *Speechmatics) Connect(ctx context.Context) (Stream, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	start := s.startRecognition()
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, &ConnectionError{Provider: providerSpeechmatics, Err: fmt.Errorf("send StartRecognition: %w", err)}
	}

	id, err := s.awaitStarted(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	s.logger.Info("recognition started",
		"session", id,
		"language", s.config.Language,
		"sample_rate", s.config.SampleRate,
	)

	st := &speechmaticsStream{
		conn:   conn,
		logger: s.logger.With("session", id),
		format: s.config.SpeakerFormat,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	if !s.config.Diarization {
		st.format = ""
	}
	go st.readLoop()
	return st, nil
}

// Health opens and immediately closes a realtime connection, which is
// enough for the vendor to validate the key.
func (s *Speechmatics) Health(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (s *Speechmatics) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+s.config.APIKey)

	conn, resp, err := s.dialer.DialContext(ctx, s.url, headers)
	if err != nil {
		ce := &ConnectionError{Provider: providerSpeechmatics, Err: err}
		if resp != nil {
			ce.StatusCode = resp.StatusCode
			resp.Body.Close()
		}
		return nil, ce
	}
	return conn, nil
}

func (s *Speechmatics) awaitStarted(ctx context.Context, conn *websocket.Conn) (string, error) {
	deadline := time.Now().Add(s.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		var msg smIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			return "", &ConnectionError{Provider: providerSpeechmatics, Err: fmt.Errorf("await RecognitionStarted: %w", err)}
		}
		switch msg.Message {
		case "RecognitionStarted":
			return msg.ID, nil
		case "Error":
			return "", &ConnectionError{
				Provider: providerSpeechmatics,
				Err:      &VendorError{Provider: providerSpeechmatics, Type: msg.Type, Reason: msg.Reason},
			}
		case "Info", "Warning":
			s.logger.Debug("pre-start message", "message", msg.Message, "reason", msg.Reason)
		}
	}
}

func (s *Speechmatics) startRecognition() smStartRecognition {
	msg := smStartRecognition{
		Message: "StartRecognition",
		AudioFormat: smAudioFormat{
			Type:       "raw",
			Encoding:   "pcm_s16le",
			SampleRate: s.config.SampleRate,
		},
		TranscriptionConfig: smTranscriptionConfig{
			Language:       s.config.Language,
			OperatingPoint: s.config.OperatingPoint,
			EnablePartials: s.config.EnablePartials,
			MaxDelay:       s.config.MaxDelay,
		},
	}
	if s.config.Diarization {
		msg.TranscriptionConfig.Diarization = "speaker"
	}
	if s.config.EndOfUtteranceSilence > 0 {
		msg.TranscriptionConfig.ConversationConfig = &smConversationConfig{
			EndOfUtteranceSilenceTrigger: s.config.EndOfUtteranceSilence,
		}
	}
	return msg
}

// speechmaticsStream is one live session.
type speechmaticsStream struct {
	conn   *websocket.Conn
	logger *slog.Logger
	format string

	writeMu sync.Mutex
	seqNo   int

	events chan Event
	done   chan struct{} // closed by Close
	closed chan struct{} // closed when readLoop exits

	closeOnce sync.Once

	// owned by readLoop
	speaking bool
}

func (st *speechmaticsStream) SendAudio(pcm16 []byte) error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	select {
	case <-st.done:
		return ErrStreamClosed
	case <-st.closed:
		return ErrStreamClosed
	default:
	}

	if err := st.conn.WriteMessage(websocket.BinaryMessage, pcm16); err != nil {
		return WrapError(providerSpeechmatics, fmt.Errorf("send audio: %w", err))
	}
	st.seqNo++
	return nil
}

func (st *speechmaticsStream) Events() <-chan Event {
	return st.events
}

// Close sends EndOfStream, waits briefly for EndOfTranscript, then closes
// the connection.
func (st *speechmaticsStream) Close() error {
	st.closeOnce.Do(func() {
		st.writeMu.Lock()
		close(st.done)
		_ = st.conn.WriteJSON(smEndOfStream{Message: "EndOfStream", LastSeqNo: st.seqNo})
		st.writeMu.Unlock()

		select {
		case <-st.closed:
		case <-time.After(2 * time.Second):
		}

		st.writeMu.Lock()
		_ = st.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		st.writeMu.Unlock()
		st.conn.Close()
		<-st.closed
	})
	return nil
}

func (st *speechmaticsStream) readLoop() {
	defer close(st.events)
	defer close(st.closed)

	for {
		_, data, err := st.conn.ReadMessage()
		if err != nil {
			select {
			case <-st.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				st.logger.Info("connection closed by vendor")
				return
			}
			st.emit(Event{Type: EventError, Err: WrapError(providerSpeechmatics, fmt.Errorf("read: %w", err))})
			return
		}

		var msg smIncoming
		if err := json.Unmarshal(data, &msg); err != nil {
			st.logger.Warn("failed to parse message", "error", err)
			continue
		}
		if !st.handle(msg) {
			return
		}
	}
}

// handle processes one message and reports whether to keep reading.
func (st *speechmaticsStream) handle(msg smIncoming) bool {
	switch msg.Message {
	case "AudioAdded":
	case "AddPartialTranscript":
		st.transcript(EventPartial, msg)
	case "AddTranscript":
		st.transcript(EventFinal, msg)
	case "EndOfUtterance":
		if st.speaking {
			st.speaking = false
			st.emit(Event{Type: EventUtteranceEnd, Start: msg.Metadata.StartTime, End: msg.Metadata.EndTime})
		}
	case "EndOfTranscript":
		return false
	case "Warning":
		st.logger.Warn("vendor warning", "type", msg.Type, "reason", msg.Reason)
	case "Error":
		st.emit(Event{Type: EventError, Err: &VendorError{Provider: providerSpeechmatics, Type: msg.Type, Reason: msg.Reason}})
		return false
	default:
		st.logger.Debug("unhandled message", "message", msg.Message)
	}
	return true
}

func (st *speechmaticsStream) transcript(kind EventType, msg smIncoming) {
	words := lo.Map(msg.Results, func(r smResult, _ int) Word {
		w := Word{
			Start:            r.StartTime,
			End:              r.EndTime,
			AttachesPrevious: r.Type == "punctuation" || r.AttachesTo == "previous",
		}
		if len(r.Alternatives) > 0 {
			w.Content = r.Alternatives[0].Content
			w.Speaker = r.Alternatives[0].Speaker
		}
		return w
	})

	text, speakers := FormatSpeakers(words, st.format)
	if strings.TrimSpace(text) == "" {
		return
	}

	if !st.speaking {
		st.speaking = true
		st.emit(Event{Type: EventSpeechStarted, Start: msg.Metadata.StartTime})
	}
	st.emit(Event{
		Type:     kind,
		Text:     text,
		Speakers: speakers,
		Start:    msg.Metadata.StartTime,
		End:      msg.Metadata.EndTime,
	})
}

func (st *speechmaticsStream) emit(ev Event) {
	select {
	case st.events <- ev:
	case <-st.done:
	}
}

// Wire types.

type smStartRecognition struct {
	Message             string                `json:"message"`
	AudioFormat         smAudioFormat         `json:"audio_format"`
	TranscriptionConfig smTranscriptionConfig `json:"transcription_config"`
}

type smAudioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type smTranscriptionConfig struct {
	Language           string                `json:"language"`
	OperatingPoint     string                `json:"operating_point,omitempty"`
	EnablePartials     bool                  `json:"enable_partials"`
	MaxDelay           float64               `json:"max_delay,omitempty"`
	Diarization        string                `json:"diarization,omitempty"`
	ConversationConfig *smConversationConfig `json:"conversation_config,omitempty"`
}

type smConversationConfig struct {
	EndOfUtteranceSilenceTrigger float64 `json:"end_of_utterance_silence_trigger"`
}

type smEndOfStream struct {
	Message   string `json:"message"`
	LastSeqNo int    `json:"last_seq_no"`
}

type smIncoming struct {
	Message  string     `json:"message"`
	ID       string     `json:"id,omitempty"`
	SeqNo    int        `json:"seq_no,omitempty"`
	Type     string     `json:"type,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Metadata smMetadata `json:"metadata"`
	Results  []smResult `json:"results,omitempty"`
}

type smMetadata struct {
	Transcript string  `json:"transcript"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
}

type smResult struct {
	Type         string          `json:"type"`
	StartTime    float64         `json:"start_time"`
	EndTime      float64         `json:"end_time"`
	AttachesTo   string          `json:"attaches_to,omitempty"`
	IsEOS        bool            `json:"is_eos,omitempty"`
	Alternatives []smAlternative `json:"alternatives"`
}

type smAlternative struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

var _ Service = (*Speechmatics)(nil)
