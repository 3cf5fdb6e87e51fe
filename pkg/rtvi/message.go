// Package rtvi speaks the RTVI client protocol over a data channel.
//
// Every message is a JSON object {label:"rtvi-ai", type, id, data}. The
// client announces itself with client-ready and the bot answers with
// bot-ready. From then on the Processor forwards session events
// (transcriptions, speaking indicators, bot text, metrics and errors) as
// server messages.
package rtvi

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	// Label marks every RTVI message.
	Label = "rtvi-ai"

	// ProtocolVersion is reported in bot-ready.
	ProtocolVersion = "1.0.0"
)

// Client message types.
const (
	TypeClientReady   = "client-ready"
	TypeDisconnectBot = "disconnect-bot"
	TypeClientMessage = "client-message"
)

// Server message types.
const (
	TypeBotReady            = "bot-ready"
	TypeErrorResponse       = "error-response"
	TypeError               = "error"
	TypeUserStartedSpeaking = "user-started-speaking"
	TypeUserStoppedSpeaking = "user-stopped-speaking"
	TypeUserTranscription   = "user-transcription"
	TypeBotStartedSpeaking  = "bot-started-speaking"
	TypeBotStoppedSpeaking  = "bot-stopped-speaking"
	TypeBotLLMStarted       = "bot-llm-started"
	TypeBotLLMText          = "bot-llm-text"
	TypeBotLLMStopped       = "bot-llm-stopped"
	TypeBotTTSStarted       = "bot-tts-started"
	TypeBotTTSText          = "bot-tts-text"
	TypeBotTTSStopped       = "bot-tts-stopped"
	TypeBotTranscription    = "bot-transcription"
	TypeMetrics             = "metrics"
)

// Message is the envelope of every RTVI message.
type Message struct {
	Label string          `json:"label"`
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a server message with a fresh id.
func NewMessage(typ string, data any) (Message, error) {
	return newMessage(typ, uuid.NewString()[:8], data)
}

func newMessage(typ, id string, data any) (Message, error) {
	msg := Message{Label: Label, Type: typ, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, fmt.Errorf("rtvi: encode %s: %w", typ, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// ParseMessage decodes a client message and checks its label.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("rtvi: decode message: %w", err)
	}
	if msg.Label != Label {
		return Message{}, fmt.Errorf("rtvi: unexpected label %q", msg.Label)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("rtvi: message without type")
	}
	return msg, nil
}

// About describes the bot in bot-ready.
type About struct {
	Library        string `json:"library"`
	LibraryVersion string `json:"library_version,omitempty"`
	Platform       string `json:"platform,omitempty"`
}

// ClientReadyData is sent by the client in client-ready.
type ClientReadyData struct {
	Version string         `json:"version"`
	About   map[string]any `json:"about,omitempty"`
}

// BotReadyData answers client-ready.
type BotReadyData struct {
	Version string `json:"version"`
	About   About  `json:"about"`
}

// TextData carries bot text.
type TextData struct {
	Text string `json:"text"`
}

// TranscriptionData carries a user transcription.
type TranscriptionData struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
	Final     bool   `json:"final"`
}

// ErrorData reports a session error.
type ErrorData struct {
	Error string `json:"error"`
	Fatal bool   `json:"fatal"`
}

// ErrorResponseData answers a client message that could not be handled.
type ErrorResponseData struct {
	Error string `json:"error"`
}

// MetricValue is one processor measurement in seconds.
type MetricValue struct {
	Processor string  `json:"processor"`
	Value     float64 `json:"value"`
}

// MetricsData reports per-turn latency.
type MetricsData struct {
	TTFB       []MetricValue `json:"ttfb,omitempty"`
	Processing []MetricValue `json:"processing,omitempty"`
}
