package voice

import "time"

// EventType identifies a session event.
type EventType string

const (
	EventUserStartedSpeaking EventType = "user-started-speaking"
	EventUserStoppedSpeaking EventType = "user-stopped-speaking"
	EventUserTranscription   EventType = "user-transcription"
	EventBotLLMStarted       EventType = "bot-llm-started"
	EventBotLLMText          EventType = "bot-llm-text"
	EventBotLLMStopped       EventType = "bot-llm-stopped"
	EventBotTTSStarted       EventType = "bot-tts-started"
	EventBotTTSText          EventType = "bot-tts-text"
	EventBotTTSStopped       EventType = "bot-tts-stopped"
	EventBotStartedSpeaking  EventType = "bot-started-speaking"
	EventBotStoppedSpeaking  EventType = "bot-stopped-speaking"
	EventInterruption        EventType = "interruption"
	EventMetrics             EventType = "metrics"
	EventError               EventType = "error"
)

// Event is emitted to observers.
type Event struct {
	Type      EventType
	SessionID string
	Time      time.Time

	// Text carries transcriptions and bot text.
	Text string

	// Final marks a final user transcription.
	Final bool

	// Speakers are the diarization labels of a transcription.
	Speakers []string

	// Metrics is set for EventMetrics.
	Metrics *Metrics

	// Err is set for EventError. Fatal errors end the session.
	Err   error
	Fatal bool
}

// Observer receives session events.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }
