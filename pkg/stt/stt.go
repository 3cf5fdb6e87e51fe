// Package stt provides a streaming speech-to-text interface.
//
// A Service opens one recognition Stream per conversation. Callers push
// 16-bit little-endian mono PCM with SendAudio and consume recognition
// events from Events until the channel is closed.
//
//	svc, _ := stt.NewSpeechmatics(
//	    stt.WithAPIKey(os.Getenv("SPEECHMATICS_API_KEY")),
//	    stt.WithDiarization(true),
//	)
//	stream, _ := svc.Connect(ctx)
//	defer stream.Close()
//	for ev := range stream.Events() {
//	    // ...
//	}
package stt

import "context"

// Service opens recognition streams.
type Service interface {
	// Connect starts a recognition session. It returns once the vendor
	// has accepted the session, so credential and reachability problems
	// surface here.
	Connect(ctx context.Context) (Stream, error)

	// Health checks connectivity and API key validity.
	Health(ctx context.Context) error
}

// Stream is a live recognition session.
type Stream interface {
	// SendAudio queues PCM16 audio for recognition.
	SendAudio(pcm16 []byte) error

	// Events returns recognition events. The channel is closed when the
	// session ends, after an EventError if it ended abnormally.
	Events() <-chan Event

	// Close ends the session and waits for the reader to stop.
	Close() error
}

// EventType identifies a recognition event.
type EventType string

const (
	// EventSpeechStarted fires on the first recognised speech of an utterance.
	EventSpeechStarted EventType = "speech_started"
	// EventPartial carries an interim hypothesis that may still change.
	EventPartial EventType = "partial"
	// EventFinal carries text that will not change.
	EventFinal EventType = "final"
	// EventUtteranceEnd fires when the speaker has gone quiet.
	EventUtteranceEnd EventType = "utterance_end"
	// EventError reports a vendor or connection failure.
	EventError EventType = "error"
)

// Event is one recognition update.
type Event struct {
	Type EventType

	// Text is the transcript, wrapped in speaker tags when diarization
	// and a speaker format are configured.
	Text string

	// Speakers lists speaker labels in order of appearance.
	Speakers []string

	// Start and End are offsets in seconds from the start of the stream.
	Start float64
	End   float64

	Err error
}
