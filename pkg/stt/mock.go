package stt

import (
	"context"
	"sync"
	"time"
)

// Mock implements Service for testing.
type Mock struct {
	// ConnectFunc overrides Connect. If nil, a MockStream is returned that
	// first emits Script.
	ConnectFunc func(ctx context.Context) (Stream, error)

	// HealthFunc overrides Health. If nil, Health returns nil.
	HealthFunc func(ctx context.Context) error

	// Script is emitted on every new stream.
	Script []Event

	mu      sync.Mutex
	calls   []MockCall
	streams []*MockStream
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock returns a mock whose streams emit script.
func NewMock(script ...Event) *Mock {
	return &Mock{Script: script}
}

// WithError returns a mock whose Connect and Health fail with err.
func WithError(err error) *Mock {
	return &Mock{
		ConnectFunc: func(ctx context.Context) (Stream, error) { return nil, err },
		HealthFunc:  func(ctx context.Context) error { return err },
	}
}

func (m *Mock) Connect(ctx context.Context) (Stream, error) {
	m.record("Connect")
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	st := NewMockStream()
	for _, ev := range m.Script {
		st.Emit(ev)
	}
	m.mu.Lock()
	m.streams = append(m.streams, st)
	m.mu.Unlock()
	return st, nil
}

func (m *Mock) Health(ctx context.Context) error {
	m.record("Health")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Streams returns the streams opened so far.
func (m *Mock) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// LastStream returns the most recent stream, or nil.
func (m *Mock) LastStream() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// CallCount returns how often method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
}

// MockStream is a Stream driven by the test.
type MockStream struct {
	events chan Event

	mu     sync.Mutex
	audio  []byte
	chunks int
	closed bool
}

// NewMockStream returns an open stream with a generous event buffer.
func NewMockStream() *MockStream {
	return &MockStream{events: make(chan Event, 256)}
}

// Emit pushes an event to the consumer. It is a no-op after Close.
func (s *MockStream) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// Say emits the events of one complete utterance.
func (s *MockStream) Say(text string) {
	s.Emit(Event{Type: EventSpeechStarted})
	s.Emit(Event{Type: EventFinal, Text: text})
	s.Emit(Event{Type: EventUtteranceEnd})
}

func (s *MockStream) SendAudio(pcm16 []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.audio = append(s.audio, pcm16...)
	s.chunks++
	return nil
}

func (s *MockStream) Events() <-chan Event {
	return s.events
}

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// AudioBytes returns the number of audio bytes received.
func (s *MockStream) AudioBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

// Closed reports whether Close was called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var (
	_ Service = (*Mock)(nil)
	_ Stream  = (*MockStream)(nil)
)
