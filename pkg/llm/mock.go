package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// StreamFunc is called when Stream is invoked. If nil, Reply is
	// streamed word by word.
	StreamFunc func(ctx context.Context, req *ChatRequest) (Stream, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	// Reply is the default streamed response.
	Reply string

	// ChunkDelay is slept before each chunk of the default stream.
	ChunkDelay time.Duration

	mu       sync.Mutex
	calls    []MockCall
	requests []ChatRequest
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock that streams reply.
func NewMock(reply string) *Mock {
	return &Mock{Reply: reply}
}

// WithError returns a mock whose Stream and Health fail with err.
func WithError(err error) *Mock {
	return &Mock{
		StreamFunc: func(ctx context.Context, req *ChatRequest) (Stream, error) { return nil, err },
		HealthFunc: func(ctx context.Context) error { return err },
	}
}

func (m *Mock) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "Stream", Time: time.Now()})
	cp := *req
	cp.Messages = append([]Message(nil), req.Messages...)
	m.requests = append(m.requests, cp)
	m.mu.Unlock()

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return NewChunkStream(ctx, m.ChunkDelay, splitWords(m.Reply)...), nil
}

func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "Health", Time: time.Now()})
	m.mu.Unlock()
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

func (m *Mock) Close() error { return nil }

// Requests returns copies of every request streamed so far.
func (m *Mock) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
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

// NewChunkStream returns a Stream that yields deltas in order, waiting
// delay before each. It honours ctx cancellation.
func NewChunkStream(ctx context.Context, delay time.Duration, deltas ...string) Stream {
	return &chunkStream{ctx: ctx, delay: delay, deltas: deltas}
}

type chunkStream struct {
	ctx    context.Context
	delay  time.Duration
	deltas []string
	pos    int
	closed bool
}

func (s *chunkStream) Recv() (*StreamChunk, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.pos >= len(s.deltas) {
		return &StreamChunk{Done: true, FinishReason: "stop"}, nil
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	} else if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	d := s.deltas[s.pos]
	s.pos++
	return &StreamChunk{Delta: d}, nil
}

func (s *chunkStream) Close() error {
	s.closed = true
	return nil
}

// splitWords splits text into word deltas that keep their leading space.
func splitWords(text string) []string {
	fields := strings.SplitAfter(text, " ")
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

var _ Provider = (*Mock)(nil)
