package rtvi_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-humphrey/pkg/rtvi"
	"github.com/teslashibe/go-humphrey/pkg/voice"
)

type sink struct {
	mu   sync.Mutex
	msgs []rtvi.Message
	err  error
}

func (s *sink) SendMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	var m rtvi.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *sink) last(t *testing.T) rtvi.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.msgs)
	return s.msgs[len(s.msgs)-1]
}

type canceler struct{ n int }

func (c *canceler) Cancel() { c.n++ }

func clientMsg(typ, id string, data any) []byte {
	m := map[string]any{"label": rtvi.Label, "type": typ, "id": id}
	if data != nil {
		m["data"] = data
	}
	b, _ := json.Marshal(m)
	return b
}

func TestClientReady(t *testing.T) {
	out := &sink{}
	p := rtvi.NewProcessor(out, rtvi.WithAbout(rtvi.About{Library: "humphrey"}))

	select {
	case <-p.Ready():
		t.Fatal("ready before client-ready")
	default:
	}

	require.NoError(t, p.HandleMessage(clientMsg(rtvi.TypeClientReady, "c1", map[string]any{"version": "1.0.0"})))

	msg := out.last(t)
	assert.Equal(t, rtvi.Label, msg.Label)
	assert.Equal(t, rtvi.TypeBotReady, msg.Type)
	assert.Equal(t, "c1", msg.ID)

	var data rtvi.BotReadyData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, rtvi.ProtocolVersion, data.Version)
	assert.Equal(t, "humphrey", data.About.Library)

	select {
	case <-p.Ready():
	default:
		t.Fatal("Ready not closed")
	}

	// a repeated client-ready is answered again without panicking
	require.NoError(t, p.HandleMessage(clientMsg(rtvi.TypeClientReady, "c2", nil)))
}

func TestDisconnectBot(t *testing.T) {
	p := rtvi.NewProcessor(&sink{})
	require.NoError(t, p.HandleMessage(clientMsg(rtvi.TypeDisconnectBot, "d1", nil)))

	c := &canceler{}
	p.Attach(c)
	require.NoError(t, p.HandleMessage(clientMsg(rtvi.TypeDisconnectBot, "d2", nil)))
	assert.Equal(t, 1, c.n)
}

func TestUnsupportedMessages(t *testing.T) {
	out := &sink{}
	p := rtvi.NewProcessor(out)

	err := p.HandleMessage(clientMsg("describe-actions", "x1", nil))
	require.Error(t, err)
	msg := out.last(t)
	assert.Equal(t, rtvi.TypeErrorResponse, msg.Type)
	assert.Equal(t, "x1", msg.ID)

	assert.Error(t, p.HandleMessage([]byte(`{"label":"other","type":"client-ready"}`)))
	assert.Error(t, p.HandleMessage([]byte(`not json`)))
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	out := &sink{}
	p := rtvi.NewProcessor(out)
	ch := make(chan []byte, 1)
	ch <- clientMsg(rtvi.TypeClientReady, "r1", nil)
	close(ch)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, rtvi.TypeBotReady, out.last(t).Type)
}

func TestEventTranslation(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name  string
		event voice.Event
		typ   string
		check func(t *testing.T, data json.RawMessage)
	}{
		{
			name:  "final transcription",
			event: voice.Event{Type: voice.EventUserTranscription, Text: "<S1>hi</S1>", Final: true, Speakers: []string{"S1"}, Time: now},
			typ:   rtvi.TypeUserTranscription,
			check: func(t *testing.T, data json.RawMessage) {
				var d rtvi.TranscriptionData
				require.NoError(t, json.Unmarshal(data, &d))
				assert.True(t, d.Final)
				assert.Equal(t, "S1", d.UserID)
				assert.Equal(t, "2026-01-02T03:04:05Z", d.Timestamp)
			},
		},
		{
			name:  "llm text",
			event: voice.Event{Type: voice.EventBotLLMText, Text: "Hello"},
			typ:   rtvi.TypeBotLLMText,
			check: func(t *testing.T, data json.RawMessage) {
				assert.JSONEq(t, `{"text":"Hello"}`, string(data))
			},
		},
		{
			name:  "speaking",
			event: voice.Event{Type: voice.EventBotStartedSpeaking},
			typ:   rtvi.TypeBotStartedSpeaking,
			check: func(t *testing.T, data json.RawMessage) { assert.Empty(t, data) },
		},
		{
			name:  "fatal error",
			event: voice.Event{Type: voice.EventError, Err: errors.New("stt down"), Fatal: true},
			typ:   rtvi.TypeError,
			check: func(t *testing.T, data json.RawMessage) {
				assert.JSONEq(t, `{"error":"stt down","fatal":true}`, string(data))
			},
		},
		{
			name: "metrics",
			event: voice.Event{Type: voice.EventMetrics, Metrics: &voice.Metrics{
				LLMFirstToken: 500 * time.Millisecond,
				TotalLatency:  2 * time.Second,
			}},
			typ: rtvi.TypeMetrics,
			check: func(t *testing.T, data json.RawMessage) {
				var d rtvi.MetricsData
				require.NoError(t, json.Unmarshal(data, &d))
				assert.Equal(t, []rtvi.MetricValue{{Processor: "llm", Value: 0.5}}, d.TTFB)
				assert.Equal(t, []rtvi.MetricValue{{Processor: "turn", Value: 2}}, d.Processing)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &sink{}
			p := rtvi.NewProcessor(out)
			p.OnEvent(tt.event)
			msg := out.last(t)
			assert.Equal(t, tt.typ, msg.Type)
			assert.Len(t, msg.ID, 8)
			tt.check(t, msg.Data)
		})
	}
}

func TestInterruptionIsNotForwarded(t *testing.T) {
	out := &sink{}
	p := rtvi.NewProcessor(out)
	p.OnEvent(voice.Event{Type: voice.EventInterruption})
	p.OnEvent(voice.Event{Type: voice.EventMetrics})
	assert.Empty(t, out.msgs)
}

func TestSendFailureIsSwallowed(t *testing.T) {
	p := rtvi.NewProcessor(&sink{err: errors.New("channel closed")})
	p.OnEvent(voice.Event{Type: voice.EventBotLLMStarted})
}
