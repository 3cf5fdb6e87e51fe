package hub_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teslashibe/go-humphrey/pkg/hub"
)

func TestHubLifecycle(t *testing.T) {
	h := hub.New("events", nil)
	assert.False(t, h.IsRunning())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	assert.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	assert.Zero(t, h.ClientCount())

	h.Publish(hub.Event{Session: "pc-1", Type: "bot-llm-text", Text: "hi", Time: time.Now()})

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, h.IsRunning())
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := hub.New("events", nil)
	// not running: the queue fills and further messages are dropped
	for i := 0; i < 300; i++ {
		h.Broadcast(hub.Message{Data: []byte("{}")})
	}
	assert.EqualValues(t, 300-256, h.Dropped())
}

func TestBroadcastJSONRejectsUnencodable(t *testing.T) {
	h := hub.New("events", nil)
	assert.Error(t, h.BroadcastJSON(make(chan int)))
}
