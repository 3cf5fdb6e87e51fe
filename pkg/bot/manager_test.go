package bot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-humphrey/pkg/bot"
	"github.com/teslashibe/go-humphrey/pkg/llm"
	"github.com/teslashibe/go-humphrey/pkg/rtc"
	"github.com/teslashibe/go-humphrey/pkg/stt"
	"github.com/teslashibe/go-humphrey/pkg/tts"
	"github.com/teslashibe/go-humphrey/pkg/voice"
)

func testBot(sttSvc stt.Service) bot.Bot {
	cfg := voice.DefaultConfig()
	cfg.Greeting = "Say a short hello to the user."
	return bot.Bot{
		Name:     "test",
		Voice:    cfg,
		Services: voice.Services{STT: sttSvc, LLM: llm.NewMock("Hello."), TTS: tts.NewMock()},
	}
}

func testConfig() bot.Config {
	cfg := bot.Config{RTC: rtc.DefaultConfig(), ShutdownTimeout: 5 * time.Second}
	cfg.RTC.ICEServers = []string{}
	return cfg
}

func browserOffer(t *testing.T) (*webrtc.PeerConnection, *webrtc.DataChannel, rtc.Offer) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	require.NoError(t, err)
	dc, err := pc.CreateDataChannel("rtvi", nil)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	<-gathered

	local := pc.LocalDescription()
	return pc, dc, rtc.Offer{SDP: local.SDP, Type: local.Type.String()}
}

func TestManagerRunsSession(t *testing.T) {
	sttMock := stt.NewMock()
	m, err := bot.NewManager(testBot(sttMock), testConfig())
	require.NoError(t, err)
	assert.Equal(t, "test", m.Name())

	pc, dc, offer := browserOffer(t)
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	answer, err := m.HandleOffer(context.Background(), offer)
	require.NoError(t, err)
	assert.NotEmpty(t, answer.PCID)
	assert.Equal(t, "answer", answer.Type)

	sessions := m.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, answer.PCID, sessions[0].ID)
	assert.False(t, sessions[0].ClientReady)

	require.NoError(t, pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}))

	select {
	case <-opened:
	case <-time.After(10 * time.Second):
		t.Fatal("data channel did not open")
	}
	require.NoError(t, dc.SendText(`{"label":"rtvi-ai","type":"client-ready","id":"1","data":{"version":"1.0.0"}}`))
	require.Eventually(t, func() bool {
		s := m.Sessions()
		return len(s) == 1 && s[0].ClientReady
	}, 5*time.Second, 10*time.Millisecond, "client-ready not tracked")

	require.Eventually(t, func() bool {
		s := m.Sessions()
		return len(s) == 1 && s[0].Turns == 1
	}, 10*time.Second, 10*time.Millisecond, "greeting turn did not complete")

	require.NoError(t, m.Close())
	assert.Zero(t, m.Count())

	_, err = m.HandleOffer(context.Background(), offer)
	assert.ErrorIs(t, err, bot.ErrClosed)
}

func TestManagerReportsSessionErrors(t *testing.T) {
	down := errors.New("speech service down")
	failed := make(chan error, 1)

	cfg := testConfig()
	cfg.OnSessionError = func(id string, err error) { failed <- err }

	m, err := bot.NewManager(testBot(stt.WithError(down)), cfg)
	require.NoError(t, err)
	defer m.Close()

	_, _, offer := browserOffer(t)
	_, err = m.HandleOffer(context.Background(), offer)
	require.NoError(t, err)

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, down)
	case <-time.After(5 * time.Second):
		t.Fatal("session error not reported")
	}
	assert.Eventually(t, func() bool { return m.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManagerRestartReplacesSession(t *testing.T) {
	m, err := bot.NewManager(testBot(stt.NewMock()), testConfig())
	require.NoError(t, err)
	defer m.Close()

	_, _, offer := browserOffer(t)
	first, err := m.HandleOffer(context.Background(), offer)
	require.NoError(t, err)

	_, _, again := browserOffer(t)
	again.PCID = first.PCID
	again.RestartPC = true
	second, err := m.HandleOffer(context.Background(), again)
	require.NoError(t, err)
	assert.NotEqual(t, first.PCID, second.PCID)

	require.Eventually(t, func() bool {
		s := m.Sessions()
		return len(s) == 1 && s[0].ID == second.PCID
	}, 5*time.Second, 10*time.Millisecond, "old session still tracked")
}

func TestManagerRejectsBadOffer(t *testing.T) {
	m, err := bot.NewManager(testBot(stt.NewMock()), testConfig())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.HandleOffer(context.Background(), rtc.Offer{Type: "answer"})
	assert.ErrorIs(t, err, rtc.ErrNotOffer)
	assert.Zero(t, m.Count())
}

func TestBotValidate(t *testing.T) {
	b := testBot(stt.NewMock())
	assert.NoError(t, b.Validate())

	b.Name = ""
	assert.Error(t, b.Validate())

	b = testBot(nil)
	_, err := bot.NewManager(b, testConfig())
	assert.Error(t, err)
}
