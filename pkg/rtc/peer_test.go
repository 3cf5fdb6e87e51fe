package rtc_test

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-humphrey/pkg/rtc"
)

// browser plays the client side with a plain pion peer connection.
type browser struct {
	pc       *webrtc.PeerConnection
	dc       *webrtc.DataChannel
	received chan string
	opened   chan struct{}
}

func newBrowser(t *testing.T) (*browser, rtc.Offer) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	require.NoError(t, err)

	dc, err := pc.CreateDataChannel("chat", nil)
	require.NoError(t, err)

	b := &browser{pc: pc, dc: dc, received: make(chan string, 16), opened: make(chan struct{})}
	dc.OnOpen(func() { close(b.opened) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) { b.received <- string(msg.Data) })

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	<-gathered

	local := pc.LocalDescription()
	return b, rtc.Offer{SDP: local.SDP, Type: local.Type.String()}
}

func (b *browser) accept(t *testing.T, answer *rtc.Answer) {
	t.Helper()
	require.NoError(t, b.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}))
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestPeerNegotiatesAndCarriesMessages(t *testing.T) {
	b, offer := newBrowser(t)

	cfg := rtc.DefaultConfig()
	cfg.ICEServers = []string{}
	sawConnected := make(chan struct{}, 1)
	cfg.OnStateChange = func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateConnected {
			sawConnected <- struct{}{}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	peer, answer, err := rtc.NewPeer(ctx, "pc-1", offer, cfg)
	require.NoError(t, err)
	defer peer.Close()

	assert.Equal(t, "answer", answer.Type)
	assert.Equal(t, "pc-1", answer.PCID)
	assert.Contains(t, answer.SDP, "opus")

	// queued before the data channel opens
	require.NoError(t, peer.SendMessage([]byte(`{"early":true}`)))

	b.accept(t, answer)
	waitClosed(t, peer.Connected(), "connected")
	waitClosed(t, b.opened, "data channel")
	select {
	case <-sawConnected:
	default:
		t.Error("state callback not called")
	}

	select {
	case got := <-b.received:
		assert.JSONEq(t, `{"early":true}`, got)
	case <-time.After(5 * time.Second):
		t.Fatal("pending message not flushed")
	}

	require.NoError(t, b.dc.SendText(`{"label":"rtvi-ai","type":"client-ready","id":"1"}`))
	select {
	case msg := <-peer.Messages():
		assert.Contains(t, string(msg), "client-ready")
	case <-time.After(5 * time.Second):
		t.Fatal("client message not delivered")
	}

	require.NoError(t, peer.WriteAudio(make([]byte, 3200), 16000))
	assert.Positive(t, peer.Queued())
	peer.ClearAudio()
	assert.Zero(t, peer.Queued())

	require.NoError(t, peer.Close())
	waitClosed(t, peer.Done(), "done")
	assert.ErrorIs(t, peer.WriteAudio([]byte{0, 0}, 16000), rtc.ErrClosed)

	_, err = peer.Renegotiate(ctx, offer)
	assert.ErrorIs(t, err, rtc.ErrClosed)
}

func TestNewPeerRejectsAnswer(t *testing.T) {
	_, _, err := rtc.NewPeer(context.Background(), "pc-x", rtc.Offer{Type: "answer", SDP: "v=0"}, rtc.DefaultConfig())
	assert.ErrorIs(t, err, rtc.ErrNotOffer)
}

func TestNewPeerRejectsGarbageSDP(t *testing.T) {
	_, _, err := rtc.NewPeer(context.Background(), "pc-x", rtc.Offer{Type: "offer", SDP: "garbage"}, rtc.DefaultConfig())
	assert.Error(t, err)
}

func TestNewPeerFillsZeroConfig(t *testing.T) {
	_, offer := newBrowser(t)

	// only ICEServers is set, to keep gathering off the network
	peer, answer, err := rtc.NewPeer(context.Background(), "pc-z", offer, rtc.Config{ICEServers: []string{}})
	require.NoError(t, err)
	defer peer.Close()

	assert.Contains(t, answer.SDP, "a=candidate")
}

func TestPeerStopsPlaybackWhenClosed(t *testing.T) {
	b, offer := newBrowser(t)

	cfg := rtc.DefaultConfig()
	cfg.ICEServers = []string{}
	peer, answer, err := rtc.NewPeer(context.Background(), "pc-2", offer, cfg)
	require.NoError(t, err)

	b.accept(t, answer)
	waitClosed(t, peer.Connected(), "connected")

	// two seconds of silence
	require.NoError(t, peer.WriteAudio(make([]byte, 64000), 16000))
	require.NoError(t, peer.Close())
	waitClosed(t, peer.Done(), "done")

	left := peer.Queued()
	assert.Positive(t, left)
	time.Sleep(200 * time.Millisecond)
	assert.InDelta(t, float64(left), float64(peer.Queued()), float64(20*time.Millisecond))
}
