// Package rtc is the browser-facing WebRTC transport.
//
// A Peer is created from the client's SDP offer. Inbound Opus audio is
// decoded and resampled for speech recognition, outbound PCM is encoded to
// Opus and paced at 20ms, and a data channel carries RTVI messages.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/teslashibe/go-humphrey/pkg/audio"
)

var (
	// ErrClosed is returned by operations on a closed peer.
	ErrClosed = errors.New("rtc: peer closed")

	// ErrNotOffer is returned when the client posts something else.
	ErrNotOffer = errors.New("rtc: session description is not an offer")
)

// pendingLimit caps messages held until the data channel opens.
const pendingLimit = 64

// Peer is one browser connection.
type Peer struct {
	id     string
	cfg    Config
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticSample
	logger *slog.Logger

	audio    chan []byte
	messages chan []byte

	dcMu    sync.Mutex
	dc      *webrtc.DataChannel
	pending [][]byte

	outMu sync.Mutex
	enc   *audio.Encoder
	queue [][]byte

	connected     chan struct{}
	connectedOnce sync.Once
	done          chan struct{}
	doneOnce      sync.Once
}

// NewPeer negotiates a connection from offer and returns the peer with
// its answer. The answer carries all gathered candidates.
func NewPeer(ctx context.Context, id string, offer Offer, cfg Config) (*Peer, *Answer, error) {
	if offer.Type != "offer" {
		return nil, nil, ErrNotOffer
	}
	cfg = cfg.withDefaults()

	enc, err := audio.NewEncoder()
	if err != nil {
		return nil, nil, err
	}

	var iceServers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, nil, fmt.Errorf("rtc: create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.RateOpus, Channels: 2},
		"audio", "bot-"+id,
	)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("rtc: create audio track: %w", err)
	}

	p := &Peer{
		id:        id,
		cfg:       cfg,
		pc:        pc,
		track:     track,
		logger:    cfg.Logger.With("component", "rtc.peer", "pc_id", id),
		audio:     make(chan []byte, cfg.AudioBuffer),
		messages:  make(chan []byte, 32),
		enc:       enc,
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("rtc: add audio track: %w", err)
	}
	go p.drainRTCP(sender)

	pc.OnTrack(p.onTrack)
	pc.OnDataChannel(p.onDataChannel)
	pc.OnConnectionStateChange(p.onStateChange)

	answer, err := p.negotiate(ctx, offer)
	if err != nil {
		pc.Close()
		return nil, nil, err
	}

	go p.writeLoop()
	return p, answer, nil
}

// Renegotiate applies a new offer from the same client.
func (p *Peer) Renegotiate(ctx context.Context, offer Offer) (*Answer, error) {
	if offer.Type != "offer" {
		return nil, ErrNotOffer
	}
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}
	return p.negotiate(ctx, offer)
}

func (p *Peer) negotiate(ctx context.Context, offer Offer) (*Answer, error) {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return nil, fmt.Errorf("rtc: set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("rtc: create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("rtc: set local description: %w", err)
	}

	timer := time.NewTimer(p.cfg.GatherTimeout)
	defer timer.Stop()
	select {
	case <-gathered:
	case <-timer.C:
		p.logger.Warn("ICE gathering timed out, answering with partial candidates")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	local := p.pc.LocalDescription()
	return &Answer{SDP: local.SDP, Type: local.Type.String(), PCID: p.id}, nil
}

// ID returns the peer connection id.
func (p *Peer) ID() string { return p.id }

// Audio delivers inbound PCM16 at the configured input rate.
func (p *Peer) Audio() <-chan []byte { return p.audio }

// Messages delivers data channel messages from the client.
func (p *Peer) Messages() <-chan []byte { return p.messages }

// Connected is closed once the connection is established.
func (p *Peer) Connected() <-chan struct{} { return p.connected }

// Done is closed when the connection fails or is closed.
func (p *Peer) Done() <-chan struct{} { return p.done }

// WriteAudio encodes PCM16 at sampleRate and queues it for playback.
func (p *Peer) WriteAudio(pcm []byte, sampleRate int) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	p.outMu.Lock()
	defer p.outMu.Unlock()
	packets, err := p.enc.Encode(pcm, sampleRate)
	p.queue = append(p.queue, packets...)
	return err
}

// ClearAudio drops queued playback.
func (p *Peer) ClearAudio() {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	p.queue = nil
	p.enc.Reset()
}

// Queued returns how much playback is waiting to be sent.
func (p *Peer) Queued() time.Duration {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	return time.Duration(len(p.queue)) * audio.FrameMs * time.Millisecond
}

// SendMessage sends data on the data channel, holding it until the
// channel opens.
func (p *Peer) SendMessage(data []byte) error {
	p.dcMu.Lock()
	defer p.dcMu.Unlock()

	if p.dc == nil || p.dc.ReadyState() != webrtc.DataChannelStateOpen {
		if len(p.pending) >= pendingLimit {
			return errors.New("rtc: data channel not open")
		}
		p.pending = append(p.pending, data)
		return nil
	}
	return p.dc.SendText(string(data))
}

// Close tears the connection down.
func (p *Peer) Close() error {
	err := p.pc.Close()
	p.finish()
	return err
}

func (p *Peer) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *Peer) onStateChange(state webrtc.PeerConnectionState) {
	p.logger.Info("connection state", "state", state.String())
	if p.cfg.OnStateChange != nil {
		p.cfg.OnStateChange(state)
	}
	switch state {
	case webrtc.PeerConnectionStateConnected:
		p.connectedOnce.Do(func() { close(p.connected) })
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		p.finish()
	}
}

func (p *Peer) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		p.logger.Debug("ignoring track", "kind", track.Kind().String())
		return
	}
	p.logger.Info("audio track", "codec", track.Codec().MimeType)
	go p.readAudio(track)
}

func (p *Peer) readAudio(track *webrtc.TrackRemote) {
	dec, err := audio.NewDecoder(p.cfg.InputSampleRate)
	if err != nil {
		p.logger.Error("audio decoder", "error", err)
		return
	}

	buf := make([]byte, 1500)
	var pkt rtp.Packet
	dropped := 0
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		pcm, err := dec.Decode(pkt.Payload)
		if err != nil {
			p.logger.Debug("decode", "error", err)
			continue
		}
		if len(pcm) == 0 {
			continue
		}

		select {
		case p.audio <- pcm:
		case <-p.done:
			return
		default:
			dropped++
			if dropped%50 == 1 {
				p.logger.Warn("inbound audio backlog, dropping frames", "dropped", dropped)
			}
		}
	}
}

func (p *Peer) onDataChannel(dc *webrtc.DataChannel) {
	p.logger.Debug("data channel", "label", dc.Label())

	dc.OnOpen(func() {
		p.dcMu.Lock()
		defer p.dcMu.Unlock()
		p.dc = dc
		for _, msg := range p.pending {
			if err := dc.SendText(string(msg)); err != nil {
				p.logger.Warn("flush pending message", "error", err)
				break
			}
		}
		p.pending = nil
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case p.messages <- msg.Data:
		case <-p.done:
		}
	})
}

// writeLoop sends one queued Opus packet every frame interval.
func (p *Peer) writeLoop() {
	frame := audio.FrameMs * time.Millisecond
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}

		pkt := p.nextPacket()
		if pkt == nil {
			continue
		}
		// done ends the loop once the connection fails or closes
		if err := p.track.WriteSample(media.Sample{Data: pkt, Duration: frame}); err != nil {
			p.logger.Debug("write sample", "error", err)
		}
	}
}

// nextPacket pops the head of the queue, flushing the encoder's partial
// frame once the queue runs dry.
func (p *Peer) nextPacket() []byte {
	p.outMu.Lock()
	defer p.outMu.Unlock()

	if len(p.queue) == 0 {
		tail, err := p.enc.Flush()
		if err != nil || len(tail) == 0 {
			return nil
		}
		p.queue = tail
	}
	pkt := p.queue[0]
	p.queue = p.queue[1:]
	return pkt
}

func (p *Peer) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
