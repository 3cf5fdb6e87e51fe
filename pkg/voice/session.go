package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-humphrey/pkg/llm"
	"github.com/teslashibe/go-humphrey/pkg/stt"
)

var (
	// ErrAlreadyStarted is returned when Run is called twice.
	ErrAlreadyStarted = errors.New("voice: session already started")

	// ErrConnectTimeout is returned when the client never connects.
	ErrConnectTimeout = errors.New("voice: client did not connect in time")
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateNew State = iota
	StateWaiting
	StateRunning
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Session is one conversation over one transport.
type Session struct {
	id        string
	cfg       Config
	services  Services
	transport Transport
	conv      *Conversation
	metrics   *MetricsCollector
	logger    *slog.Logger

	obsMu     sync.RWMutex
	observers []Observer

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once

	turnDone chan turnResult

	// owned by the event loop
	active       *turn
	turnSeq      int
	userSpeaking bool
	pending      []string
	speakers     []string
}

type turn struct {
	id     int
	cancel context.CancelFunc
}

// NewSession creates a session. Nothing happens until Run.
func NewSession(id string, cfg Config, services Services, transport Transport, logger *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := services.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, errors.New("voice: no transport")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:        id,
		cfg:       cfg,
		services:  services,
		transport: transport,
		conv:      NewConversation(cfg.SystemPrompt),
		metrics:   NewMetricsCollector(),
		logger:    logger.With("component", "voice.session", "session", id),
		stop:      make(chan struct{}),
		turnDone:  make(chan turnResult, 1),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Conversation returns the message history.
func (s *Session) Conversation() *Conversation { return s.conv }

// Metrics returns the latency collector.
func (s *Session) Metrics() *MetricsCollector { return s.metrics }

// AddObserver registers o for all subsequent events.
func (s *Session) AddObserver(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Cancel ends the session. It is safe to call at any time, more than once.
func (s *Session) Cancel() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run drives the conversation until the client leaves, the session idles
// out, Cancel is called or ctx is done. Those are normal endings and
// return nil. Failing to start speech recognition returns an error.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateNew), int32(StateWaiting)) {
		return ErrAlreadyStarted
	}
	defer s.state.Store(int32(StateEnded))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	stream, err := s.services.STT.Connect(ctx)
	if err != nil {
		err = fmt.Errorf("voice: start speech recognition: %w", err)
		s.logger.Error("session start failed", "error", err)
		s.emit(Event{Type: EventError, Err: err, Fatal: true})
		return err
	}
	defer stream.Close()

	connected, err := s.awaitClient(ctx)
	if err != nil {
		s.logger.Warn("client never connected", "timeout", s.cfg.ConnectTimeout)
		return err
	}
	if !connected {
		return nil
	}

	s.state.Store(int32(StateRunning))
	s.logger.Info("client connected")

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)
	g.Go(func() error {
		defer stopLoop()
		return s.loop(loopCtx, stream)
	})
	g.Go(func() error {
		return s.pumpAudio(loopCtx, stream)
	})

	err = g.Wait()
	avg := s.metrics.Average()
	s.logger.Info("session ended",
		"messages", s.conv.Len(),
		"turns", s.metrics.Turns(),
		"avg_latency", avg.FormatLatency(),
	)
	return err
}

// awaitClient reports whether the client connected before the session
// was stopped.
func (s *Session) awaitClient(ctx context.Context) (bool, error) {
	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-s.transport.Connected():
		return true, nil
	case <-s.transport.Done():
		return false, nil
	case <-ctx.Done():
		return false, nil
	case <-timer.C:
		return false, ErrConnectTimeout
	}
}

func (s *Session) pumpAudio(ctx context.Context, stream stt.Stream) error {
	audio := s.transport.Audio()
	for {
		select {
		case <-ctx.Done():
			return nil
		case pcm, ok := <-audio:
			if !ok {
				return nil
			}
			s.metrics.IncrementAudioIn()
			if err := stream.SendAudio(pcm); err != nil {
				if errors.Is(err, stt.ErrStreamClosed) {
					return nil
				}
				return fmt.Errorf("voice: send audio: %w", err)
			}
		}
	}
}

// loop owns the conversation state. Bot turns run in their own goroutine
// and report back on turnDone.
func (s *Session) loop(ctx context.Context, stream stt.Stream) error {
	defer s.stopTurn()

	var (
		idle  *time.Timer
		idleC <-chan time.Time
	)
	if s.cfg.IdleTimeout > 0 {
		idle = time.NewTimer(s.cfg.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}
	touch := func() {
		if idle != nil {
			idle.Reset(s.cfg.IdleTimeout)
		}
	}

	aggregate := time.NewTimer(time.Hour)
	aggregate.Stop()
	defer aggregate.Stop()

	if s.cfg.Greeting != "" {
		s.conv.Append(llm.NewSystemMessage(s.cfg.Greeting))
		s.startTurn(ctx)
	}

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.transport.Done():
			s.logger.Info("client disconnected")
			return nil

		case <-idleC:
			if s.active != nil || s.userSpeaking {
				touch()
				continue
			}
			s.logger.Info("session idle, ending", "timeout", s.cfg.IdleTimeout)
			return nil

		case <-aggregate.C:
			s.commitUserTurn(ctx)

		case res := <-s.turnDone:
			s.finishTurn(res, false)
			touch()

		case ev, ok := <-events:
			if !ok {
				err := errors.New("voice: speech recognition stream ended")
				s.emit(Event{Type: EventError, Err: err, Fatal: true})
				return err
			}
			touch()
			if err := s.handleTranscript(ev, aggregate); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handleTranscript(ev stt.Event, aggregate *time.Timer) error {
	switch ev.Type {
	case stt.EventSpeechStarted:
		s.userSpeaking = true
		aggregate.Stop()
		s.emit(Event{Type: EventUserStartedSpeaking})
		s.interrupt()

	case stt.EventPartial:
		s.emit(Event{Type: EventUserTranscription, Text: ev.Text, Speakers: ev.Speakers})

	case stt.EventFinal:
		s.emit(Event{Type: EventUserTranscription, Text: ev.Text, Speakers: ev.Speakers, Final: true})
		s.pending = append(s.pending, ev.Text)
		s.speakers = lo.Uniq(append(s.speakers, ev.Speakers...))
		if !s.userSpeaking {
			aggregate.Reset(s.cfg.AggregationTimeout)
		}

	case stt.EventUtteranceEnd:
		s.userSpeaking = false
		s.metrics.MarkSpeechEnd()
		s.emit(Event{Type: EventUserStoppedSpeaking})
		aggregate.Reset(s.cfg.AggregationTimeout)

	case stt.EventError:
		err := fmt.Errorf("voice: speech recognition: %w", ev.Err)
		s.logger.Error("speech recognition failed", "error", ev.Err)
		s.emit(Event{Type: EventError, Err: err, Fatal: true})
		return err
	}
	return nil
}

// commitUserTurn appends the aggregated transcript and answers it.
func (s *Session) commitUserTurn(ctx context.Context) {
	if len(s.pending) == 0 {
		return
	}
	text := strings.Join(s.pending, " ")
	s.logger.Debug("user turn", "text", text, "speakers", s.speakers)
	s.pending, s.speakers = nil, nil

	s.interrupt()
	s.metrics.MarkTranscript()
	s.conv.Append(llm.NewUserMessage(text))
	s.startTurn(ctx)
}

func (s *Session) startTurn(ctx context.Context) {
	s.turnSeq++
	id := s.turnSeq
	tctx, cancel := context.WithCancel(ctx)
	s.active = &turn{id: id, cancel: cancel}
	s.metrics.MarkTurnStart()

	msgs := s.conv.Messages()
	go func() {
		defer cancel()
		s.turnDone <- s.runTurn(tctx, id, msgs)
	}()
}

// interrupt cancels the active turn, if any, and clears queued audio.
func (s *Session) interrupt() {
	if s.active == nil {
		return
	}
	s.active.cancel()
	res := <-s.turnDone
	if res.complete {
		s.finishTurn(res, false)
		return
	}

	s.transport.ClearAudio()
	if res.speaking {
		s.emit(Event{Type: EventBotStoppedSpeaking})
	}
	s.emit(Event{Type: EventInterruption})
	s.logger.Info("bot interrupted", "turn", res.id)
	s.finishTurn(res, true)
}

// stopTurn ends the active turn without signalling an interruption.
func (s *Session) stopTurn() {
	if s.active == nil {
		return
	}
	s.active.cancel()
	res := <-s.turnDone
	s.transport.ClearAudio()
	s.finishTurn(res, !res.complete)
}

func (s *Session) finishTurn(res turnResult, interrupted bool) {
	s.active = nil
	if res.spoken != "" {
		s.conv.Append(llm.NewAssistantMessage(res.spoken))
	}

	switch {
	case res.complete:
		m := s.metrics.MarkResponseDone()
		s.logger.Info("bot turn complete", "turn", res.id, "latency", m.FormatLatency())
		if s.cfg.EnableMetrics {
			s.emit(Event{Type: EventMetrics, Metrics: &m})
		}
	case interrupted, errors.Is(res.err, context.Canceled):
		s.metrics.Discard()
	default:
		s.metrics.Discard()
		if res.speaking {
			s.emit(Event{Type: EventBotStoppedSpeaking})
		}
		s.logger.Error("bot turn failed", "turn", res.id, "error", res.err)
		s.emit(Event{Type: EventError, Err: res.err})
	}
}

func (s *Session) emit(ev Event) {
	ev.SessionID = s.id
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()
	for _, o := range observers {
		o.OnEvent(ev)
	}
}
