package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-humphrey/pkg/hub"
	"github.com/teslashibe/go-humphrey/pkg/rtc"
	"github.com/teslashibe/go-humphrey/pkg/rtvi"
	"github.com/teslashibe/go-humphrey/pkg/voice"
)

type entry struct {
	peer    *rtc.Peer
	session *voice.Session
	proc    *rtvi.Processor
	started time.Time
	done    chan struct{}
}

// Manager owns the sessions of one bot.
type Manager struct {
	bot    Bot
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

// NewManager validates bot and returns a manager for it.
func NewManager(bot Bot, cfg Config) (*Manager, error) {
	if err := bot.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RTC.Logger == nil {
		cfg.RTC.Logger = cfg.Logger
	}
	if cfg.RTC.InputSampleRate == 0 {
		cfg.RTC.InputSampleRate = bot.Voice.InputSampleRate
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		bot:      bot,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "bot.manager", "bot", bot.Name),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*entry),
	}, nil
}

// Name returns the bot name.
func (m *Manager) Name() string { return m.bot.Name }

// HandleOffer answers a client offer. An offer naming a live pc_id
// renegotiates that peer unless restart_pc is set, in which case the old
// session is ended and a new one started.
func (m *Manager) HandleOffer(ctx context.Context, offer rtc.Offer) (*rtc.Answer, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	existing := m.sessions[offer.PCID]
	m.mu.Unlock()

	if existing != nil {
		if !offer.RestartPC {
			m.logger.Info("renegotiating", "pc_id", offer.PCID)
			return existing.peer.Renegotiate(ctx, offer)
		}
		m.logger.Info("restarting peer", "pc_id", offer.PCID)
		existing.session.Cancel()
	}

	id := uuid.NewString()
	peer, answer, err := rtc.NewPeer(ctx, id, offer, m.cfg.RTC)
	if err != nil {
		return nil, err
	}

	session, err := voice.NewSession(id, m.bot.Voice, m.bot.Services, peer, m.cfg.Logger)
	if err != nil {
		peer.Close()
		return nil, err
	}

	proc := rtvi.NewProcessor(peer, rtvi.WithAbout(about(m.bot.Name)), rtvi.WithLogger(m.cfg.Logger))
	proc.Attach(session)
	session.AddObserver(proc)
	if m.cfg.Events != nil {
		session.AddObserver(voice.ObserverFunc(m.publish))
	}

	e := &entry{peer: peer, session: session, proc: proc, started: time.Now(), done: make(chan struct{})}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		peer.Close()
		return nil, ErrClosed
	}
	m.sessions[id] = e
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(id, e)

	m.logger.Info("session created", "pc_id", id, "sessions", m.Count())
	return answer, nil
}

func (m *Manager) run(id string, e *entry) {
	defer m.wg.Done()
	defer close(e.done)

	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	go e.proc.Run(ctx, e.peer.Messages())

	err := e.session.Run(ctx)
	if err != nil {
		m.logger.Error("session failed", "pc_id", id, "error", err)
		if m.cfg.OnSessionError != nil {
			m.cfg.OnSessionError(id, err)
		}
	}

	if cerr := e.peer.Close(); cerr != nil {
		m.logger.Debug("close peer", "pc_id", id, "error", cerr)
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.logger.Info("session removed", "pc_id", id, "duration", time.Since(e.started).Round(time.Second))
}

func (m *Manager) publish(ev voice.Event) {
	out := hub.Event{
		Session: ev.SessionID,
		Type:    string(ev.Type),
		Time:    ev.Time,
		Text:    ev.Text,
		Final:   ev.Final,
		Fatal:   ev.Fatal,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	if ev.Metrics != nil {
		out.Latency = ev.Metrics.FormatLatency()
	}
	m.cfg.Events.Publish(out)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sessions lists live sessions, oldest first.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for id, e := range m.sessions {
		info := SessionInfo{
			ID:       id,
			State:    e.session.State().String(),
			Started:  e.started,
			Messages: e.session.Conversation().Len(),
			Turns:    e.session.Metrics().Turns(),
		}
		select {
		case <-e.proc.Ready():
			info.ClientReady = true
		default:
		}
		out = append(out, info)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Close ends every session and waits for them, bounded by the shutdown
// timeout. Further offers are rejected.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	n := len(m.sessions)
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all sessions closed", "sessions", n)
		return nil
	case <-time.After(m.cfg.ShutdownTimeout):
		return fmt.Errorf("bot: %d sessions still running after %s", m.Count(), m.cfg.ShutdownTimeout)
	}
}
