// Package runner starts an example bot: it loads configuration, builds the
// vendor services, binds the local web endpoint and serves until the
// context is cancelled.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-humphrey/internal/config"
	"github.com/teslashibe/go-humphrey/internal/httpc"
	"github.com/teslashibe/go-humphrey/internal/log"
	"github.com/teslashibe/go-humphrey/pkg/bot"
	"github.com/teslashibe/go-humphrey/pkg/hub"
	"github.com/teslashibe/go-humphrey/pkg/rtc"
	"github.com/teslashibe/go-humphrey/pkg/web"
)

const (
	// DefaultCheckTimeout bounds the --check-vendors health checks.
	DefaultCheckTimeout = 15 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 5 * time.Second
)

// ErrAlreadyStarted is returned when Run is called twice.
var ErrAlreadyStarted = errors.New("runner: already started")

// Env is what an example gets to build its bot.
type Env struct {
	Server config.Server

	// HTTPClient has no overall timeout so streaming responses survive.
	// It dials through SOCKS_PROXY when one is set.
	HTTPClient *http.Client

	// NetDial is the proxy dialer for websockets, nil for direct.
	NetDial httpc.DialContextFunc

	Logger *slog.Logger
}

// Example is one runnable vendor combination.
type Example interface {
	Name() string
	Description() string

	// Sections returns the configuration the example needs. Load fills
	// them before Build is called.
	Sections() []config.Section

	// Build creates the bot from loaded configuration. It must not
	// contact any vendor.
	Build(ctx context.Context, env Env) (bot.Bot, error)
}

// State is the lifecycle of a Runner.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ListenError means the local endpoint could not be bound.
type ListenError struct {
	Addr string
	Err  error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("listen on %s: %v (is another bot already running?)", e.Addr, e.Err)
}

func (e *ListenError) Unwrap() error { return e.Err }

// VendorError means a vendor health check failed at startup.
type VendorError struct {
	Err error
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("vendor check failed: %v", e.Err)
}

func (e *VendorError) Unwrap() error { return e.Err }

// Options control one run.
type Options struct {
	// EnvFile is loaded before configuration when set.
	EnvFile string

	// EnvFileRequired makes a missing EnvFile an error instead of a warning.
	EnvFileRequired bool

	// Host and Port override BOT_HOST and BOT_PORT when non-zero.
	Host string
	Port int

	// LogLevel overrides LOG_LEVEL.
	LogLevel string

	// CheckVendors runs a health check against every vendor before serving.
	CheckVendors bool

	// Listener replaces binding host:port.
	Listener net.Listener

	// Logger replaces the global logger.
	Logger *slog.Logger
}

// Runner runs one example.
type Runner struct {
	example Example

	started atomic.Bool
	state   atomic.Int32
	ready   chan struct{}

	mu   sync.Mutex
	addr string
}

// New returns a runner for ex.
func New(ex Example) *Runner {
	return &Runner{
		example: ex,
		ready:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Ready is closed once the endpoint accepts connections.
func (r *Runner) Ready() <-chan struct{} {
	return r.ready
}

// Addr returns the bound address, empty before Ready.
func (r *Runner) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr
}

// ClientURL returns the browser URL of the client page.
func (r *Runner) ClientURL() string {
	return "http://" + r.Addr() + "/client/"
}

// Run starts the example and blocks until ctx is cancelled or serving
// fails. Configuration is checked before any network activity.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	envLoaded := false
	if opts.EnvFile != "" {
		ok, err := config.LoadEnvFile(opts.EnvFile, opts.EnvFileRequired)
		if err != nil {
			return err
		}
		envLoaded = ok
	}

	var srv config.Server
	sections := append([]config.Section{&srv}, r.example.Sections()...)
	if err := config.Load(sections...); err != nil {
		return err
	}
	if err := applyOverrides(&srv, opts); err != nil {
		return err
	}

	logger := opts.Logger
	if logger == nil {
		log.Init(srv.LogLevel)
		logger = log.L()
	}
	logger = logger.With("component", "runner", "example", r.example.Name())
	if opts.EnvFile != "" && !envLoaded {
		logger.Warn("env file not found, using process environment", "path", opts.EnvFile)
	}

	env, err := newEnv(srv, logger)
	if err != nil {
		return err
	}

	b, err := r.example.Build(ctx, env)
	if err != nil {
		return fmt.Errorf("build %s: %w", r.example.Name(), err)
	}
	defer func() {
		if err := b.Services.Close(); err != nil {
			logger.Warn("closing services", "error", err)
		}
	}()

	if opts.CheckVendors {
		if err := checkVendors(ctx, b, logger); err != nil {
			return err
		}
	}

	ln := opts.Listener
	if ln == nil {
		ln, err = net.Listen("tcp", srv.Addr())
		if err != nil {
			return &ListenError{Addr: srv.Addr(), Err: err}
		}
	}

	return r.serve(ctx, ln, srv, b, logger)
}

func (r *Runner) serve(ctx context.Context, ln net.Listener, srv config.Server, b bot.Bot, logger *slog.Logger) error {
	events := hub.New(b.Name, logger)

	rtcCfg := rtc.DefaultConfig()
	rtcCfg.ICEServers = srv.ICEServers

	manager, err := bot.NewManager(b, bot.Config{
		RTC:    rtcCfg,
		Events: events,
		OnSessionError: func(id string, err error) {
			logger.Error("session failed", "session", id, "error", err)
		},
		ShutdownTimeout: DefaultShutdownTimeout,
		Logger:          logger,
	})
	if err != nil {
		ln.Close()
		return err
	}

	server := web.NewServer(manager, events,
		web.WithLogger(logger),
		web.WithOfferTimeout(srv.OfferTimeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := server.Listen(ln); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()

		var errs []error
		if err := manager.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop server: %w", err))
		}
		// Shutdown may race a Listen that has not registered ln yet.
		_ = ln.Close()
		return errors.Join(errs...)
	})

	r.mu.Lock()
	r.addr = ln.Addr().String()
	r.mu.Unlock()
	r.state.Store(int32(StateRunning))
	close(r.ready)
	logger.Info("serving", "addr", r.Addr(), "bot", b.Name)

	err = g.Wait()
	r.state.Store(int32(StateStopped))
	if err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

func applyOverrides(srv *config.Server, opts Options) error {
	changed := false
	if opts.Host != "" {
		srv.Host = opts.Host
		changed = true
	}
	if opts.Port != 0 {
		srv.Port = opts.Port
		changed = true
	}
	if opts.LogLevel != "" {
		srv.LogLevel = opts.LogLevel
	}
	if !changed {
		return nil
	}
	if err := srv.Validate(); err != nil {
		return &config.ConfigError{Err: err}
	}
	return nil
}

func newEnv(srv config.Server, logger *slog.Logger) (Env, error) {
	client, err := httpc.NewProxiedClient(0, srv.SocksProxy)
	if err != nil {
		return Env{}, &config.ConfigError{Err: fmt.Errorf("SOCKS_PROXY: %w", err)}
	}
	env := Env{Server: srv, HTTPClient: client, Logger: logger}
	if srv.SocksProxy != "" {
		dial, err := httpc.SOCKSDialer(srv.SocksProxy)
		if err != nil {
			return Env{}, &config.ConfigError{Err: fmt.Errorf("SOCKS_PROXY: %w", err)}
		}
		env.NetDial = dial
		logger.Info("using SOCKS proxy", "addr", srv.SocksProxy)
	}
	return env, nil
}

func checkVendors(ctx context.Context, b bot.Bot, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultCheckTimeout)
	defer cancel()

	start := time.Now()
	if err := b.Services.Health(ctx); err != nil {
		return &VendorError{Err: err}
	}
	logger.Info("vendors reachable", "took", time.Since(start).Round(time.Millisecond))
	return nil
}
