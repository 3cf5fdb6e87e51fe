// Package web serves the local endpoint: the browser client page, the
// WebRTC offer API, status and a websocket feed of session events.
package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-humphrey/pkg/bot"
	"github.com/teslashibe/go-humphrey/pkg/hub"
	"github.com/teslashibe/go-humphrey/pkg/rtc"
)

//go:embed client
var clientFiles embed.FS

// Bots is what the server needs from the session manager.
type Bots interface {
	Name() string
	HandleOffer(ctx context.Context, offer rtc.Offer) (*rtc.Answer, error)
	Sessions() []bot.SessionInfo
}

// Server is the local web endpoint.
type Server struct {
	app     *fiber.App
	bots    Bots
	events  *hub.Hub
	logger  *slog.Logger
	started time.Time

	offerTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithOfferTimeout bounds offer negotiation.
func WithOfferTimeout(d time.Duration) Option {
	return func(s *Server) { s.offerTimeout = d }
}

// NewServer builds the app. events may be nil, in which case /ws/events
// is not served.
func NewServer(bots Bots, events *hub.Hub, opts ...Option) *Server {
	s := &Server{
		bots:         bots,
		events:       events,
		logger:       slog.Default(),
		started:      time.Now(),
		offerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web.server")

	app := fiber.New(fiber.Config{
		AppName:               "humphrey",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/client/", fiber.StatusFound)
	})
	app.Get("/health", s.handleHealth)

	static, _ := fs.Sub(clientFiles, "client")
	app.Use("/client", filesystem.New(filesystem.Config{
		Root:   http.FS(static),
		Index:  "index.html",
		Browse: false,
	}))

	api := app.Group("/api")
	api.Post("/offer", s.handleOffer)
	api.Get("/status", s.handleStatus)

	if events != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/events", websocket.New(s.handleEventsWS))
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on ln until Shutdown.
func (s *Server) Listen(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
