package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-humphrey/pkg/bot"
	"github.com/teslashibe/go-humphrey/pkg/hub"
	"github.com/teslashibe/go-humphrey/pkg/rtc"
)

// Status is returned by GET /api/status.
type Status struct {
	Bot      string            `json:"bot"`
	Uptime   string            `json:"uptime"`
	Sessions []bot.SessionInfo `json:"sessions"`
	Watchers int               `json:"watchers"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := Status{
		Bot:      s.bots.Name(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Sessions: s.bots.Sessions(),
	}
	if s.events != nil {
		st.Watchers = s.events.ClientCount()
	}
	return c.JSON(st)
}

// handleOffer negotiates a WebRTC session from the client's SDP offer.
func (s *Server) handleOffer(c *fiber.Ctx) error {
	var offer rtc.Offer
	if err := c.BodyParser(&offer); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid offer: "+err.Error())
	}
	if offer.SDP == "" {
		return fiber.NewError(fiber.StatusBadRequest, "offer has no sdp")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.offerTimeout)
	defer cancel()

	answer, err := s.bots.HandleOffer(ctx, offer)
	switch {
	case err == nil:
		return c.JSON(answer)
	case errors.Is(err, rtc.ErrNotOffer):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, bot.ErrClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}

func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
