package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/karelxkk/svx-dashboard/internal/admission"
	"github.com/karelxkk/svx-dashboard/internal/adapter/websocket"
	"github.com/karelxkk/svx-dashboard/internal/broadcast"
	"github.com/karelxkk/svx-dashboard/internal/domain"
	apperrors "github.com/karelxkk/svx-dashboard/internal/platform/errors"
	"github.com/karelxkk/svx-dashboard/internal/stream"
)

func (s *Server) handleSSE(c echo.Context) error {
	pump, err := s.admit(c)
	if err != nil {
		return err
	}
	defer pump.Close()

	ctx := c.Request().Context()
	initial := s.snapshots.InitialEvents(ctx)

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	slog.DebugContext(ctx, "SSE client connected", "client_id", pump.Client().ID().String(), "origin", pump.Client().Origin())

	if err := pump.Stream(ctx, stream.NewSSEFramer(c.Response()), initial...); err != nil {
		slog.DebugContext(ctx, "SSE stream closed", "client_id", pump.Client().ID().String(), "error", err)
	}
	return nil
}

func (s *Server) handleWS(c echo.Context) error {
	if !ws.IsWebSocketUpgrade(c.Request()) {
		return apperrors.ValidationError("websocket upgrade required")
	}

	pump, err := s.admit(c)
	if err != nil {
		return err
	}
	defer pump.Close()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "error", err)
		return nil
	}
	framer := websocket.NewFramer(conn)
	defer framer.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	idle := 2*s.opts.Pump.HeartbeatInterval + s.opts.Pump.DrainTimeout
	go websocket.ReadLoop(conn, idle, cancel)

	initial := s.snapshots.InitialEvents(ctx)
	if err := pump.Stream(ctx, framer, initial...); err != nil {
		slog.DebugContext(ctx, "WebSocket stream closed", "client_id", pump.Client().ID().String(), "error", err)
	}
	return nil
}

// admit registers a pump for the request's origin and maps refusals to HTTP errors.
func (s *Server) admit(c echo.Context) (*stream.Pump, error) {
	pump := stream.NewPump(s.broker, s.clock, s.opts.Pump, s.streamMetrics())

	err := pump.Admit(c.RealIP())
	if err == nil {
		return pump, nil
	}

	var rejected *broadcast.RejectedError
	switch {
	case errors.As(err, &rejected):
		return nil, apperrors.RateLimitedError("too many connections", err, s.opts.Pump.RetryHint).
			WithContext("reason", string(rejected.Reason))
	case errors.Is(err, domain.ErrRejected):
		return nil, apperrors.RateLimitedError("too many connections", err, s.opts.Pump.RetryHint).
			WithContext("reason", string(admission.ReasonGlobal))
	case errors.Is(err, domain.ErrClosed):
		return nil, apperrors.UnavailableError("server is shutting down", err)
	default:
		return nil, apperrors.InternalError("admission failed", err)
	}
}
