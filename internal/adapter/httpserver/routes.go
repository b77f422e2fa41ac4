package httpserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const sseAlias = "/sse"

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(correlationMiddleware)
	if s.metrics != nil {
		s.echo.Use(s.metrics.HTTP.Middleware(s.opts.SSEPath, sseAlias, s.opts.WSPath))
	}
	s.echo.Use(ErrorHandlingMiddleware())

	streamMW := s.streamMiddleware()

	s.echo.GET(s.opts.SSEPath, s.handleSSE, streamMW...)
	if s.opts.SSEPath != sseAlias {
		s.echo.GET(sseAlias, s.handleSSE, streamMW...)
	}
	if s.opts.WSPath != "" {
		s.echo.GET(s.opts.WSPath, s.handleWS, streamMW...)
	}

	s.registerHealthRoutes()

	if s.opts.MetricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.opts.MetricsHandler))
	}
}

func (s *Server) streamMiddleware() []echo.MiddlewareFunc {
	var mw []echo.MiddlewareFunc
	if s.opts.CORSOrigin != "" {
		mw = append(mw, middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: splitOrigins(s.opts.CORSOrigin),
			AllowMethods: []string{http.MethodGet},
		}))
	}
	if s.opts.ConnectRate > 0 {
		mw = append(mw, newRateLimiter(s.opts.ConnectRate, s.opts.ConnectBurst, s.opts.Pump.RetryHint))
	}
	return mw
}

func splitOrigins(raw string) []string {
	var out []string
	for o := range strings.SplitSeq(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/health/") || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
