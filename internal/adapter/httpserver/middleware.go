package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/karelxkk/svx-dashboard/internal/platform/correlation"
	apperrors "github.com/karelxkk/svx-dashboard/internal/platform/errors"
)

const correlationHeader = "X-Request-ID"

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlationHeader)
		if id == "" || len(id) > 64 {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlationHeader, id)
		return next(c)
	}
}

// ErrorHandlingMiddleware renders structured errors as JSON. Echo's own HTTP errors pass through.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			return HandleError(c, err)
		}
	}
}

// HandleError logs err and writes its JSON representation unless the response was already sent.
func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := apperrors.AsStructuredError(err)
	logError(c, structuredErr)

	if c.Response().Committed {
		return nil
	}
	if secs := structuredErr.RetryAfterSeconds(); secs > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	}
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
		"remote_ip", c.RealIP(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeRateLimited:
		slog.InfoContext(ctx, "Connection rejected", attrs...)
	case apperrors.TypeUnavailable:
		slog.WarnContext(ctx, "Service unavailable", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}
