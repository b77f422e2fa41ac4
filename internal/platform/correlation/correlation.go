// Package correlation tags contexts with a short id that the log handler attaches to every
// record, so one control command or one stream connection can be followed through the logs.
package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// IDLength is the number of hex characters in a generated id.
const IDLength = 12

// Key is the log attribute name.
const Key = "correlation_id"

type contextKey struct{}

// NewID returns a random hex id of IDLength characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:IDLength]
}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ID extracts the id from ctx, returning ("", false) when absent.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Ensure returns ctx unchanged when it already carries an id, otherwise a child with a new one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id, ok := ID(ctx); ok {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}

// Handler wraps a slog.Handler and adds the correlation id from the record's context.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String(Key, id))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
