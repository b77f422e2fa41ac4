package control

import (
	"context"
	"errors"
	"log/slog"

	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
	"github.com/karelxkk/svx-dashboard/internal/domain"
)

// Command sources, used as the metric label.
const (
	SourceTCP   = "tcp"
	SourceWatch = "watch"
	SourceRedis = "redis"
)

// Handler parses control input and hands valid commands to the executor.
type Handler struct {
	exec    domain.CommandExecutor
	metrics *metrics.ControlMetrics
}

// NewHandler creates a handler. m may be nil.
func NewHandler(exec domain.CommandExecutor, m *metrics.ControlMetrics) *Handler {
	return &Handler{exec: exec, metrics: m}
}

// HandleLine parses and executes one line. It reports whether the line was a valid command.
func (h *Handler) HandleLine(ctx context.Context, source, line string) bool {
	cmd, err := Parse(line)
	if err != nil {
		if !errors.Is(err, domain.ErrEmptyCommand) {
			slog.DebugContext(ctx, "Ignoring control line", "source", source, "error", err)
			if h.metrics != nil {
				h.metrics.Ignored.WithLabelValues(source).Inc()
			}
		}
		return false
	}
	h.Handle(ctx, source, cmd)
	return true
}

// Handle executes an already parsed command.
func (h *Handler) Handle(ctx context.Context, source string, cmd domain.Command) {
	if h.metrics != nil {
		h.metrics.Commands.WithLabelValues(string(cmd.Kind), source).Inc()
	}
	h.exec.Execute(ctx, cmd)
}
