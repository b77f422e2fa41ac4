package app

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
	"github.com/karelxkk/svx-dashboard/internal/detector"
	"github.com/karelxkk/svx-dashboard/internal/domain"
	"github.com/karelxkk/svx-dashboard/internal/platform/correlation"
	"github.com/karelxkk/svx-dashboard/internal/recordstore"
	"golang.org/x/sync/singleflight"
)

// RecordSource reads the current record snapshot and history tail.
type RecordSource interface {
	Records() (domain.Snapshot, error)
	History() ([]domain.HistoryEntry, error)
	Delim() string
}

// Options selects payload formats.
type Options struct {
	HistoryFormat recordstore.HistoryFormat
	// FullResend turns every status change into a full snapshot broadcast.
	FullResend bool
}

// Service is the only component that references the reader, the detector and the publisher
// together. It implements domain.CommandExecutor.
type Service struct {
	source    RecordSource
	detector  *detector.Detector
	publisher domain.EventPublisher
	opts      Options
	clock     clockwork.Clock
	metrics   *metrics.ControlMetrics

	initialGroup singleflight.Group
}

var _ domain.CommandExecutor = (*Service)(nil)

// NewService creates the application service. m may be nil.
func NewService(source RecordSource, det *detector.Detector, publisher domain.EventPublisher, opts Options, clock clockwork.Clock, m *metrics.ControlMetrics) *Service {
	if opts.HistoryFormat == "" {
		opts.HistoryFormat = recordstore.HistoryLines
	}
	return &Service{
		source:    source,
		detector:  det,
		publisher: publisher,
		opts:      opts,
		clock:     clock,
		metrics:   m,
	}
}

// Execute applies one control command. Failures are logged and turn the command into a no-op.
func (s *Service) Execute(ctx context.Context, cmd domain.Command) {
	ctx, _ = correlation.Ensure(ctx)
	start := s.clock.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.CommandTiming.Observe(s.clock.Since(start).Seconds())
		}
	}()

	switch cmd.Kind {
	case domain.CommandStatusFull:
		s.statusFull(ctx)
	case domain.CommandStatus:
		s.status(ctx, cmd.Key)
	case domain.CommandHistory:
		s.historyAdd(ctx)
	case domain.CommandHistoryFull:
		s.historyFull(ctx)
	case domain.CommandBoth:
		s.status(ctx, cmd.Key)
		s.historyAdd(ctx)
	case domain.CommandSend:
		s.publish(ctx, domain.Event{Type: cmd.Event, Payload: cmd.Payload})
	default:
		slog.DebugContext(ctx, "Unknown command kind", "command", string(cmd.Kind))
	}
}

// InitialEvents builds the events a new client receives before live updates: the full record
// snapshot (priming the detector) and the history tail. Concurrent connects share one read.
func (s *Service) InitialEvents(ctx context.Context) []domain.Event {
	v, _, _ := s.initialGroup.Do("initial", func() (any, error) {
		var events []domain.Event

		if snap, ok := s.readRecords(ctx); ok {
			if delta := s.detector.Full(snap); !delta.Empty() {
				events = append(events, domain.Event{
					Type:    domain.EventStatusFull,
					Payload: recordstore.FormatSnapshot(delta.Snapshot, s.source.Delim()),
				})
			}
		}

		if entries, ok := s.readHistory(ctx); ok && len(entries) > 0 {
			events = append(events, domain.Event{
				Type:    domain.EventHistory,
				Payload: recordstore.FormatHistory(entries, s.opts.HistoryFormat),
			})
		}
		return events, nil
	})

	events, _ := v.([]domain.Event)
	return append([]domain.Event(nil), events...)
}

func (s *Service) status(ctx context.Context, key string) {
	if s.opts.FullResend {
		s.statusFull(ctx)
		return
	}

	snap, ok := s.readRecords(ctx)
	if !ok {
		return
	}

	delta := s.detector.Delta(snap, key)
	if delta.Empty() {
		slog.DebugContext(ctx, "No status change to report", "key", key)
		return
	}
	s.publish(ctx, domain.Event{Type: domain.EventStatusDelta, Payload: delta.Record.Join(s.source.Delim())})
}

func (s *Service) statusFull(ctx context.Context) {
	snap, ok := s.readRecords(ctx)
	if !ok {
		return
	}

	delta := s.detector.Full(snap)
	if delta.Empty() {
		slog.DebugContext(ctx, "Status file has no records")
		return
	}
	s.publish(ctx, domain.Event{
		Type:    domain.EventStatusFull,
		Payload: recordstore.FormatSnapshot(delta.Snapshot, s.source.Delim()),
	})
}

func (s *Service) historyAdd(ctx context.Context) {
	entries, ok := s.readHistory(ctx)
	if !ok || len(entries) == 0 {
		return
	}
	last := entries[len(entries)-1]
	s.publish(ctx, domain.Event{
		Type:    domain.EventHistoryDelta,
		Payload: recordstore.FormatHistoryEntry(last, s.opts.HistoryFormat),
	})
}

func (s *Service) historyFull(ctx context.Context) {
	entries, ok := s.readHistory(ctx)
	if !ok {
		return
	}
	s.publish(ctx, domain.Event{
		Type:    domain.EventHistory,
		Payload: recordstore.FormatHistory(entries, s.opts.HistoryFormat),
	})
}

func (s *Service) publish(ctx context.Context, e domain.Event) {
	n := s.publisher.Broadcast(e)
	slog.DebugContext(ctx, "Event broadcast", "event", e.Type, "clients", n)
}

func (s *Service) readRecords(ctx context.Context) (domain.Snapshot, bool) {
	snap, err := s.source.Records()
	if err != nil {
		s.readFailed(ctx, "status", err)
		return domain.Snapshot{}, false
	}
	return snap, true
}

func (s *Service) readHistory(ctx context.Context) ([]domain.HistoryEntry, bool) {
	entries, err := s.source.History()
	if err != nil {
		s.readFailed(ctx, "history", err)
		return nil, false
	}
	return entries, true
}

func (s *Service) readFailed(ctx context.Context, file string, err error) {
	if s.metrics != nil {
		s.metrics.ReadFailures.WithLabelValues(file).Inc()
	}
	slog.WarnContext(ctx, "Read failed, skipping update", "file", file, "error", err)
}
