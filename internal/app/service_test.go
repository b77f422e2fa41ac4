package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
	"github.com/karelxkk/svx-dashboard/internal/admission"
	"github.com/karelxkk/svx-dashboard/internal/broadcast"
	"github.com/karelxkk/svx-dashboard/internal/detector"
	"github.com/karelxkk/svx-dashboard/internal/domain"
	"github.com/karelxkk/svx-dashboard/internal/recordstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu         sync.Mutex
	snap       domain.Snapshot
	history    []domain.HistoryEntry
	recordsErr error
	historyErr error
	reads      atomic.Int32
	gate       chan struct{}
}

func (f *fakeSource) Records() (domain.Snapshot, error) {
	f.reads.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.recordsErr
}

func (f *fakeSource) History() ([]domain.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, f.historyErr
}

func (f *fakeSource) Delim() string { return ";" }

func (f *fakeSource) set(records ...domain.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = domain.NewSnapshot(records...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Broadcast(e domain.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return 1
}

func (p *recordingPublisher) all() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

func rec(link string, lastChange int) domain.Record {
	return domain.Record{
		Link: link, Source: "1", Connected: "1", TalkActive: "0", Group: "9",
		LastChange: fmt.Sprint(lastChange), LastTalkStart: "0", LastTalkStop: "0", LastTalkDuration: "0",
	}
}

func row(link string, lastChange int) string {
	return rec(link, lastChange).Join(";")
}

func newTestService(src *fakeSource, opts Options) (*Service, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewService(src, detector.New(), pub, opts, clockwork.NewFakeClock(), nil), pub
}

func TestExecute_StatusFull(t *testing.T) {
	src := &fakeSource{}
	src.set(rec("A", 100), rec("B", 50))
	svc, pub := newTestService(src, Options{})

	svc.Execute(context.Background(), domain.Command{Kind: domain.CommandStatusFull})

	want := recordstore.FormatSnapshot(domain.NewSnapshot(rec("A", 100), rec("B", 50)), ";")
	assert.Equal(t, []domain.Event{{Type: domain.EventStatusFull, Payload: want}}, pub.all())
}

func TestExecute_StatusFullEmptyFileBroadcastsNothing(t *testing.T) {
	src := &fakeSource{}
	src.set()
	svc, pub := newTestService(src, Options{})

	svc.Execute(context.Background(), domain.Command{Kind: domain.CommandStatusFull})
	assert.Empty(t, pub.all())
}

func TestExecute_StatusDelta(t *testing.T) {
	src := &fakeSource{}
	src.set(rec("A", 100))
	svc, pub := newTestService(src, Options{})
	ctx := context.Background()

	svc.Execute(ctx, domain.Command{Kind: domain.CommandStatusFull})
	src.set(rec("A", 200))
	svc.Execute(ctx, domain.Command{Kind: domain.CommandStatus})

	events := pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, domain.Event{Type: domain.EventStatusDelta, Payload: row("A", 200)}, events[1])
}

func TestExecute_StatusKeyed(t *testing.T) {
	src := &fakeSource{}
	src.set(rec("A", 100), rec("B", 300))
	svc, pub := newTestService(src, Options{})

	svc.Execute(context.Background(), domain.Command{Kind: domain.CommandStatus, Key: "A"})

	assert.Equal(t, []domain.Event{{Type: domain.EventStatusDelta, Payload: row("A", 100)}}, pub.all())
}

func TestExecute_FullResendMode(t *testing.T) {
	src := &fakeSource{}
	src.set(rec("A", 100))
	svc, pub := newTestService(src, Options{FullResend: true})

	svc.Execute(context.Background(), domain.Command{Kind: domain.CommandStatus, Key: "A"})

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventStatusFull, events[0].Type)
}

func TestExecute_History(t *testing.T) {
	src := &fakeSource{history: []domain.HistoryEntry{
		{Start: 1, Node: "A", Group: 9, Duration: 3, Raw: "1;A;9;3"},
		{Start: 2, Node: "B", Group: 9, Duration: 4, Raw: "2;B;9;4"},
	}}
	svc, pub := newTestService(src, Options{})
	ctx := context.Background()

	svc.Execute(ctx, domain.Command{Kind: domain.CommandHistory})
	svc.Execute(ctx, domain.Command{Kind: domain.CommandHistoryFull})

	assert.Equal(t, []domain.Event{
		{Type: domain.EventHistoryDelta, Payload: "2;B;9;4"},
		{Type: domain.EventHistory, Payload: "1;A;9;3\n2;B;9;4"},
	}, pub.all())
}

func TestExecute_HistoryJSON(t *testing.T) {
	src := &fakeSource{history: []domain.HistoryEntry{{Start: 7, Node: "N", Group: 1, Duration: 2, Raw: "7;N;1;2"}}}
	svc, pub := newTestService(src, Options{HistoryFormat: recordstore.HistoryJSON})

	svc.Execute(context.Background(), domain.Command{Kind: domain.CommandHistory})

	events := pub.all()
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"start_ts":7,"node":"N","tg":1,"dur":2}`, events[0].Payload)
}

func TestExecute_EmptyHistoryPublishesNoDelta(t *testing.T) {
	svc, pub := newTestService(&fakeSource{}, Options{})
	svc.Execute(context.Background(), domain.Command{Kind: domain.CommandHistory})
	assert.Empty(t, pub.all())
}

func TestExecute_BothOrdersStatusBeforeHistory(t *testing.T) {
	src := &fakeSource{history: []domain.HistoryEntry{{Raw: "1;A;9;3", Node: "A", Start: 1}}}
	src.set(rec("A", 100))
	svc, pub := newTestService(src, Options{})

	svc.Execute(context.Background(), domain.Command{Kind: domain.CommandBoth, Key: "A"})

	events := pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventStatusDelta, events[0].Type)
	assert.Equal(t, domain.EventHistoryDelta, events[1].Type)
}

func TestExecute_Send(t *testing.T) {
	svc, pub := newTestService(&fakeSource{}, Options{})
	svc.Execute(context.Background(), domain.Command{Kind: domain.CommandSend, Event: "note", Payload: "hi there"})
	assert.Equal(t, []domain.Event{{Type: "note", Payload: "hi there"}}, pub.all())
}

func TestExecute_ReadFailureIsNoOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewControlMetrics(reg)
	src := &fakeSource{recordsErr: errors.New("no such file"), historyErr: errors.New("no such file")}
	pub := &recordingPublisher{}
	svc := NewService(src, detector.New(), pub, Options{}, clockwork.NewFakeClock(), m)

	svc.Execute(context.Background(), domain.Command{Kind: domain.CommandBoth})

	assert.Empty(t, pub.all())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReadFailures.WithLabelValues("status")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReadFailures.WithLabelValues("history")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CommandTiming))
}

func TestInitialEvents(t *testing.T) {
	src := &fakeSource{history: []domain.HistoryEntry{{Raw: "1;A;9;3", Node: "A", Start: 1}}}
	src.set(rec("A", 100))
	svc, pub := newTestService(src, Options{})

	events := svc.InitialEvents(context.Background())
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventStatusFull, events[0].Type)
	assert.Equal(t, domain.Event{Type: domain.EventHistory, Payload: "1;A;9;3"}, events[1])
	assert.Empty(t, pub.all())

	// primed: an unchanged file reports the newest row as fallback
	svc.Execute(context.Background(), domain.Command{Kind: domain.CommandStatus})
	assert.Equal(t, []domain.Event{{Type: domain.EventStatusDelta, Payload: row("A", 100)}}, pub.all())
}

func TestInitialEvents_CoalescesConcurrentReads(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	src.set(rec("A", 100))
	svc, _ := newTestService(src, Options{})

	var wg sync.WaitGroup
	results := make([][]domain.Event, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = svc.InitialEvents(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return src.reads.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.LessOrEqual(t, src.reads.Load(), int32(5))
	for _, r := range results {
		require.Len(t, r, 1)
		assert.Equal(t, domain.EventStatusFull, r[0].Type)
	}
}

// End to end through a real broker and client mailbox.
func TestScenarios_ThroughBroker(t *testing.T) {
	tests := []struct {
		name   string
		before []domain.Record
		after  []domain.Record
		want   string
	}{
		{"single change", []domain.Record{rec("A", 100)}, []domain.Record{rec("A", 200)}, row("A", 200)},
		{"two changes newest wins", []domain.Record{rec("A", 100), rec("B", 100)}, []domain.Record{rec("A", 150), rec("B", 300)}, row("B", 300)},
		{"no change falls back to newest", []domain.Record{rec("A", 100), rec("B", 300)}, []domain.Record{rec("A", 100), rec("B", 300)}, row("B", 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			broker := broadcast.NewBroker(admission.New(admission.Limits{Global: 5, SoftPerOrigin: 5, HardPerOrigin: 5}, nil), clock, 8, nil)
			client, err := broker.Register("127.0.0.1")
			require.NoError(t, err)

			src := &fakeSource{}
			src.set(tt.before...)
			svc := NewService(src, detector.New(), broker, Options{}, clock, nil)
			svc.Execute(context.Background(), domain.Command{Kind: domain.CommandStatusFull})

			src.set(tt.after...)
			svc.Execute(context.Background(), domain.Command{Kind: domain.CommandStatus})

			first, ok := client.Mailbox().Drain(context.Background(), time.Second)
			require.True(t, ok)
			assert.Equal(t, domain.EventStatusFull, first.Type)

			second, ok := client.Mailbox().Drain(context.Background(), time.Second)
			require.True(t, ok)
			assert.Equal(t, domain.Event{Type: domain.EventStatusDelta, Payload: tt.want}, second)
		})
	}
}
