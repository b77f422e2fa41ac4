package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
	"github.com/karelxkk/svx-dashboard/internal/admission"
	"github.com/karelxkk/svx-dashboard/internal/broadcast"
	"github.com/karelxkk/svx-dashboard/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFramer struct {
	mu         sync.Mutex
	opened     bool
	events     []domain.Event
	heartbeats int
	failWrites bool
}

func (f *recordingFramer) Transport() string { return "test" }

func (f *recordingFramer) Open(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = true
	return nil
}

func (f *recordingFramer) WriteEvent(e domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("broken pipe")
	}
	f.events = append(f.events, e)
	return nil
}

func (f *recordingFramer) Heartbeat() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *recordingFramer) snapshot() ([]domain.Event, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Event(nil), f.events...), f.heartbeats
}

type pumpFixture struct {
	clock  *clockwork.FakeClock
	broker *broadcast.Broker
	ctrl   *admission.Controller
	opts   Options
}

func newPumpFixture(limits admission.Limits) *pumpFixture {
	clock := clockwork.NewFakeClock()
	ctrl := admission.New(limits, nil)
	return &pumpFixture{
		clock:  clock,
		broker: broadcast.NewBroker(ctrl, clock, 8, nil),
		ctrl:   ctrl,
		opts:   Options{HeartbeatInterval: 15 * time.Second, DrainTimeout: 500 * time.Millisecond, RetryHint: time.Second},
	}
}

func roomy() admission.Limits {
	return admission.Limits{Global: 10, SoftPerOrigin: 10, HardPerOrigin: 10}
}

func (fx *pumpFixture) run(t *testing.T, ctx context.Context, p *Pump, f Framer, initial ...domain.Event) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- p.Stream(ctx, f, initial...) }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not exit")
		return nil
	}
}

func TestPump_StreamsInitialThenBroadcast(t *testing.T) {
	fx := newPumpFixture(roomy())
	p := NewPump(fx.broker, fx.clock, fx.opts, nil)
	require.NoError(t, p.Admit("o"))
	assert.Equal(t, StateAdmitted, p.State())

	f := &recordingFramer{}
	ctx, cancel := context.WithCancel(context.Background())
	initial := domain.Event{Type: domain.EventStatusFull, Payload: "snap"}
	done := fx.run(t, ctx, p, f, initial)

	live := domain.Event{Type: domain.EventStatusDelta, Payload: "row"}
	require.Eventually(t, func() bool { return p.State() == StateStreaming }, time.Second, time.Millisecond)
	fx.broker.Broadcast(live)

	require.Eventually(t, func() bool {
		events, _ := f.snapshot()
		return len(events) == 2
	}, time.Second, time.Millisecond)

	events, _ := f.snapshot()
	assert.Equal(t, []domain.Event{initial, live}, events)
	assert.True(t, f.opened)

	cancel()
	assert.NoError(t, waitErr(t, done))
	assert.Equal(t, StateClosed, p.State())
	assert.Equal(t, 0, fx.ctrl.Total())
}

func TestPump_HeartbeatWhenIdle(t *testing.T) {
	fx := newPumpFixture(roomy())
	p := NewPump(fx.broker, fx.clock, fx.opts, nil)
	require.NoError(t, p.Admit("o"))

	f := &recordingFramer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := fx.run(t, ctx, p, f)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, fx.clock.BlockUntilContext(waitCtx, 1))
	fx.clock.Advance(15 * time.Second)

	require.Eventually(t, func() bool {
		_, hb := f.snapshot()
		return hb == 1
	}, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, waitErr(t, done))
}

func TestPump_NoHeartbeatBeforeInterval(t *testing.T) {
	fx := newPumpFixture(roomy())
	p := NewPump(fx.broker, fx.clock, fx.opts, nil)
	require.NoError(t, p.Admit("o"))

	f := &recordingFramer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := fx.run(t, ctx, p, f)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, fx.clock.BlockUntilContext(waitCtx, 1))
	fx.clock.Advance(500 * time.Millisecond)
	require.NoError(t, fx.clock.BlockUntilContext(waitCtx, 1))

	_, hb := f.snapshot()
	assert.Equal(t, 0, hb)

	cancel()
	assert.NoError(t, waitErr(t, done))
}

func TestPump_WriteFailureCloses(t *testing.T) {
	fx := newPumpFixture(roomy())
	reg := prometheus.NewRegistry()
	m := metrics.NewStreamMetrics(reg)
	p := NewPump(fx.broker, fx.clock, fx.opts, m)
	require.NoError(t, p.Admit("o"))

	f := &recordingFramer{failWrites: true}
	done := fx.run(t, context.Background(), p, f, domain.Event{Type: domain.EventHistory, Payload: "x"})

	err := waitErr(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, StateClosed, p.State())
	assert.Equal(t, 0, fx.ctrl.Total())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WriteFailures))
}

func TestPump_BrokerShutdown(t *testing.T) {
	fx := newPumpFixture(roomy())
	p := NewPump(fx.broker, fx.clock, fx.opts, nil)
	require.NoError(t, p.Admit("o"))

	done := fx.run(t, context.Background(), p, &recordingFramer{})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, fx.clock.BlockUntilContext(waitCtx, 1))
	fx.broker.Close()
	fx.clock.Advance(fx.opts.DrainTimeout)

	assert.NoError(t, waitErr(t, done))
	assert.Equal(t, 0, fx.broker.Count())
}

func TestPump_UnregisteredMailboxEndsStream(t *testing.T) {
	fx := newPumpFixture(roomy())
	p := NewPump(fx.broker, fx.clock, fx.opts, nil)
	require.NoError(t, p.Admit("o"))

	done := fx.run(t, context.Background(), p, &recordingFramer{})

	require.Eventually(t, func() bool { return p.State() == StateStreaming }, time.Second, time.Millisecond)
	fx.broker.Unregister(p.Client())

	assert.NoError(t, waitErr(t, done))
	assert.Equal(t, 0, fx.ctrl.Total())
}

func TestPump_Rejected(t *testing.T) {
	fx := newPumpFixture(admission.Limits{Global: 1, SoftPerOrigin: 1, HardPerOrigin: 1})

	first := NewPump(fx.broker, fx.clock, fx.opts, nil)
	require.NoError(t, first.Admit("o"))

	second := NewPump(fx.broker, fx.clock, fx.opts, nil)
	err := second.Admit("o")
	require.ErrorIs(t, err, domain.ErrRejected)
	assert.Equal(t, StateClosed, second.State())

	assert.ErrorIs(t, second.Stream(context.Background(), &recordingFramer{}), ErrNotAdmitted)

	second.Close()
	assert.Equal(t, 1, fx.ctrl.Total())

	first.Close()
	first.Close()
	assert.Equal(t, 0, fx.ctrl.Total())
}

func TestPump_AdmitTwice(t *testing.T) {
	fx := newPumpFixture(roomy())
	p := NewPump(fx.broker, fx.clock, fx.opts, nil)
	require.NoError(t, p.Admit("o"))
	assert.Error(t, p.Admit("o"))
	p.Close()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "closed", StateClosed.String())
}
