package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/serialmux"
	"github.com/banshee-data/slr.track/internal/timeutil"
)

func vecOf(x, y, z float64) r3.Vec { return r3.Vec{X: x, Y: y, Z: z} }

// subscribeSignal reports when the source has subscribed so the test only
// feeds lines once somebody is listening.
type subscribeSignal struct {
	serialmux.SerialMuxInterface
	subscribed chan struct{}
}

func (m subscribeSignal) Subscribe() (string, chan string) {
	id, ch := m.SerialMuxInterface.Subscribe()
	close(m.subscribed)
	return id, ch
}

func TestSerialSource(t *testing.T) {
	quietLogs(t)

	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port)
	sig := subscribeSignal{SerialMuxInterface: mux, subscribed: make(chan struct{})}

	reg := prometheus.NewRegistry()
	metrics, err := monitoring.NewTrackCollector(reg)
	require.NoError(t, err)

	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	src := NewSerialSource(sig, "7840")
	src.Clock = clock
	src.Metrics = metrics

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	out := make(chan Message, 16)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	select {
	case <-sig.subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("source never subscribed")
	}

	port.AddLines(
		`slr/7840/status {"event":"tracking_start","objId":"lageos1"}`,
		`slr/7840/tracking/lageos1/pos {"az":0,"el":0,"dist":100}`,
		`slr/7841/tracking/ajisai/pos {"az":0,"el":0,"dist":100}`,
		`slr/7840/tracking/lageos1/pos {"az":0,"el":0}`,
		`garbage`,
		`slr/7840/env {"temp":12}`,
		`slr/7840/tracking/lageos1/pos {"az":0,"el":90,"dist":50}`,
		`slr/7840/status {"event":"tracking_stop"}`,
	)

	m := recv(t, out)
	assert.Equal(t, KindEvent, m.Kind)
	assert.Equal(t, EventTrackingStart, m.Event)
	assert.Equal(t, "lageos1", m.ObjectID)
	assert.Equal(t, "7840", m.StationID)

	m = recv(t, out)
	assert.Equal(t, KindPosition, m.Kind)
	assert.Equal(t, "lageos1", m.ObjectID)
	assert.InDelta(t, 0, m.Position.X, 1e-9)
	assert.InDelta(t, 100, m.Position.Z, 1e-9)
	assert.Equal(t, clock.Now(), m.Received)

	m = recv(t, out)
	assert.Equal(t, KindPosition, m.Kind)
	assert.InDelta(t, 50, m.Position.X, 1e-9)
	assert.InDelta(t, 0, m.Position.Z, 1e-9)

	m = recv(t, out)
	assert.Equal(t, EventTrackingStop, m.Event)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SamplesRejected.WithLabelValues(monitoring.RejectUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SamplesRejected.WithLabelValues(monitoring.RejectMalformed)))

	require.NoError(t, mux.Close())
	m = recv(t, out)
	assert.Equal(t, EventDisconnected, m.Event)
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the mux closed")
	}
}

func TestSerialSource_Cancel(t *testing.T) {
	src := NewSerialSource(serialmux.NewDisabledSerialMux("test"), "7840")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, src.Run(ctx, make(chan Message)), context.Canceled)
	assert.Equal(t, "serial:7840", src.Name())
}

func TestDeliver(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := monitoring.NewTrackCollector(reg)
	require.NoError(t, err)

	ctx := context.Background()
	out := make(chan Message, 1)
	now := time.Unix(0, 0)

	assert.True(t, deliver(ctx, out, PositionMessage("s", "o", vecOf(1, 2, 3), now), metrics))
	assert.False(t, deliver(ctx, out, PositionMessage("s", "o", vecOf(4, 5, 6), now), metrics))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SamplesRejected.WithLabelValues(monitoring.RejectQueueFull)))

	// Events wait for room rather than being dropped.
	accepted := make(chan bool, 1)
	go func() {
		accepted <- deliver(ctx, out, EventMessage("s", EventTrackingStop, "", now), metrics)
	}()
	select {
	case <-accepted:
		t.Fatal("event delivered into a full queue")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, KindPosition, (<-out).Kind)
	assert.True(t, <-accepted)
	assert.Equal(t, EventTrackingStop, (<-out).Event)

	// A blocked event gives up when the context ends.
	out <- PositionMessage("s", "o", vecOf(0, 0, 0), now)
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, deliver(cctx, out, EventMessage("s", EventOffline, "", now), metrics))
}

func TestRejectReason(t *testing.T) {
	_, err := ParseFrame([]byte(`{`))
	assert.Equal(t, monitoring.RejectMalformed, rejectReason(err))
	_, err = ParseFrame([]byte(`{"event":"nope"}`))
	assert.Equal(t, monitoring.RejectUnknown, rejectReason(err))
	_, err = ParseFrame([]byte(`{"event":"position","objId":"a","value":{"x":1e999,"y":0,"z":0}}`))
	assert.Equal(t, monitoring.RejectNonFinite, rejectReason(err))
}
