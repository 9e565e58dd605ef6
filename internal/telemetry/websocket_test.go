package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/testutil"
	"github.com/banshee-data/slr.track/internal/timeutil"
)

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func quietLogs(t *testing.T) {
	testutil.QuietLogs(t)
}

func TestWSSource(t *testing.T) {
	quietLogs(t)

	subscribed := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		_, data, err := c.Read(r.Context())
		if err != nil {
			return
		}
		subscribed <- string(data)

		for _, f := range []string{
			`{"status":"Subscribed to 7840"}`,
			`{"event":"tracking_start","objId":"lageos1"}`,
			`{"event":"position","objId":"lageos1","value":{"x":1,"y":2,"z":3}}`,
			`{"event":"position","objId":"lageos1","value":{"x":1e999,"y":2,"z":3}}`,
			`{"event":"tracking_stop"}`,
		} {
			if err := c.Write(r.Context(), websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		c.Close(websocket.StatusNormalClosure, "bye")
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	metrics, err := monitoring.NewTrackCollector(reg)
	require.NoError(t, err)

	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	src := NewWSSource("ws"+strings.TrimPrefix(srv.URL, "http"), "7840")
	src.Clock = clock
	src.Metrics = metrics

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Message, 16)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	select {
	case sub := <-subscribed:
		assert.JSONEq(t, `{"action":"subscribe","station":"7840"}`, sub)
	case <-time.After(5 * time.Second):
		t.Fatal("no subscribe message")
	}

	m := recv(t, out)
	assert.Equal(t, EventTrackingStart, m.Event)
	assert.Equal(t, "7840", m.StationID)
	assert.Equal(t, "lageos1", m.ObjectID)

	m = recv(t, out)
	assert.Equal(t, KindPosition, m.Kind)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, m.Position)
	assert.Equal(t, clock.Now(), m.Received)

	m = recv(t, out)
	assert.Equal(t, EventTrackingStop, m.Event)

	m = recv(t, out)
	assert.Equal(t, EventDisconnected, m.Event)
	assert.Equal(t, "7840", m.StationID)

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.SamplesRejected.WithLabelValues(monitoring.RejectUnknown)))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.SamplesRejected.WithLabelValues(monitoring.RejectNonFinite)))

	// The source is now waiting to redial.
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestWSSource_RedialsAfterDialFailure(t *testing.T) {
	quietLogs(t)

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := NewWSSource("ws://127.0.0.1:1/ws", "7840")
	src.Clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Message, 1)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Len(t, out, 0, "no disconnected event when never connected")

	clock.Advance(DefaultReconnectDelay)
	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, "ws:ws://127.0.0.1:1/ws", src.Name())
}
