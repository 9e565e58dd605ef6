package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/slr.track/internal/db"
	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/observation"
	"github.com/banshee-data/slr.track/internal/telemetry"
	"github.com/banshee-data/slr.track/internal/testutil"
	"github.com/banshee-data/slr.track/internal/timeutil"
	"github.com/banshee-data/slr.track/internal/trail"
	"github.com/banshee-data/slr.track/internal/visualiser"
)

const station = "7840"

type framesSink struct {
	mu     sync.Mutex
	frames []*visualiser.TrailFrame
}

func (f *framesSink) Publish(frame *visualiser.TrailFrame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return true
}

func (f *framesSink) all() []*visualiser.TrailFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*visualiser.TrailFrame(nil), f.frames...)
}

func (f *framesSink) last(t *testing.T) *visualiser.TrailFrame {
	t.Helper()
	all := f.all()
	require.NotEmpty(t, all, "no frame published")
	return all[len(all)-1]
}

type positionLog struct {
	mu      sync.Mutex
	recs    []db.PositionRecord
	batches int
	failing error
}

func (p *positionLog) RecordPositions(recs []db.PositionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing != nil {
		return p.failing
	}
	p.recs = append(p.recs, recs...)
	p.batches++
	return nil
}

type fixture struct {
	sess     *Session
	sink     *framesSink
	reg      *observation.Registry
	log      *positionLog
	metrics  *monitoring.TrackCollector
	clock    *timeutil.MockClock
	received time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testutil.QuietLogs(t)

	metrics, err := monitoring.NewTrackCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &fixture{
		sink:     &framesSink{},
		reg:      observation.NewRegistry(trail.StaticOptions{MinSpeed: 0, MaxSpeed: 2, Opacity: 0.7}, nil),
		log:      &positionLog{},
		metrics:  metrics,
		clock:    timeutil.NewMockClock(time.Unix(1700000000, 0)),
		received: time.Unix(1700000000, 0),
	}
	tc := trail.DefaultConfig()
	tc.MaxSegmentJump = 50
	tc.SmoothSteps = 4
	f.sess, err = New(Config{
		StationID:   station,
		Trail:       tc,
		FrameRateHz: 10,
		Registry:    f.reg,
		Positions:   f.log,
		Publisher:   f.sink,
		Metrics:     metrics,
		Clock:       f.clock,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) position(obj string, x float64) telemetry.Message {
	return telemetry.PositionMessage(station, obj, r3.Vec{X: x}, f.received)
}

func (f *fixture) event(e telemetry.Event, obj string) telemetry.Message {
	return telemetry.EventMessage(station, e, obj, f.received)
}

// feed handles msgs and runs one tick.
func (f *fixture) feed(msgs ...telemetry.Message) {
	for _, m := range msgs {
		f.sess.handle(m)
	}
	f.sess.tick(f.clock.Now())
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{FrameRateHz: 10, Trail: trail.DefaultConfig()})
	assert.Error(t, err)

	_, err = New(Config{StationID: station, Trail: trail.DefaultConfig()})
	assert.Error(t, err)

	bad := trail.DefaultConfig()
	bad.SmoothSteps = 0
	_, err = New(Config{StationID: station, FrameRateHz: 10, Trail: bad})
	assert.Error(t, err)

	s, err := New(Config{StationID: station, FrameRateHz: 10, Trail: trail.DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, s.Status().State)
}

func TestSession_PublishesTrail(t *testing.T) {
	f := newFixture(t)
	f.feed(f.position("lageos1", 0), f.position("lageos1", 1), f.position("lageos1", 2))

	frame := f.sink.last(t)
	assert.Equal(t, station, frame.StationID)
	assert.Equal(t, "lageos1", frame.ObjectID)
	assert.Greater(t, frame.ValidCount, 0)
	assert.Len(t, frame.Positions, frame.ValidCount*3)
	assert.InDelta(t, 0.85, frame.Opacity, 1e-6)

	st := f.sess.Status()
	assert.Equal(t, StateTracking, st.State)
	assert.Equal(t, "lageos1", st.ObjectID)
	assert.Equal(t, 3, st.ControlPoints)
	assert.Len(t, f.sess.SpeedProfile(), 3)
	assert.Equal(t, 3.0, promtest.ToFloat64(f.metrics.SamplesIngested.WithLabelValues(station)))

	// Nothing moved, so nothing is published.
	n := len(f.sink.all())
	f.feed()
	f.feed(f.position("lageos1", 2))
	assert.Len(t, f.sink.all(), n)
}

func TestSession_IgnoresOtherStations(t *testing.T) {
	f := newFixture(t)
	f.feed(telemetry.PositionMessage("7841", "etalon1", r3.Vec{X: 1}, f.received))
	assert.Empty(t, f.sink.all())
	assert.Equal(t, StateDisconnected, f.sess.Status().State)
}

func TestSession_RecordingFlushedOnObjectSwitch(t *testing.T) {
	f := newFixture(t)
	f.feed(
		f.event(telemetry.EventOnline, ""),
		f.event(telemetry.EventTrackingStart, "lageos1"),
		f.position("lageos1", 0), f.position("lageos1", 1), f.position("lageos1", 2),
	)
	assert.Equal(t, 3, f.sess.Status().Recording)
	assert.Zero(t, f.reg.Len())

	f.feed(f.event(telemetry.EventTrackingStart, "lageos2"))

	sets := f.reg.Sets()
	require.Len(t, sets, 1)
	assert.Equal(t, "lageos1", sets[0].Label)
	assert.Len(t, sets[0].Points, 3)
	assert.Equal(t, observation.Palette[0], sets[0].Color)

	frame := f.sink.last(t)
	assert.True(t, frame.Reset)
	assert.Zero(t, frame.ValidCount)
	assert.Equal(t, StateOnline, f.sess.Status().State)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.TrackingResets.WithLabelValues(station, "tracking_start")))

	// Positions for the new object go to the new recording.
	f.feed(f.position("lageos2", 10), f.position("lageos2", 11))
	assert.Equal(t, 2, f.sess.Status().Recording)
	assert.False(t, f.sink.last(t).Reset)
}

func TestSession_SameObjectKeepsRecording(t *testing.T) {
	f := newFixture(t)
	f.feed(f.event(telemetry.EventTrackingStart, "lageos1"), f.position("lageos1", 0))
	f.feed(f.event(telemetry.EventTrackingStart, "lageos1"), f.position("lageos1", 1))
	assert.Equal(t, 2, f.sess.Status().Recording)
	assert.Equal(t, 2, f.sess.Status().ControlPoints)
	assert.Zero(t, f.reg.Len())
}

func TestSession_LossOfTracking(t *testing.T) {
	tests := []struct {
		event telemetry.Event
		state State
	}{
		{telemetry.EventTrackingStop, StateOnline},
		{telemetry.EventOffline, StateOffline},
		{telemetry.EventDisconnected, StateDisconnected},
	}
	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			f := newFixture(t)
			f.feed(
				f.event(telemetry.EventTrackingStart, "ajisai"),
				f.position("ajisai", 0), f.position("ajisai", 1),
			)
			f.feed(f.event(tt.event, ""))

			st := f.sess.Status()
			assert.Equal(t, tt.state, st.State)
			assert.Zero(t, st.ControlPoints)
			assert.Zero(t, st.Recording)
			assert.Empty(t, st.ObjectID)
			require.Equal(t, 1, f.reg.Len())
			assert.Equal(t, "ajisai", f.reg.Sets()[0].Label)
			assert.True(t, f.sink.last(t).Reset)
			assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.TrackingResets.WithLabelValues(station, string(tt.event))))
		})
	}
}

func TestSession_StateMachine(t *testing.T) {
	f := newFixture(t)
	steps := []struct {
		msg  telemetry.Message
		want State
	}{
		{f.event(telemetry.EventOnline, ""), StateOnline},
		{f.event(telemetry.EventLocateStart, ""), StateLocating},
		{f.event(telemetry.EventLocateStop, ""), StateOnline},
		{f.event(telemetry.EventTrackingStart, "lares"), StateOnline},
		{f.position("lares", 1), StateTracking},
		{f.event(telemetry.EventTrackingStop, "lares"), StateOnline},
		{f.event(telemetry.EventOffline, ""), StateOffline},
		{f.event(telemetry.EventDisconnected, ""), StateDisconnected},
	}
	for _, step := range steps {
		f.feed(step.msg)
		assert.Equal(t, step.want, f.sess.Status().State, "after %s %s", step.msg.Kind, step.msg.Event)
	}
}

func TestSession_EmptyRecordingIsNotSaved(t *testing.T) {
	f := newFixture(t)
	f.feed(f.event(telemetry.EventTrackingStart, "lageos1"))
	f.feed(f.event(telemetry.EventTrackingStop, "lageos1"))
	assert.Zero(t, f.reg.Len())
}

func TestSession_PositionWithoutTrackingStartIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	f.feed(f.position("lageos1", 0), f.position("lageos1", 1))
	f.feed(f.event(telemetry.EventTrackingStop, ""))
	assert.Zero(t, f.reg.Len())
	assert.True(t, f.sink.last(t).Reset)
}

func TestSession_ObjectSwitchWithoutEventResetsTrail(t *testing.T) {
	f := newFixture(t)
	f.feed(f.position("lageos1", 0), f.position("lageos1", 1), f.position("lageos1", 2))
	f.feed(f.position("lageos2", 3))

	st := f.sess.Status()
	assert.Equal(t, "lageos2", st.ObjectID)
	assert.Equal(t, 1, st.ControlPoints)
	assert.True(t, f.sink.last(t).Reset)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.TrackingResets.WithLabelValues(station, "object_switch")))
}

func TestSession_Teleport(t *testing.T) {
	f := newFixture(t)
	f.feed(f.position("lageos1", 0), f.position("lageos1", 1), f.position("lageos1", 2))
	f.feed(f.position("lageos1", 500))

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.Teleports.WithLabelValues(station)))
	assert.Equal(t, 1, f.sess.Status().ControlPoints)
	frame := f.sink.last(t)
	assert.True(t, frame.Reset)
	assert.Zero(t, frame.ValidCount)
}

func TestSession_RecordsPositions(t *testing.T) {
	f := newFixture(t)
	f.feed(f.position("lageos1", 0), f.position("lageos1", 1))

	f.log.mu.Lock()
	defer f.log.mu.Unlock()
	require.Len(t, f.log.recs, 2)
	assert.Equal(t, db.PositionRecord{
		StationID: station, ObjectID: "lageos1", Position: r3.Vec{X: 1}, ReceivedAt: f.received,
	}, f.log.recs[1])
	assert.Equal(t, 1, f.log.batches)
}

func TestSession_PositionWriteFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	logs := testutil.CaptureLogs(t)
	f.log.failing = errors.New("disk full")
	f.feed(f.position("lageos1", 0))
	assert.Empty(t, f.sess.pending, "failed batch is dropped, not retried")
	assert.Contains(t, logs.Lines(), "[Session] station 7840: failed to record 1 positions: disk full")
}

func TestSession_Run(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sess.Run(ctx) }()

	require.Eventually(t, func() bool { return f.clock.Tickers() == 1 }, 5*time.Second, time.Millisecond)
	assert.ErrorIs(t, f.sess.Run(ctx), ErrSessionRunning)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.ActiveSessions))

	in := f.sess.Inbox()
	in <- f.event(telemetry.EventTrackingStart, "lageos1")
	in <- f.position("lageos1", 0)
	in <- f.position("lageos1", 1)
	in <- f.position("lageos1", 2)

	require.Eventually(t, func() bool {
		f.clock.Advance(100 * time.Millisecond)
		return len(f.sink.all()) > 0 && f.sess.Status().Recording == 3
	}, 5*time.Second, time.Millisecond)

	in <- f.position("lageos1", 3)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	// The in-flight recording includes the position still queued at shutdown.
	sets := f.reg.Sets()
	require.Len(t, sets, 1)
	assert.Len(t, sets[0].Points, 4)
	assert.Zero(t, promtest.ToFloat64(f.metrics.ActiveSessions))

	f.log.mu.Lock()
	assert.Len(t, f.log.recs, 4)
	f.log.mu.Unlock()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "locating", StateLocating.String())
	assert.Equal(t, "unknown", State(42).String())
	b, err := StateTracking.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "tracking", string(b))
}
