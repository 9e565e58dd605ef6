package telemetry

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/slr.track/internal/timeutil"
)

func TestSyntheticSource(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	src := NewSyntheticSource("7840")
	src.Clock = clock
	src.SwitchEvery = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Message, 16)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	m := recv(t, out)
	assert.Equal(t, EventOnline, m.Event)
	m = recv(t, out)
	assert.Equal(t, EventTrackingStart, m.Event)
	assert.Equal(t, "synthetic-1", m.ObjectID)

	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, 5*time.Second, time.Millisecond)
	step := 50 * time.Millisecond

	clock.Advance(step)
	m = recv(t, out)
	assert.Equal(t, KindPosition, m.Kind)
	assert.Equal(t, "synthetic-1", m.ObjectID)
	assert.Equal(t, "7840", m.StationID)
	assert.InDelta(t, 40, m.Position.X, 1e-9)
	assert.InDelta(t, 0, m.Position.Z, 1e-9)

	clock.Advance(step)
	m = recv(t, out)
	assert.Equal(t, src.PositionAt(0.01), m.Position)

	clock.Advance(step)
	m = recv(t, out)
	assert.Equal(t, EventTrackingStop, m.Event)
	assert.Equal(t, "synthetic-1", m.ObjectID)
	m = recv(t, out)
	assert.Equal(t, EventTrackingStart, m.Event)
	assert.Equal(t, "synthetic-2", m.ObjectID)
	m = recv(t, out)
	assert.Equal(t, "synthetic-2", m.ObjectID)
	assert.InDelta(t, 0, r3.Sub(src.PositionAt(0.02+math.Pi/2), m.Position).X, 1e-9)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSyntheticSource_Jump(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := NewSyntheticSource("7840")
	src.Clock = clock
	src.SwitchEvery = 0
	src.JumpEvery = 1
	src.AngularStep = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Message, 16)
	go src.Run(ctx, out)

	recv(t, out)
	recv(t, out)
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, 5*time.Second, time.Millisecond)

	clock.Advance(50 * time.Millisecond)
	first := recv(t, out)
	clock.Advance(50 * time.Millisecond)
	second := recv(t, out)

	assert.Equal(t, KindPosition, second.Kind, "jumps carry no event")
	assert.InDelta(t, 80, r3.Norm(r3.Sub(first.Position, second.Position)), 1e-9)
}

func TestSyntheticSource_BadRate(t *testing.T) {
	src := NewSyntheticSource("7840")
	src.Rate = 0
	assert.Error(t, src.Run(context.Background(), make(chan Message, 4)))
}
