package telemetry

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/slr.track/internal/timeutil"
)

// SyntheticSource generates a station tracking a target on a circular orbit.
// It is used for demos and for exercising the render path without a station.
type SyntheticSource struct {
	StationID string
	Clock     timeutil.Clock

	// Rate is the number of position samples per second.
	Rate float64
	// Radius and AngularStep describe the orbit: AngularStep radians per
	// sample at Radius world units.
	Radius      float64
	AngularStep float64
	// Wobble is the amplitude of the vertical oscillation.
	Wobble float64

	// SwitchEvery ends the pass and starts tracking a new object after this
	// many samples, with tracking_stop/tracking_start events. 0 disables.
	SwitchEvery int
	// JumpEvery moves the target half an orbit without any event after this
	// many samples, a raw discontinuity. 0 disables.
	JumpEvery int
}

// NewSyntheticSource returns a generator with demo defaults.
func NewSyntheticSource(station string) *SyntheticSource {
	return &SyntheticSource{
		StationID:   station,
		Clock:       timeutil.RealClock{},
		Rate:        20,
		Radius:      40,
		AngularStep: 0.01,
		Wobble:      5,
		SwitchEvery: 2000,
	}
}

func (s *SyntheticSource) Name() string { return "synthetic:" + s.StationID }

// ObjectID names the n-th synthetic pass.
func (s *SyntheticSource) ObjectID(n int) string { return fmt.Sprintf("synthetic-%d", n) }

// PositionAt returns the target position after sample steps at phase.
func (s *SyntheticSource) PositionAt(theta float64) r3.Vec {
	return r3.Vec{
		X: s.Radius * math.Cos(theta),
		Y: s.Wobble * math.Sin(2*theta),
		Z: s.Radius * math.Sin(theta),
	}
}

// Run emits online and tracking_start, then one position per tick.
func (s *SyntheticSource) Run(ctx context.Context, out chan<- Message) error {
	if s.Clock == nil {
		s.Clock = timeutil.RealClock{}
	}
	if !(s.Rate > 0) {
		return fmt.Errorf("synthetic source rate must be positive, got %f", s.Rate)
	}

	pass := 1
	send := func(m Message) bool { return deliver(ctx, out, m, nil) }
	now := s.Clock.Now()
	if !send(EventMessage(s.StationID, EventOnline, "", now)) ||
		!send(EventMessage(s.StationID, EventTrackingStart, s.ObjectID(pass), now)) {
		return ctx.Err()
	}

	ticker := s.Clock.NewTicker(time.Duration(float64(time.Second) / s.Rate))
	defer ticker.Stop()

	theta := 0.0
	sinceSwitch := 0
	sinceJump := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			if s.SwitchEvery > 0 && sinceSwitch >= s.SwitchEvery {
				sinceSwitch = 0
				if !send(EventMessage(s.StationID, EventTrackingStop, s.ObjectID(pass), now)) {
					return ctx.Err()
				}
				pass++
				theta += math.Pi / 2
				if !send(EventMessage(s.StationID, EventTrackingStart, s.ObjectID(pass), now)) {
					return ctx.Err()
				}
			}
			if s.JumpEvery > 0 && sinceJump >= s.JumpEvery {
				sinceJump = 0
				theta += math.Pi
			}

			send(PositionMessage(s.StationID, s.ObjectID(pass), s.PositionAt(theta), now))
			theta += s.AngularStep
			sinceSwitch++
			sinceJump++
		}
	}
}
