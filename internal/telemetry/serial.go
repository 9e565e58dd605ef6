package telemetry

import (
	"context"
	"fmt"

	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/serialmux"
	"github.com/banshee-data/slr.track/internal/timeutil"
	"github.com/banshee-data/slr.track/internal/units"
)

// SerialSource reads "<topic> <payload>" lines from the mount controller via
// a serial mux and routes them through the station topic patterns:
//
//	slr/<station>/tracking/<obj>/pos {"az":..,"el":..,"dist":..}
//	slr/<station>/status {"event":"tracking_start","objId":".."}
//
// Lines for other stations are ignored.
type SerialSource struct {
	Mux       serialmux.SerialMuxInterface
	StationID string
	AngleUnit string
	Clock     timeutil.Clock
	Metrics   *monitoring.TrackCollector

	logf func(format string, v ...interface{})
}

// NewSerialSource returns a source reading station lines from mux.
func NewSerialSource(mux serialmux.SerialMuxInterface, station string) *SerialSource {
	return &SerialSource{
		Mux:       mux,
		StationID: station,
		AngleUnit: units.Degrees,
		Clock:     timeutil.RealClock{},
		logf:      monitoring.Tagged("Serial"),
	}
}

func (s *SerialSource) Name() string { return "serial:" + s.StationID }

// Run subscribes to the mux and forwards parsed lines. The mux's Monitor
// loop must be running separately. A closed subscription ends Run with a
// disconnected event.
func (s *SerialSource) Run(ctx context.Context, out chan<- Message) error {
	if s.logf == nil {
		s.logf = monitoring.Tagged("Serial")
	}
	if s.Clock == nil {
		s.Clock = timeutil.RealClock{}
	}
	id, lines := s.Mux.Subscribe()
	defer s.Mux.Unsubscribe(id)

	d := s.dispatcher(ctx, out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				deliver(ctx, out, EventMessage(s.StationID, EventDisconnected, "", s.Clock.Now()), s.Metrics)
				return fmt.Errorf("serial line stream closed")
			}
			topic, payload, ok := serialmux.SplitLine(line)
			if !ok {
				s.Metrics.SampleRejected(monitoring.RejectMalformed)
				continue
			}
			d.Dispatch(topic, []byte(payload))
		}
	}
}

func (s *SerialSource) dispatcher(ctx context.Context, out chan<- Message) *Dispatcher {
	d := NewDispatcher()
	d.Handle(TopicPosition, func(params map[string]string, payload []byte) {
		if params["stationId"] != s.StationID {
			return
		}
		p, err := ParseSphericalPayload(payload, s.AngleUnit)
		if err != nil {
			s.Metrics.SampleRejected(rejectReason(err))
			s.logf("invalid position payload for %s/%s: %v", s.StationID, params["objId"], err)
			return
		}
		deliver(ctx, out, PositionMessage(s.StationID, params["objId"], p, s.Clock.Now()), s.Metrics)
	})
	d.Handle(TopicStatus, func(params map[string]string, payload []byte) {
		if params["stationId"] != s.StationID {
			return
		}
		m, err := ParseStatusPayload(payload)
		if err != nil {
			s.Metrics.SampleRejected(rejectReason(err))
			s.logf("invalid status payload for %s: %v", s.StationID, err)
			return
		}
		m.StationID = s.StationID
		m.Received = s.Clock.Now()
		deliver(ctx, out, m, s.Metrics)
	})
	return d
}
