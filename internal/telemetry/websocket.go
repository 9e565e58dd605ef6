package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/timeutil"
)

// DefaultReconnectDelay matches the station dashboard's retry interval.
const DefaultReconnectDelay = 3 * time.Second

// WSSource reads station frames from the gateway WebSocket. After dialling it
// subscribes to StationID; when the socket drops it emits a disconnected
// event and redials after ReconnectDelay.
type WSSource struct {
	URL            string
	StationID      string
	ReconnectDelay time.Duration
	DialOptions    *websocket.DialOptions
	Clock          timeutil.Clock
	Metrics        *monitoring.TrackCollector

	logf func(format string, v ...interface{})
}

// NewWSSource returns a source for station at url.
func NewWSSource(url, station string) *WSSource {
	return &WSSource{
		URL:            url,
		StationID:      station,
		ReconnectDelay: DefaultReconnectDelay,
		Clock:          timeutil.RealClock{},
		logf:           monitoring.Tagged("WS"),
	}
}

func (s *WSSource) Name() string { return "ws:" + s.URL }

// Run dials, reads and redials until ctx is cancelled.
func (s *WSSource) Run(ctx context.Context, out chan<- Message) error {
	if s.logf == nil {
		s.logf = monitoring.Tagged("WS")
	}
	if s.Clock == nil {
		s.Clock = timeutil.RealClock{}
	}
	for {
		connected, err := s.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			s.logf("station %s connection lost: %v", s.StationID, err)
			if !deliver(ctx, out, EventMessage(s.StationID, EventDisconnected, "", s.Clock.Now()), s.Metrics) {
				return ctx.Err()
			}
		} else {
			s.logf("dial %s failed: %v", s.URL, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Clock.After(s.ReconnectDelay):
		}
	}
}

// session runs one connection. connected reports whether the dial and
// subscribe succeeded.
func (s *WSSource) session(ctx context.Context, out chan<- Message) (connected bool, err error) {
	conn, _, err := websocket.Dial(ctx, s.URL, s.DialOptions)
	if err != nil {
		return false, err
	}
	defer conn.CloseNow()

	sub, err := BuildSubscribe(ActionSubscribe, s.StationID)
	if err != nil {
		return false, err
	}
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	s.logf("subscribed to station %s at %s", s.StationID, s.URL)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		if typ != websocket.MessageText {
			continue
		}
		m, err := ParseFrame(data)
		if err != nil {
			s.Metrics.SampleRejected(rejectReason(err))
			s.logf("dropping frame: %v", err)
			continue
		}
		m.StationID = s.StationID
		m.Received = s.Clock.Now()
		if !deliver(ctx, out, m, s.Metrics) && ctx.Err() != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return true, ctx.Err()
		}
	}
}
