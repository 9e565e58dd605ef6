package telemetry

import (
	"context"
	"errors"

	"github.com/banshee-data/slr.track/internal/monitoring"
)

// Source produces Messages from one station feed until ctx is cancelled.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// Run delivers messages on out and returns when ctx is done or the feed
	// ends for good.
	Run(ctx context.Context, out chan<- Message) error
}

// deliver hands m to out. Positions are dropped when the queue is full so a
// stalled consumer never backs up the transport; events block until
// accepted because losing one would leave a stale trail on screen.
func deliver(ctx context.Context, out chan<- Message, m Message, metrics *monitoring.TrackCollector) bool {
	if m.Kind == KindPosition {
		select {
		case out <- m:
			return true
		case <-ctx.Done():
			return false
		default:
			metrics.SampleRejected(monitoring.RejectQueueFull)
			return false
		}
	}
	select {
	case out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

// rejectReason maps a parse error onto a metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNonFinite):
		return monitoring.RejectNonFinite
	case errors.Is(err, ErrUnknownFrame):
		return monitoring.RejectUnknown
	default:
		return monitoring.RejectMalformed
	}
}
