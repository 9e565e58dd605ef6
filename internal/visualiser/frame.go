// Package visualiser streams rendered trails to remote render consumers over
// gRPC. The session hands each updated render buffer to a Publisher as a
// TrailFrame; connected clients receive frames on a server stream and feed
// them to a trail.Consumer.
package visualiser

import (
	"time"

	"github.com/banshee-data/slr.track/internal/observation"
	"github.com/banshee-data/slr.track/internal/trail"
)

// TrailFrame is a snapshot of one trail's live vertex prefix.
type TrailFrame struct {
	FrameID        uint64
	TimestampNanos int64
	StationID      string
	ObjectID       string
	// SetID is set for observation set frames and empty for the live trail.
	SetID      string
	Opacity    float32
	ValidCount int
	Positions  []float32
	Colors     []float32
	// Reset tells the consumer the trail was cleared before this frame.
	Reset bool
}

// NewTrailFrame copies the valid prefix of d. Only ValidCount vertices are
// copied, never the stale tail of the buffer.
func NewTrailFrame(d trail.Drawable, opacity float64, at time.Time) *TrailFrame {
	n := d.ValidCount()
	return &TrailFrame{
		TimestampNanos: at.UnixNano(),
		Opacity:        float32(opacity),
		ValidCount:     n,
		Positions:      append([]float32(nil), d.Positions()[:n*3]...),
		Colors:         append([]float32(nil), d.Colors()[:n*3]...),
	}
}

// ObservationFrame wraps a copied observation set drawing.
func ObservationFrame(d observation.Drawing, at time.Time) *TrailFrame {
	return &TrailFrame{
		TimestampNanos: at.UnixNano(),
		SetID:          d.ID,
		Opacity:        float32(d.Opacity),
		ValidCount:     d.ValidCount,
		Positions:      d.Positions,
		Colors:         d.Colors,
	}
}

// Render hands the frame's vertices to c. Frames decoded from the wire are
// clamped so a short payload can never be read past its end.
func (f *TrailFrame) Render(c trail.Consumer) {
	n := f.ValidCount
	if m := len(f.Positions) / 3; m < n {
		n = m
	}
	if m := len(f.Colors) / 3; m < n {
		n = m
	}
	if n < 0 {
		n = 0
	}
	c.Consume(f.Positions[:n*3], f.Colors[:n*3], n)
}

// IsObservation reports whether the frame carries a static observation set.
func (f *TrailFrame) IsObservation() bool { return f.SetID != "" }

// StreamRequest selects what a client receives.
type StreamRequest struct {
	// StationID filters live frames; empty receives every station.
	StationID string
	// IncludeObservations sends the visible observation sets once when the
	// stream opens.
	IncludeObservations bool
}
