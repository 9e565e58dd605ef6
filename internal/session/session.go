// Package session owns the live trail of one station. A Session is the only
// goroutine that touches its trail: sources deliver telemetry messages to
// its inbox, and at every frame tick it drains the inbox, pushes positions,
// regenerates the render buffer and publishes a frame.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/slr.track/internal/db"
	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/observation"
	"github.com/banshee-data/slr.track/internal/telemetry"
	"github.com/banshee-data/slr.track/internal/timeutil"
	"github.com/banshee-data/slr.track/internal/trail"
	"github.com/banshee-data/slr.track/internal/visualiser"
)

const (
	// positionBatchSize flushes pending position records early.
	positionBatchSize = 256
	// positionFlushInterval bounds how long a record waits for a batch.
	positionFlushInterval = time.Second
)

// ErrSessionRunning is returned by Run on a session that is already running.
var ErrSessionRunning = errors.New("session already running")

// PositionWriter persists raw positions. *db.DB implements it.
type PositionWriter interface {
	RecordPositions(recs []db.PositionRecord) error
}

// FramePublisher receives rendered frames. *visualiser.Publisher implements
// it.
type FramePublisher interface {
	Publish(frame *visualiser.TrailFrame) bool
}

// Config contains configuration for a Session.
type Config struct {
	// StationID selects the station; messages for other stations are ignored.
	StationID string
	// Trail sizes the live trail.
	Trail trail.Config
	// FrameRateHz is the tick rate of the render loop.
	FrameRateHz float64
	// QueueDepth is the inbox capacity.
	QueueDepth int
	// RecordingCap caps the positions kept for one pass.
	RecordingCap int

	// Registry receives finished recordings. Optional.
	Registry *observation.Registry
	// Positions persists raw positions. Optional.
	Positions PositionWriter
	// Publisher receives rendered frames. Optional.
	Publisher FramePublisher
	// Metrics is optional.
	Metrics *monitoring.TrackCollector
	// Clock defaults to the wall clock.
	Clock timeutil.Clock
}

// Status is a snapshot of a session for the debug endpoints.
type Status struct {
	StationID     string    `json:"station_id"`
	State         State     `json:"state"`
	ObjectID      string    `json:"object_id,omitempty"`
	ControlPoints int       `json:"control_points"`
	ValidCount    int       `json:"valid_count"`
	ArcLength     float64   `json:"arc_length"`
	SmoothedSpeed float64   `json:"smoothed_speed"`
	Recording     int       `json:"recording"`
	Frames        uint64    `json:"frames"`
	LastUpdate    time.Time `json:"last_update"`
}

// Session drives one station's trail.
type Session struct {
	cfg     Config
	inbox   chan telemetry.Message
	clock   timeutil.Clock
	metrics *monitoring.TrackCollector
	logf    func(format string, v ...interface{})

	// Owned by the run goroutine.
	trail      *trail.Trail
	objectID   string
	recording  *observation.Recording
	recActive  bool
	reset      bool
	evictions  uint64
	pending    []db.PositionRecord
	lastFlush  time.Time
	frameCount uint64

	mu      sync.RWMutex
	running bool
	status  Status
	speeds  []float64
}

// New validates cfg and allocates the session's trail.
func New(cfg Config) (*Session, error) {
	if cfg.StationID == "" {
		return nil, errors.New("session needs a station id")
	}
	if !(cfg.FrameRateHz > 0) {
		return nil, fmt.Errorf("frame rate must be positive, got %f", cfg.FrameRateHz)
	}
	tr, err := trail.NewTrail(cfg.Trail)
	if err != nil {
		return nil, fmt.Errorf("trail config: %w", err)
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if cfg.RecordingCap <= 0 {
		cfg.RecordingCap = observation.DefaultRecordingCap
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Session{
		cfg:       cfg,
		inbox:     make(chan telemetry.Message, cfg.QueueDepth),
		clock:     clock,
		metrics:   cfg.Metrics,
		logf:      monitoring.Tagged("Session"),
		trail:     tr,
		recording: observation.NewRecording(cfg.RecordingCap),
		status:    Status{StationID: cfg.StationID, State: StateDisconnected},
	}, nil
}

// Inbox is the channel sources deliver to.
func (s *Session) Inbox() chan<- telemetry.Message { return s.inbox }

// Run ticks the render loop until ctx is cancelled. The in-flight recording
// and any pending position records are flushed before it returns.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSessionRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.metrics.SessionStarted()
	defer s.metrics.SessionStopped()

	interval := time.Duration(float64(time.Second) / s.cfg.FrameRateHz)
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	s.lastFlush = s.clock.Now()
	s.logf("station %s render loop started at %.1f Hz", s.cfg.StationID, s.cfg.FrameRateHz)

	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.flushRecording()
			s.flushPositions()
			s.logf("station %s render loop stopped after %d frames", s.cfg.StationID, s.frameCount)
			return ctx.Err()
		case now := <-ticker.C():
			s.tick(now)
		}
	}
}

// tick runs one frame: drain, update, publish.
func (s *Session) tick(now time.Time) {
	s.drain()

	if s.trail.Update() {
		s.publish(now)
	}
	if len(s.pending) >= positionBatchSize || now.Sub(s.lastFlush) >= positionFlushInterval {
		s.flushPositions()
		s.lastFlush = now
	}
	s.snapshot(now)
}

// drain handles every queued message in arrival order without blocking.
func (s *Session) drain() {
	for {
		select {
		case m := <-s.inbox:
			s.handle(m)
		default:
			return
		}
	}
}

func (s *Session) handle(m telemetry.Message) {
	if m.StationID != "" && m.StationID != s.cfg.StationID {
		return
	}
	switch m.Kind {
	case telemetry.KindPosition:
		s.handlePosition(m)
	case telemetry.KindEvent:
		s.handleEvent(m)
	}
}

func (s *Session) handlePosition(m telemetry.Message) {
	if s.objectID != "" && m.ObjectID != s.objectID {
		// A new object without tracking_start still starts a new trail.
		s.resetTrail("object_switch")
	}
	s.objectID = m.ObjectID

	res := s.trail.Push(m.Position)
	s.metrics.SampleIngested(s.cfg.StationID)
	if res == trail.PushTeleport {
		s.metrics.Teleport(s.cfg.StationID)
		s.reset = true
	}
	if ev := s.trail.Buffer().Stats().Evictions; ev > s.evictions {
		s.metrics.Evicted(s.cfg.StationID, ev-s.evictions)
		s.evictions = ev
	}

	if s.recActive && s.recording.ObjectID == m.ObjectID {
		s.recording.Append(m.Position)
	}
	if s.cfg.Positions != nil {
		s.pending = append(s.pending, db.PositionRecord{
			StationID:  s.cfg.StationID,
			ObjectID:   m.ObjectID,
			Position:   m.Position,
			ReceivedAt: m.Received,
		})
	}
	s.setState(StateTracking)
}

func (s *Session) handleEvent(m telemetry.Message) {
	switch m.Event {
	case telemetry.EventOnline, telemetry.EventLocateStop:
		s.setState(StateOnline)
	case telemetry.EventLocateStart:
		s.setState(StateLocating)
	case telemetry.EventTrackingStart:
		if s.recActive && s.recording.ObjectID != m.ObjectID {
			s.flushRecording()
		}
		if !s.recActive {
			s.recording.Start(m.ObjectID)
			s.recActive = true
		}
		if s.objectID != m.ObjectID {
			s.resetTrail(string(m.Event))
			s.objectID = m.ObjectID
		}
		s.setState(StateOnline)
	case telemetry.EventTrackingStop:
		s.flushRecording()
		s.resetTrail(string(m.Event))
		s.setState(StateOnline)
	case telemetry.EventOffline:
		s.flushRecording()
		s.resetTrail(string(m.Event))
		s.setState(StateOffline)
	case telemetry.EventDisconnected:
		s.flushRecording()
		s.resetTrail(string(m.Event))
		s.setState(StateDisconnected)
	}
}

// resetTrail drops the live trail on loss of tracking.
func (s *Session) resetTrail(reason string) {
	if s.objectID == "" && s.trail.Buffer().Len() == 0 {
		return
	}
	s.trail.Reset()
	s.objectID = ""
	s.reset = true
	s.metrics.TrackingReset(s.cfg.StationID, reason)
}

// flushRecording turns the in-flight recording into an observation set.
func (s *Session) flushRecording() {
	if !s.recActive {
		return
	}
	s.recActive = false
	if s.cfg.Registry == nil {
		s.recording.Start("")
		return
	}
	set, ok, err := s.recording.Flush(s.cfg.Registry)
	switch {
	case err != nil:
		s.logf("station %s: failed to save recording of %s: %v", s.cfg.StationID, s.recording.ObjectID, err)
	case ok:
		s.logf("station %s: saved recording %s (%d points) as set %s", s.cfg.StationID, set.Label, len(set.Points), set.ID)
	}
	s.recording.Start("")
}

func (s *Session) flushPositions() {
	if len(s.pending) == 0 || s.cfg.Positions == nil {
		return
	}
	if err := s.cfg.Positions.RecordPositions(s.pending); err != nil {
		s.logf("station %s: failed to record %d positions: %v", s.cfg.StationID, len(s.pending), err)
	}
	s.pending = s.pending[:0]
}

func (s *Session) publish(now time.Time) {
	s.frameCount++
	if s.cfg.Publisher == nil {
		s.reset = false
		return
	}
	frame := visualiser.NewTrailFrame(s.trail, s.trail.Opacity(), now)
	frame.StationID = s.cfg.StationID
	frame.ObjectID = s.objectID
	frame.Reset = s.reset
	s.reset = false
	s.cfg.Publisher.Publish(frame)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.status.State = st
	s.mu.Unlock()
}

// snapshot refreshes the status read by other goroutines.
func (s *Session) snapshot(now time.Time) {
	buf := s.trail.Buffer()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.ObjectID = s.objectID
	s.status.ControlPoints = buf.Len()
	s.status.ValidCount = s.trail.ValidCount()
	s.status.ArcLength = buf.ArcLength()
	s.status.SmoothedSpeed = buf.SmoothedSpeed()
	s.status.Recording = 0
	if s.recActive {
		s.status.Recording = s.recording.Len()
	}
	s.status.Frames = s.frameCount
	s.status.LastUpdate = now

	s.speeds = s.speeds[:0]
	for i := 0; i < buf.Len(); i++ {
		s.speeds = append(s.speeds, float64(buf.At(i).SmoothedSpeed))
	}
}

// Status returns the state as of the last tick.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SpeedProfile copies the smoothed speed of every live control point,
// oldest first, as of the last tick.
func (s *Session) SpeedProfile() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.speeds...)
}

// SpeedRange returns the colour gradient domain of the trail.
func (s *Session) SpeedRange() (float64, float64) {
	return s.cfg.Trail.MinSpeed, s.cfg.Trail.MaxSpeed
}
