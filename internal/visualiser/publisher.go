package visualiser

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/timeutil"
)

// ErrPublisherRunning is returned by Start on a running publisher.
var ErrPublisherRunning = errors.New("publisher already running")

// ErrPublisherStopped rejects streams that arrive while stopping.
var ErrPublisherStopped = errors.New("publisher stopped")

// Config holds configuration for the visualiser gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061").
	ListenAddr string

	// MaxClients caps concurrent streams. Zero means unlimited.
	MaxClients int

	// QueueDepth is the publisher's inbound frame queue.
	QueueDepth int

	// ClientBuffer is the per-client frame queue. A client whose queue is
	// full misses frames rather than slowing the others.
	ClientBuffer int

	// StatsInterval is how often throughput is logged.
	StatsInterval time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    "localhost:50061",
		MaxClients:    8,
		QueueDepth:    64,
		ClientBuffer:  8,
		StatsInterval: 5 * time.Second,
	}
}

type client struct {
	id      string
	request *StreamRequest
	frameCh chan *TrailFrame
}

// Publisher owns the gRPC server and fans trail frames out to clients.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener
	metrics  *monitoring.TrackCollector
	clock    timeutil.Clock
	logf     func(format string, v ...interface{})

	frameChan chan *TrailFrame
	clients   map[string]*client
	clientsMu sync.RWMutex

	// observations supplies observation set frames for new clients.
	observations ObservationSource

	frameCount     atomic.Uint64
	droppedFrames  atomic.Uint64
	clientCount    atomic.Int32
	lastStatsTime  time.Time
	lastFrameCount uint64
	lastStatsMu    sync.Mutex

	running   atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	streams   sync.WaitGroup // one per registered stream handler
	lifecycle sync.Mutex
}

// NewPublisher creates a publisher. metrics may be nil.
func NewPublisher(cfg Config, metrics *monitoring.TrackCollector) *Publisher {
	def := DefaultConfig()
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = def.QueueDepth
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = def.StatsInterval
	}
	return &Publisher{
		config:    cfg,
		metrics:   metrics,
		clock:     timeutil.RealClock{},
		logf:      monitoring.Tagged("Visualiser"),
		frameChan: make(chan *TrailFrame, cfg.QueueDepth),
		clients:   make(map[string]*client),
	}
}

// SetObservationSource makes new streams that ask for observations receive
// the visible sets of src when they connect.
func (p *Publisher) SetObservationSource(src ObservationSource) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	p.observations = src
}

// Start listens on Config.ListenAddr and serves the visualiser service.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return ErrPublisherRunning
	}
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if err := p.Serve(lis); err != nil {
		lis.Close()
		return err
	}
	return nil
}

// Serve starts the publisher on an existing listener.
func (p *Publisher) Serve(lis net.Listener) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.running.Load() {
		return ErrPublisherRunning
	}

	p.listener = lis
	p.stopCh = make(chan struct{})
	p.server = grpc.NewServer(
		grpc.ForceServerCodec(Codec{}),
		grpc.ChainStreamInterceptor(p.metrics.StreamServerInterceptor()),
	)
	RegisterVisualiserServer(p.server, NewServer(p))
	p.running.Store(true)

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		p.logf("gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			p.logf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop closes every stream and stops the server. It is safe to call more
// than once.
func (p *Publisher) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)
	// Handlers register under clientsMu; once it is free no new one can.
	p.clientsMu.Lock()
	p.clientsMu.Unlock()

	// Streams only end when their context does, so the hard Stop is used.
	p.server.Stop()
	p.listener.Close()
	p.wg.Wait()
	p.streams.Wait()
	p.logf("gRPC server stopped")
}

// Addr returns the listening address, or nil when stopped.
func (p *Publisher) Addr() net.Addr {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.listener == nil || !p.running.Load() {
		return nil
	}
	return p.listener.Addr()
}

// Publish queues frame for every client and reports whether it was
// accepted. Frames are dropped when the queue is full; the caller never
// blocks.
func (p *Publisher) Publish(frame *TrailFrame) bool {
	if !p.running.Load() || frame == nil {
		return false
	}
	frame.FrameID = p.frameCount.Add(1)

	select {
	case p.frameChan <- frame:
		p.metrics.FramePublished()
		p.logPeriodicStats(frame.FrameID)
		return true
	default:
		dropped := p.droppedFrames.Add(1)
		p.metrics.FrameDropped()
		p.logf("dropped frame %d (total dropped: %d), queue full", frame.FrameID, dropped)
		return false
	}
}

func (p *Publisher) logPeriodicStats(frameCount uint64) {
	p.lastStatsMu.Lock()
	defer p.lastStatsMu.Unlock()

	now := p.clock.Now()
	if p.lastStatsTime.IsZero() {
		p.lastStatsTime = now
		p.lastFrameCount = frameCount
		return
	}
	elapsed := now.Sub(p.lastStatsTime)
	if elapsed < p.config.StatsInterval {
		return
	}
	frames := frameCount - p.lastFrameCount
	p.logf("Stats: fps=%.1f frames=%d dropped=%d clients=%d queue=%d/%d",
		float64(frames)/elapsed.Seconds(), frames, p.droppedFrames.Load(),
		p.clientCount.Load(), len(p.frameChan), cap(p.frameChan))
	p.lastStatsTime = now
	p.lastFrameCount = frameCount
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, c := range p.clients {
				if c.request.StationID != "" && frame.StationID != c.request.StationID {
					continue
				}
				select {
				case c.frameCh <- frame:
				default:
					p.droppedFrames.Add(1)
					p.metrics.FrameDropped()
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

var errTooManyClients = errors.New("too many visualiser clients")

func (p *Publisher) addClient(req *StreamRequest) (*client, error) {
	c := &client{
		id:      "grpc-" + uuid.New().String(),
		request: req,
		frameCh: make(chan *TrailFrame, p.config.ClientBuffer),
	}
	p.clientsMu.Lock()
	if !p.running.Load() {
		p.clientsMu.Unlock()
		return nil, ErrPublisherStopped
	}
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		p.clientsMu.Unlock()
		return nil, errTooManyClients
	}
	p.clients[c.id] = c
	p.streams.Add(1)
	p.clientsMu.Unlock()

	n := p.clientCount.Add(1)
	p.logf("client connected: %s station=%q (total: %d)", c.id, req.StationID, n)
	return c, nil
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	_, ok := p.clients[id]
	delete(p.clients, id)
	p.clientsMu.Unlock()
	if !ok {
		return
	}
	// Log before the count drops: waiters on ClientCount may tear down
	// the logger as soon as it reaches zero.
	p.logf("client disconnected: %s (remaining: %d)", id, p.clientCount.Load()-1)
	p.clientCount.Add(-1)
	p.streams.Done()
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64
	DroppedFrames uint64
	ClientCount   int32
	Running       bool
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}
