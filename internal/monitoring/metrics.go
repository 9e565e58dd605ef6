package monitoring

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Reject reasons recorded on slr_samples_rejected_total.
const (
	RejectNonFinite = "non_finite"
	RejectUnknown   = "unknown_frame"
	RejectMalformed = "malformed"
	RejectQueueFull = "queue_full"
)

// TrackCollector bundles the Prometheus metrics of the tracking pipeline.
// All recording methods are safe on a nil receiver so metrics stay optional.
type TrackCollector struct {
	gatherer prometheus.Gatherer

	SamplesIngested *prometheus.CounterVec
	SamplesRejected *prometheus.CounterVec
	Teleports       *prometheus.CounterVec
	TrackingResets  *prometheus.CounterVec
	Evictions       *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	FramesPublished prometheus.Counter
	FramesDropped   prometheus.Counter
	StreamDurations *prometheus.HistogramVec
}

// NewTrackCollector registers the pipeline metrics against reg, defaulting
// to the global registry when nil. Registering twice against the same
// registry returns the existing collectors.
func NewTrackCollector(reg prometheus.Registerer) (*TrackCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &TrackCollector{gatherer: gatherer}
	var err error

	if c.SamplesIngested, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slr_samples_ingested_total",
		Help: "Position samples pushed into a trail, by station.",
	}, []string{"station"}), "slr_samples_ingested_total"); err != nil {
		return nil, err
	}
	if c.SamplesRejected, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slr_samples_rejected_total",
		Help: "Station frames rejected at the transport boundary, by reason.",
	}, []string{"reason"}), "slr_samples_rejected_total"); err != nil {
		return nil, err
	}
	if c.Teleports, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slr_teleport_resets_total",
		Help: "Trail resets caused by a discontinuity in the sample stream.",
	}, []string{"station"}), "slr_teleport_resets_total"); err != nil {
		return nil, err
	}
	if c.TrackingResets, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slr_tracking_resets_total",
		Help: "Trail resets caused by loss of tracking, by triggering event.",
	}, []string{"station", "event"}), "slr_tracking_resets_total"); err != nil {
		return nil, err
	}
	if c.Evictions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slr_control_point_evictions_total",
		Help: "Control points evicted from the trail head.",
	}, []string{"station"}), "slr_control_point_evictions_total"); err != nil {
		return nil, err
	}
	if c.ActiveSessions, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slr_active_sessions",
		Help: "Tracking sessions currently running.",
	}), "slr_active_sessions"); err != nil {
		return nil, err
	}
	if c.FramesPublished, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slr_frames_published_total",
		Help: "Trail frames handed to the publisher.",
	}), "slr_frames_published_total"); err != nil {
		return nil, err
	}
	if c.FramesDropped, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slr_frames_dropped_total",
		Help: "Trail frames dropped because a client or the publisher queue was full.",
	}), "slr_frames_dropped_total"); err != nil {
		return nil, err
	}
	if c.StreamDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slr_stream_duration_seconds",
		Help:    "Lifetime of streaming RPCs in seconds.",
		Buckets: []float64{1, 10, 60, 300, 1800, 3600, 4 * 3600},
	}, []string{"service", "method", "code"}), "slr_stream_duration_seconds"); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes a /metrics handler for the collector's registry.
func (c *TrackCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SampleIngested counts one sample pushed for station.
func (c *TrackCollector) SampleIngested(station string) {
	if c == nil {
		return
	}
	c.SamplesIngested.WithLabelValues(station).Inc()
}

// SampleRejected counts one frame rejected for reason.
func (c *TrackCollector) SampleRejected(reason string) {
	if c == nil {
		return
	}
	c.SamplesRejected.WithLabelValues(reason).Inc()
}

// Teleport counts one discontinuity reset.
func (c *TrackCollector) Teleport(station string) {
	if c == nil {
		return
	}
	c.Teleports.WithLabelValues(station).Inc()
}

// TrackingReset counts one loss-of-tracking reset triggered by event.
func (c *TrackCollector) TrackingReset(station, event string) {
	if c == nil {
		return
	}
	c.TrackingResets.WithLabelValues(station, event).Inc()
}

// Evicted adds n evictions.
func (c *TrackCollector) Evicted(station string, n uint64) {
	if c == nil || n == 0 {
		return
	}
	c.Evictions.WithLabelValues(station).Add(float64(n))
}

// SessionStarted and SessionStopped track the active session gauge.
func (c *TrackCollector) SessionStarted() {
	if c == nil {
		return
	}
	c.ActiveSessions.Inc()
}

func (c *TrackCollector) SessionStopped() {
	if c == nil {
		return
	}
	c.ActiveSessions.Dec()
}

// FramePublished counts one frame accepted by the publisher.
func (c *TrackCollector) FramePublished() {
	if c == nil {
		return
	}
	c.FramesPublished.Inc()
}

// FrameDropped counts one dropped frame.
func (c *TrackCollector) FrameDropped() {
	if c == nil {
		return
	}
	c.FramesDropped.Inc()
}

// StreamServerInterceptor records the lifetime and status of streaming RPCs.
func (c *TrackCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		if c == nil {
			return err
		}
		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()
		c.StreamDurations.WithLabelValues(service, method, code).Observe(time.Since(start).Seconds())
		return err
	}
}

// SplitMethod parses "/pkg.Service/Method" into service and method names,
// returning "unknown" for parts it cannot find.
func SplitMethod(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
