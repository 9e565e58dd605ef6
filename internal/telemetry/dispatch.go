package telemetry

import (
	"strings"

	"github.com/banshee-data/slr.track/internal/monitoring"
)

// Topic patterns published by the station gateway.
const (
	TopicPosition = "slr/:stationId/tracking/:objId/pos"
	TopicStatus   = "slr/:stationId/status"
)

// HandlerFunc receives the named parameters of a matched topic and its
// payload.
type HandlerFunc func(params map[string]string, payload []byte)

type route struct {
	pattern  string
	segments []string
	handler  HandlerFunc
}

// Dispatcher routes slash-separated topics to handlers. Pattern segments
// starting with ':' capture the topic segment under that name. Routes are
// tried in registration order and the first match wins.
type Dispatcher struct {
	routes []route
	logf   func(format string, v ...interface{})
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{logf: monitoring.Tagged("Dispatch")}
}

// Handle registers h for pattern.
func (d *Dispatcher) Handle(pattern string, h HandlerFunc) {
	d.routes = append(d.routes, route{
		pattern:  pattern,
		segments: strings.Split(pattern, "/"),
		handler:  h,
	})
}

// Dispatch delivers payload to the first matching route and reports whether
// one matched. Unmatched topics are logged and dropped.
func (d *Dispatcher) Dispatch(topic string, payload []byte) bool {
	topicSegs := strings.Split(topic, "/")
	for _, r := range d.routes {
		if params, ok := matchTopic(r.segments, topicSegs); ok {
			r.handler(params, payload)
			return true
		}
	}
	d.logf("unhandled topic %q", topic)
	return false
}

func matchTopic(pattern, topic []string) (map[string]string, bool) {
	if len(pattern) != len(topic) {
		return nil, false
	}
	params := make(map[string]string)
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			params[p[1:]] = topic[i]
		} else if p != topic[i] {
			return nil, false
		}
	}
	return params, true
}
