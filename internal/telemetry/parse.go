package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/slr.track/internal/units"
)

// Subscribe actions accepted by the station channel.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Coordinates are decoded as json.Number so out-of-range literals such as
// 1e999 surface as ErrNonFinite rather than a decode error.
type wireVec struct {
	X *json.Number `json:"x"`
	Y *json.Number `json:"y"`
	Z *json.Number `json:"z"`
}

func parseNumber(n json.Number) (float64, error) {
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNonFinite
	}
	return v, nil
}

func parseNumbers(ns ...*json.Number) ([]float64, error) {
	out := make([]float64, len(ns))
	for i, n := range ns {
		if n == nil {
			return nil, fmt.Errorf("%w: missing component", ErrUnknownFrame)
		}
		v, err := parseNumber(*n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type wireFrame struct {
	Event string          `json:"event"`
	ObjID *string         `json:"objId"`
	Value json.RawMessage `json:"value"`
}

// ParseFrame parses one station WebSocket frame:
//
//	{"event":"position","objId":"lageos1","value":{"x":1,"y":2,"z":3}}
//	{"event":"tracking_start","objId":"lageos1"}
//	{"event":"online"}
//
// The returned Message has no StationID; the source fills it in.
func ParseFrame(data []byte) (Message, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.Event == "" {
		return Message{}, ErrUnknownFrame
	}

	if f.Event == "position" {
		if f.ObjID == nil || len(f.Value) == 0 {
			return Message{}, fmt.Errorf("%w: position without objId or value", ErrUnknownFrame)
		}
		var v wireVec
		if err := json.Unmarshal(f.Value, &v); err != nil {
			return Message{}, fmt.Errorf("%w: position value: %v", ErrUnknownFrame, err)
		}
		xyz, err := parseNumbers(v.X, v.Y, v.Z)
		if err != nil {
			return Message{}, err
		}
		p := r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
		return Message{Kind: KindPosition, ObjectID: *f.ObjID, Position: p}, nil
	}

	e := Event(f.Event)
	if !IsStationEvent(e) {
		return Message{}, fmt.Errorf("%w: event %q", ErrUnknownFrame, f.Event)
	}
	m := Message{Kind: KindEvent, Event: e}
	if f.ObjID != nil {
		m.ObjectID = *f.ObjID
	}
	return m, nil
}

// ParseStatusPayload parses the body of a status topic, which has the same
// shape as an event frame.
func ParseStatusPayload(payload []byte) (Message, error) {
	m, err := ParseFrame(payload)
	if err != nil {
		return Message{}, err
	}
	if m.Kind != KindEvent {
		return Message{}, fmt.Errorf("%w: status payload is not an event", ErrUnknownFrame)
	}
	return m, nil
}

type sphericalPayload struct {
	Az   *json.Number `json:"az"`
	El   *json.Number `json:"el"`
	Dist *json.Number `json:"dist"`
}

// ParseSphericalPayload parses an {"az","el","dist"} position payload as
// published on the station position topics and converts it to the scene
// frame. Angles are in unit.
func ParseSphericalPayload(payload []byte, unit string) (r3.Vec, error) {
	var s sphericalPayload
	if err := json.Unmarshal(payload, &s); err != nil {
		return r3.Vec{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	aed, err := parseNumbers(s.Az, s.El, s.Dist)
	if err != nil {
		return r3.Vec{}, err
	}
	p := units.StationToCartesian(aed[2], aed[0], aed[1], unit)
	if err := CheckFinite(p); err != nil {
		return r3.Vec{}, err
	}
	return p, nil
}

// CheckFinite returns ErrNonFinite if any component of p is NaN or infinite.
func CheckFinite(p r3.Vec) error {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}
	return nil
}

// BuildSubscribe returns the JSON message that (un)subscribes from a
// station channel.
func BuildSubscribe(action, station string) ([]byte, error) {
	if action != ActionSubscribe && action != ActionUnsubscribe {
		return nil, fmt.Errorf("unknown subscribe action %q", action)
	}
	if station == "" {
		return nil, fmt.Errorf("station id is required")
	}
	return json.Marshal(struct {
		Action  string `json:"action"`
		Station string `json:"station"`
	}{action, station})
}
