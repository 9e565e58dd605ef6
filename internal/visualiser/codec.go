package visualiser

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// CodecName is the gRPC content subtype of the trail wire format.
const CodecName = "trailwire"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec encodes TrailFrame and StreamRequest in protobuf wire format without
// generated code. Field numbers are stable; unknown fields are skipped.
//
//	TrailFrame:    1 frame_id, 2 timestamp_ns, 3 station_id, 4 object_id,
//	               5 opacity (fixed32), 6 valid_count, 7 positions (packed
//	               fixed32), 8 colors (packed fixed32), 9 reset, 10 set_id
//	StreamRequest: 1 station_id, 2 include_observations
type Codec struct{}

func (Codec) Name() string { return CodecName }

var errShortField = errors.New("trailwire: truncated field")

func (Codec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case *TrailFrame:
		return marshalFrame(m), nil
	case *StreamRequest:
		return marshalRequest(m), nil
	default:
		return nil, fmt.Errorf("trailwire: cannot marshal %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case *TrailFrame:
		*m = TrailFrame{}
		return unmarshalFrame(data, m)
	case *StreamRequest:
		*m = StreamRequest{}
		return unmarshalRequest(data, m)
	default:
		return fmt.Errorf("trailwire: cannot unmarshal into %T", v)
	}
}

func appendFloats(b []byte, num protowire.Number, fs []float32) []byte {
	if len(fs) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(len(fs)*4))
	for _, f := range fs {
		b = protowire.AppendFixed32(b, math.Float32bits(f))
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func marshalFrame(f *TrailFrame) []byte {
	b := make([]byte, 0, 64+len(f.Positions)*4+len(f.Colors)*4)
	b = appendVarint(b, 1, f.FrameID)
	b = appendVarint(b, 2, uint64(f.TimestampNanos))
	b = appendString(b, 3, f.StationID)
	b = appendString(b, 4, f.ObjectID)
	if f.Opacity != 0 {
		b = protowire.AppendTag(b, 5, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(f.Opacity))
	}
	b = appendVarint(b, 6, uint64(f.ValidCount))
	b = appendFloats(b, 7, f.Positions)
	b = appendFloats(b, 8, f.Colors)
	if f.Reset {
		b = appendVarint(b, 9, 1)
	}
	b = appendString(b, 10, f.SetID)
	return b
}

func marshalRequest(r *StreamRequest) []byte {
	var b []byte
	b = appendString(b, 1, r.StationID)
	if r.IncludeObservations {
		b = appendVarint(b, 2, 1)
	}
	return b
}

// walk calls fn for each field of data. fn returns the number of
// bytes it consumed, or -1 to have the field skipped.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("trailwire: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		used, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if used < 0 {
			used = protowire.ConsumeFieldValue(num, typ, data)
			if used < 0 {
				return fmt.Errorf("trailwire: field %d: %w", num, protowire.ParseError(used))
			}
		}
		data = data[used:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, -1, nil
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, errShortField
	}
	return v, n, nil
}

func consumeString(typ protowire.Type, b []byte) (string, int, error) {
	if typ != protowire.BytesType {
		return "", -1, nil
	}
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, errShortField
	}
	return s, n, nil
}

func consumeFloats(typ protowire.Type, b []byte) ([]float32, int, error) {
	if typ != protowire.BytesType {
		return nil, -1, nil
	}
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 || len(raw)%4 != 0 {
		return nil, 0, errShortField
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		v, _ := protowire.ConsumeFixed32(raw[i*4:])
		out[i] = math.Float32frombits(v)
	}
	return out, n, nil
}

func unmarshalFrame(data []byte, f *TrailFrame) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			f.FrameID = v
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			f.TimestampNanos = int64(v)
			return n, err
		case 3:
			s, n, err := consumeString(typ, b)
			f.StationID = s
			return n, err
		case 4:
			s, n, err := consumeString(typ, b)
			f.ObjectID = s
			return n, err
		case 5:
			if typ != protowire.Fixed32Type {
				return -1, nil
			}
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return 0, errShortField
			}
			f.Opacity = math.Float32frombits(v)
			return n, nil
		case 6:
			v, n, err := consumeVarint(typ, b)
			f.ValidCount = int(v)
			return n, err
		case 7:
			fs, n, err := consumeFloats(typ, b)
			f.Positions = fs
			return n, err
		case 8:
			fs, n, err := consumeFloats(typ, b)
			f.Colors = fs
			return n, err
		case 9:
			v, n, err := consumeVarint(typ, b)
			f.Reset = v != 0
			return n, err
		case 10:
			s, n, err := consumeString(typ, b)
			f.SetID = s
			return n, err
		}
		return -1, nil
	})
}

func unmarshalRequest(data []byte, r *StreamRequest) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(typ, b)
			r.StationID = s
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			r.IncludeObservations = v != 0
			return n, err
		}
		return -1, nil
	})
}
