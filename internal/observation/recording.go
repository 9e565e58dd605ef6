package observation

import "gonum.org/v1/gonum/spatial/r3"

// DefaultRecordingCap is the number of raw positions kept for one pass.
const DefaultRecordingCap = 2000

// Recording accumulates the raw positions of the object currently tracked.
// When full the oldest position is discarded. It is owned by one goroutine.
type Recording struct {
	ObjectID string
	points   []r3.Vec
	head     int
	count    int
}

// NewRecording returns an empty recording holding up to capacity points.
func NewRecording(capacity int) *Recording {
	if capacity < 1 {
		capacity = DefaultRecordingCap
	}
	return &Recording{points: make([]r3.Vec, capacity)}
}

// Start clears the recording and labels it with objectID.
func (r *Recording) Start(objectID string) {
	r.ObjectID = objectID
	r.head = 0
	r.count = 0
}

// Append adds p, dropping the oldest point when full.
func (r *Recording) Append(p r3.Vec) {
	n := len(r.points)
	if r.count < n {
		r.points[(r.head+r.count)%n] = p
		r.count++
		return
	}
	r.points[r.head] = p
	r.head = (r.head + 1) % n
}

// Len returns the number of recorded points.
func (r *Recording) Len() int { return r.count }

// Points copies the recorded points oldest first.
func (r *Recording) Points() []r3.Vec {
	out := make([]r3.Vec, r.count)
	for i := range out {
		out[i] = r.points[(r.head+i)%len(r.points)]
	}
	return out
}

// Flush adds the recording to reg as a set labelled with the object ID and
// clears it. Nothing is added for an empty recording; the returned bool
// reports whether a set was created.
func (r *Recording) Flush(reg *Registry) (Set, bool, error) {
	if r.count == 0 {
		return Set{}, false, nil
	}
	label := r.ObjectID
	points := r.Points()
	r.Start(r.ObjectID)
	s, err := reg.Add(label, points)
	if err != nil {
		return Set{}, false, err
	}
	return s, true, nil
}
