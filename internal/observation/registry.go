package observation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/trail"
)

var (
	ErrSetNotFound  = errors.New("observation set not found")
	ErrNoPoints     = errors.New("observation set has no points")
	ErrInvalidColor = errors.New("invalid colour, expected #rrggbb")
)

// Store persists observation sets. The db package implements it.
type Store interface {
	CreateObservationSet(s Set) error
	ObservationSets() ([]Set, error)
	UpdateObservationSet(id string, visible bool, color string) error
	ClearObservationSet(id string) error
	DeleteObservationSet(id string) error
}

type entry struct {
	set    Set
	static *trail.StaticTrailSet
}

// Registry holds the active observation sets in insertion order and the
// static trail drawn for each. It is safe for concurrent use; the HTTP API
// and the tracking session share one.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	opts    trail.StaticOptions
	store   Store
	now     func() time.Time
	added   int
	logf    func(format string, v ...interface{})
}

// NewRegistry returns an empty registry colouring sets with opts. store may
// be nil, in which case sets live only in memory.
func NewRegistry(opts trail.StaticOptions, store Store) *Registry {
	opts.Override = nil
	return &Registry{
		opts:  opts,
		store: store,
		now:   time.Now,
		logf:  monitoring.Tagged("Observation"),
	}
}

// NextColor returns the palette colour the next added set will get.
func (r *Registry) NextColor() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return PaletteColor(r.added)
}

// Add registers a new visible set with the next palette colour and
// persists it. An empty label becomes "Set N".
func (r *Registry) Add(label string, points []r3.Vec) (Set, error) {
	if len(points) == 0 {
		return Set{}, ErrNoPoints
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if label == "" {
		label = DefaultLabel(len(r.entries) + 1)
	}
	s := Set{
		ID:        uuid.New().String(),
		Label:     label,
		Color:     PaletteColor(r.added),
		Visible:   true,
		CreatedAt: r.now().UTC(),
		Points:    append([]r3.Vec(nil), points...),
	}
	if r.store != nil {
		if err := r.store.CreateObservationSet(s); err != nil {
			return Set{}, fmt.Errorf("persist observation set %s: %w", s.Label, err)
		}
	}
	r.insertLocked(s)
	r.logf("added set %s %q with %d points", s.ID, s.Label, len(s.Points))
	return cloneSet(s), nil
}

// Restore registers an already persisted set without writing it back.
func (r *Registry) Restore(s Set) error {
	if s.ID == "" {
		return fmt.Errorf("restore observation set: missing id")
	}
	if _, err := ParseColor(s.Color); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(s.ID) >= 0 {
		return fmt.Errorf("restore observation set: duplicate id %s", s.ID)
	}
	s.Points = append([]r3.Vec(nil), s.Points...)
	r.insertLocked(s)
	return nil
}

// LoadStore restores every set held by the store and returns how many were
// loaded.
func (r *Registry) LoadStore() (int, error) {
	if r.store == nil {
		return 0, nil
	}
	sets, err := r.store.ObservationSets()
	if err != nil {
		return 0, fmt.Errorf("load observation sets: %w", err)
	}
	for i, s := range sets {
		if err := r.Restore(s); err != nil {
			return i, err
		}
	}
	return len(sets), nil
}

func (r *Registry) insertLocked(s Set) {
	override, _ := ParseColor(s.Color)
	opts := r.opts
	opts.Override = override
	r.entries = append(r.entries, &entry{set: s, static: trail.NewStaticTrailSet(s.Points, opts)})
	r.added++
}

func (r *Registry) indexLocked(id string) int {
	for i, e := range r.entries {
		if e.set.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) lookupLocked(id string) (*entry, error) {
	i := r.indexLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSetNotFound, id)
	}
	return r.entries[i], nil
}

// Remove destroys a set and its static trail.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSetNotFound, id)
	}
	if r.store != nil {
		if err := r.store.DeleteObservationSet(id); err != nil {
			return fmt.Errorf("delete observation set %s: %w", id, err)
		}
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return nil
}

// Clear empties a set's points. The set itself stays listed.
func (r *Registry) Clear(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookupLocked(id)
	if err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.ClearObservationSet(id); err != nil {
			return fmt.Errorf("clear observation set %s: %w", id, err)
		}
	}
	e.set.Points = nil
	e.static.Clear()
	return nil
}

// SetVisible toggles whether a set is drawn.
func (r *Registry) SetVisible(id string, visible bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookupLocked(id)
	if err != nil {
		return err
	}
	if err := r.persistLocked(id, visible, e.set.Color); err != nil {
		return err
	}
	e.set.Visible = visible
	return nil
}

// SetColor sets a #rrggbb override colour, or restores speed colouring when
// color is empty.
func (r *Registry) SetColor(id, color string) error {
	c, err := ParseColor(color)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookupLocked(id)
	if err != nil {
		return err
	}
	hex := ""
	if c != nil {
		hex = c.Hex()
	}
	if err := r.persistLocked(id, e.set.Visible, hex); err != nil {
		return err
	}
	e.set.Color = hex
	e.static.SetOverride(c)
	return nil
}

func (r *Registry) persistLocked(id string, visible bool, color string) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.UpdateObservationSet(id, visible, color); err != nil {
		return fmt.Errorf("update observation set %s: %w", id, err)
	}
	return nil
}

// SetSpeedRange recolours every speed-coloured set.
func (r *Registry) SetSpeedRange(minSpeed, maxSpeed float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.MinSpeed = minSpeed
	r.opts.MaxSpeed = maxSpeed
	for _, e := range r.entries {
		e.static.SetSpeedRange(minSpeed, maxSpeed)
	}
}

// Get returns a copy of the set with id.
func (r *Registry) Get(id string) (Set, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.lookupLocked(id)
	if err != nil {
		return Set{}, err
	}
	return cloneSet(e.set), nil
}

// Sets returns copies of every set in insertion order.
func (r *Registry) Sets() []Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Set, len(r.entries))
	for i, e := range r.entries {
		out[i] = cloneSet(e.set)
	}
	return out
}

// Len returns the number of sets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Drawing is a copy of a set's coloured vertices.
type Drawing struct {
	ID         string
	Visible    bool
	Opacity    float64
	ValidCount int
	Positions  []float32
	Colors     []float32
}

// Draw copies the current vertices and colours of set id.
func (r *Registry) Draw(id string) (Drawing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.lookupLocked(id)
	if err != nil {
		return Drawing{}, err
	}
	return drawingOf(e), nil
}

// DrawVisible copies every visible set in insertion order.
func (r *Registry) DrawVisible() []Drawing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Drawing
	for _, e := range r.entries {
		if e.set.Visible {
			out = append(out, drawingOf(e))
		}
	}
	return out
}

func drawingOf(e *entry) Drawing {
	return Drawing{
		ID:         e.set.ID,
		Visible:    e.set.Visible,
		Opacity:    e.static.Opacity(),
		ValidCount: e.static.ValidCount(),
		Positions:  append([]float32(nil), e.static.Positions()...),
		Colors:     append([]float32(nil), e.static.Colors()...),
	}
}

func cloneSet(s Set) Set {
	s.Points = append([]r3.Vec(nil), s.Points...)
	return s
}
