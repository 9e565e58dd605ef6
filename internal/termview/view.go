// Package termview is a terminal render consumer. It projects trails onto
// the x/z plane and draws every valid vertex as a coloured cell.
package termview

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/banshee-data/slr.track/internal/visualiser"
)

const (
	// cellAspect is the height of a terminal cell over its width.
	cellAspect = 2.0

	trailGlyph       = '•'
	observationGlyph = '·'
)

type vertices struct {
	positions []float32
	colors    []float32
	count     int
}

func (v *vertices) set(positions, colors []float32, validCount int) {
	if n := len(positions) / 3; validCount > n {
		validCount = n
	}
	if n := len(colors) / 3; validCount > n {
		validCount = n
	}
	if validCount < 0 {
		validCount = 0
	}
	v.positions = append(v.positions[:0], positions[:validCount*3]...)
	v.colors = append(v.colors[:0], colors[:validCount*3]...)
	v.count = validCount
}

// View draws the live trail and any observation sets on a tcell screen.
// It implements trail.Consumer.
type View struct {
	screen tcell.Screen

	mu           sync.Mutex
	live         vertices
	observations map[string]*vertices
	stationID    string
	objectID     string
	frames       uint64
}

// New returns a view drawing on screen. The screen must be initialised.
func New(screen tcell.Screen) *View {
	return &View{screen: screen, observations: make(map[string]*vertices)}
}

// Consume replaces the live trail with the first validCount vertices.
func (v *View) Consume(positions, colors []float32, validCount int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.live.set(positions, colors, validCount)
}

// HandleFrame routes a streamed frame to the live trail or to its
// observation set.
func (v *View) HandleFrame(f *visualiser.TrailFrame) {
	if f.IsObservation() {
		v.mu.Lock()
		o := v.observations[f.SetID]
		if o == nil {
			o = &vertices{}
			v.observations[f.SetID] = o
		}
		o.set(f.Positions, f.Colors, f.ValidCount)
		v.mu.Unlock()
		return
	}
	f.Render(v)
	v.mu.Lock()
	v.stationID = f.StationID
	v.objectID = f.ObjectID
	v.frames++
	v.mu.Unlock()
}

// bounds is the x/z extent of everything drawn.
type bounds struct {
	minX, maxX, minZ, maxZ float64
	empty                  bool
}

func (b *bounds) add(vs *vertices) {
	for i := 0; i < vs.count; i++ {
		x, z := float64(vs.positions[i*3]), float64(vs.positions[i*3+2])
		if b.empty {
			b.minX, b.maxX, b.minZ, b.maxZ = x, x, z, z
			b.empty = false
			continue
		}
		b.minX = math.Min(b.minX, x)
		b.maxX = math.Max(b.maxX, x)
		b.minZ = math.Min(b.minZ, z)
		b.maxZ = math.Max(b.maxZ, z)
	}
}

// Projection maps world x/z onto screen cells with one scale for both axes.
type Projection struct {
	cx, cz float64
	scale  float64 // world units per column
	cols   int
	rows   int
	top    int
}

// NewProjection fits the box [minX,maxX]x[minZ,maxZ] into a cols x rows
// area starting at row top.
func NewProjection(minX, maxX, minZ, maxZ float64, cols, rows, top int) Projection {
	p := Projection{cx: (minX + maxX) / 2, cz: (minZ + maxZ) / 2, cols: cols, rows: rows, top: top, scale: 1}
	var s float64
	if cols > 1 {
		s = (maxX - minX) / float64(cols-1)
	}
	if rows > 1 {
		s = math.Max(s, (maxZ-minZ)/(float64(rows-1)*cellAspect))
	}
	if s > 0 {
		p.scale = s
	}
	return p
}

// Cell returns the screen cell of (x, z). Larger z is drawn higher.
func (p Projection) Cell(x, z float64) (col, row int, ok bool) {
	col = int(math.Round((x-p.cx)/p.scale + float64(p.cols-1)/2))
	row = int(math.Round(float64(p.rows-1)/2 - (z-p.cz)/(p.scale*cellAspect)))
	if col < 0 || col >= p.cols || row < 0 || row >= p.rows {
		return 0, 0, false
	}
	return col, row + p.top, true
}

// Draw renders the current state and shows it.
func (v *View) Draw() {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := v.screen
	s.Clear()
	w, h := s.Size()
	if w < 1 || h < 2 {
		s.Show()
		return
	}

	ids := make([]string, 0, len(v.observations))
	for id := range v.observations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b := bounds{empty: true}
	for _, id := range ids {
		b.add(v.observations[id])
	}
	b.add(&v.live)

	if !b.empty {
		proj := NewProjection(b.minX, b.maxX, b.minZ, b.maxZ, w, h-1, 1)
		for _, id := range ids {
			v.plot(proj, v.observations[id], observationGlyph)
		}
		v.plot(proj, &v.live, trailGlyph)
	}

	status := fmt.Sprintf(" station %s  object %s  vertices %d  sets %d  frames %d  (q quits)",
		orDash(v.stationID), orDash(v.objectID), v.live.count, len(ids), v.frames)
	header := tcell.StyleDefault.Reverse(true)
	for i, r := range []rune(status) {
		if i >= w {
			break
		}
		s.SetContent(i, 0, r, nil, header)
	}
	s.Show()
}

func (v *View) plot(p Projection, vs *vertices, glyph rune) {
	for i := 0; i < vs.count; i++ {
		col, row, ok := p.Cell(float64(vs.positions[i*3]), float64(vs.positions[i*3+2]))
		if !ok {
			continue
		}
		style := tcell.StyleDefault.Foreground(rgb(vs.colors[i*3 : i*3+3]))
		v.screen.SetContent(col, row, glyph, nil, style)
	}
}

func rgb(c []float32) tcell.Color {
	ch := func(f float32) int32 {
		return int32(math.Round(math.Max(0, math.Min(1, float64(f))) * 255))
	}
	return tcell.NewRGBColor(ch(c[0]), ch(c[1]), ch(c[2]))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Run redraws every interval until ctx is done or the user presses q, Esc
// or Ctrl-C. It returns nil when the user quits.
func (v *View) Run(ctx context.Context, interval time.Duration) error {
	events := make(chan tcell.Event, 8)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	v.Draw()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return nil
				}
			case *tcell.EventResize:
				v.screen.Sync()
				v.Draw()
			}
		case <-ticker.C:
			v.Draw()
		}
	}
}
