package monitor

import (
	"fmt"
	"image/color"
	"io"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/slr.track/internal/httputil"
)

// PlotSize is the PNG size of an observation plot.
const PlotSize = 8 * vg.Inch

// PlotTrail writes a PNG of the x/y projection of the first validCount
// vertices, each drawn in its own trail colour.
func PlotTrail(w io.Writer, title string, positions, colors []float32, validCount int) error {
	if n := len(positions) / 3; validCount > n {
		validCount = n
	}
	if n := len(colors) / 3; validCount > n {
		validCount = n
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.BackgroundColor = color.Black
	for _, a := range []*plot.Axis{&p.X, &p.Y} {
		a.LineStyle.Color = color.White
		a.Label.TextStyle.Color = color.White
		a.Tick.LineStyle.Color = color.White
		a.Tick.Label.Color = color.White
	}
	p.Title.TextStyle.Color = color.White
	p.Add(plotter.NewGrid())

	if validCount > 0 {
		xys := make(plotter.XYs, validCount)
		glyphs := make([]color.Color, validCount)
		for i := 0; i < validCount; i++ {
			xys[i].X = float64(positions[i*3])
			xys[i].Y = float64(positions[i*3+1])
			glyphs[i] = toRGBA(colors[i*3], colors[i*3+1], colors[i*3+2])
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("scatter: %w", err)
		}
		sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			return draw.GlyphStyle{Color: glyphs[i], Radius: vg.Points(1.5), Shape: draw.CircleGlyph{}}
		}
		p.Add(sc)
	}

	wt, err := p.WriterTo(PlotSize, PlotSize, "png")
	if err != nil {
		return fmt.Errorf("create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func toRGBA(r, g, b float32) color.RGBA {
	return color.RGBA{R: channel(r), G: channel(g), B: channel(b), A: 0xff}
}

func channel(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	default:
		return uint8(v*255 + 0.5)
	}
}

// handleObservationPlot renders one observation set as PNG (?id=).
func (s *Server) handleObservationPlot(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.RequireQuery(w, r, "id")
	if !ok {
		return
	}
	set, err := s.registry.Get(id)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	d, err := s.registry.Draw(id)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := PlotTrail(w, set.Label, d.Positions, d.Colors, d.ValidCount); err != nil {
		s.logf("plot %s: %v", id, err)
	}
}
