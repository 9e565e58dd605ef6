package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/slr.track/internal/httputil"
	"github.com/banshee-data/slr.track/internal/trail"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleSpeedChart renders the smoothed speed of every live control point,
// oldest first, with the same hue ramp the trail is drawn with.
func (s *Server) handleSpeedChart(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r.URL.Query().Get("station"))
	if sess == nil {
		httputil.NotFound(w, "no session for station")
		return
	}
	st := sess.Status()
	speeds := sess.SpeedProfile()
	minSpeed, maxSpeed := sess.SpeedRange()

	xs := make([]int, len(speeds))
	data := make([]opts.LineData, len(speeds))
	for i, v := range speeds {
		xs[i] = i
		data[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trail speed", Theme: "dark", Width: "100%", Height: "520px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Trail speed profile",
			Subtitle: fmt.Sprintf("station=%s object=%s points=%d arc=%.1f", st.StationID, st.ObjectID, len(speeds), st.ArcLength),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "control point", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "speed", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minSpeed),
			Max:        float32(maxSpeed),
			InRange:    &opts.VisualMapInRange{Color: hueRamp(8)},
		}),
	)
	line.SetXAxis(xs).AddSeries("smoothed speed", data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Errorf("render chart: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// hueRamp samples the speed colour gradient from slow to fast as hex.
func hueRamp(n int) []string {
	out := make([]string, n)
	for i := range out {
		t := float64(i) / float64(n-1)
		out[i] = trail.HueToRGB(trail.SpeedToHue(t)).Hex()
	}
	return out
}
