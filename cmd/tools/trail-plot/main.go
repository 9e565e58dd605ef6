// Command trail-plot renders an observation set to a PNG.
//
// The set is read from a local file (JSON, CSV or spherical JSON) or
// fetched from a running slr-track monitor. Points are coloured by speed
// unless -color is given or the fetched set carries an override.
//
// Usage:
//
//	go run ./cmd/tools/trail-plot -in pass.json -out pass.png
//	go run ./cmd/tools/trail-plot -server http://localhost:8090 -id <set-id> -out pass.png
//
// Flags:
//
//	-in      Observation file to plot
//	-server  Monitor base URL to fetch the set from
//	-id      Set ID, with -server
//	-out     Output PNG (default: trail.png)
//	-title   Plot title (default: file name or set label)
//	-color   #rrggbb override colour
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/slr.track/internal/httputil"
	"github.com/banshee-data/slr.track/internal/monitor"
	"github.com/banshee-data/slr.track/internal/observation"
	"github.com/banshee-data/slr.track/internal/security"
	"github.com/banshee-data/slr.track/internal/trail"
)

func main() {
	in := flag.String("in", "", "Observation file to plot")
	server := flag.String("server", "", "Monitor base URL")
	id := flag.String("id", "", "Observation set ID (with -server)")
	out := flag.String("out", "trail.png", "Output PNG path")
	title := flag.String("title", "", "Plot title")
	colorHex := flag.String("color", "", "Override colour (#rrggbb)")
	flag.Parse()

	var (
		points []r3.Vec
		label  string
		err    error
	)
	switch {
	case *in != "" && *server != "":
		log.Fatalf("use either -in or -server, not both")
	case *in != "":
		points, err = readFile(*in)
		label = filepath.Base(*in)
	case *server != "":
		if *id == "" {
			log.Fatalf("-server requires -id")
		}
		var resp *monitor.PointsResponse
		resp, err = fetchSet(*server, *id)
		if err == nil {
			label = resp.Label
			if *colorHex == "" {
				*colorHex = resp.Color
			}
			points = make([]r3.Vec, len(resp.Points))
			for i, p := range resp.Points {
				points[i] = r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
			}
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("Failed to load observation set: %v", err)
	}
	if *title == "" {
		*title = label
	}

	override, err := observation.ParseColor(*colorHex)
	if err != nil {
		log.Fatalf("Invalid -color: %v", err)
	}

	if err := security.ValidateOutputPath(*out); err != nil {
		log.Fatalf("Invalid output path: %v", err)
	}

	cfg := trail.DefaultConfig()
	set := trail.NewStaticTrailSet(points, trail.StaticOptions{
		MinSpeed: cfg.MinSpeed,
		MaxSpeed: cfg.MaxSpeed,
		Opacity:  cfg.Opacity,
		Override: override,
	})

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *out, err)
	}
	if err := monitor.PlotTrail(f, *title, set.Positions(), set.Colors(), set.ValidCount()); err != nil {
		f.Close()
		log.Fatalf("Failed to plot: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}
	log.Printf("Wrote %d points to %s", set.ValidCount(), *out)
}

func readFile(path string) ([]r3.Vec, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	points, format, err := observation.ParseFile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Printf("Read %d points from %s (%s)", len(points), path, format)
	return points, nil
}

func fetchSet(server, id string) (*monitor.PointsResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := httputil.NewAPIClient(server, &http.Client{})
	var resp monitor.PointsResponse
	if err := client.GetJSON(ctx, "/api/observations/points", url.Values{"id": {id}}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
