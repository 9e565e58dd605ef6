// Command trail-view draws a live slr-track trail in the terminal.
//
// It connects to the visualiser gRPC stream and projects the trail and the
// visible observation sets onto the x/z plane. Press q or Esc to quit.
//
// Usage:
//
//	go run ./cmd/tools/trail-view [flags]
//
// Flags:
//
//	-addr          Visualiser address (default: localhost:50061)
//	-station       Only show this station (default: all)
//	-observations  Also draw visible observation sets (default: true)
//	-fps           Redraw rate (default: 20)
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/termview"
	"github.com/banshee-data/slr.track/internal/visualiser"
)

func main() {
	addr := flag.String("addr", "localhost:50061", "Visualiser gRPC address")
	station := flag.String("station", "", "Station ID filter")
	observations := flag.Bool("observations", true, "Draw visible observation sets")
	fps := flag.Float64("fps", 20, "Redraw rate in Hz")
	flag.Parse()

	if *fps <= 0 {
		log.Fatalf("-fps must be positive, got %v", *fps)
	}

	client, err := visualiser.Dial(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("Failed to create screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("Failed to initialise screen: %v", err)
	}

	// Library logging would corrupt the screen.
	monitoring.SetLogger(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := termview.New(screen)
	streamErr := make(chan error, 1)
	go func() {
		req := &visualiser.StreamRequest{StationID: *station, IncludeObservations: *observations}
		streamErr <- client.Frames(ctx, req, view.HandleFrame)
		cancel()
	}()

	interval := time.Duration(float64(time.Second) / *fps)
	runErr := view.Run(ctx, interval)
	cancel()
	screen.Fini()

	if err := <-streamErr; err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Stream ended: %v", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("View error: %v", runErr)
	}
}
