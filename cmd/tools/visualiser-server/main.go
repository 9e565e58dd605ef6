// Command visualiser-server streams a synthetic orbit over the visualiser
// gRPC service.
//
// It is useful for testing trail-view and other clients without a station
// or a database. Finished passes are kept in memory as observation sets.
//
// Usage:
//
//	go run ./cmd/tools/visualiser-server [flags]
//
// Flags:
//
//	-addr     Listen address (default: localhost:50061)
//	-fps      Render rate in Hz (default: 60)
//	-samples  Position samples per second (default: 20)
//	-switch   Samples per pass before a new object is tracked, 0 disables (default: 2000)
//	-jump     Samples between unannounced jumps, 0 disables (default: 0)
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/slr.track/internal/observation"
	"github.com/banshee-data/slr.track/internal/session"
	"github.com/banshee-data/slr.track/internal/telemetry"
	"github.com/banshee-data/slr.track/internal/trail"
	"github.com/banshee-data/slr.track/internal/visualiser"
)

const stationID = "synthetic-01"

func main() {
	addr := flag.String("addr", "localhost:50061", "Listen address")
	fps := flag.Float64("fps", 60, "Render rate in Hz")
	samples := flag.Float64("samples", 20, "Position samples per second")
	switchEvery := flag.Int("switch", 2000, "Samples per pass, 0 disables object switches")
	jumpEvery := flag.Int("jump", 0, "Samples between unannounced jumps, 0 disables")
	flag.Parse()

	log.Printf("Starting synthetic visualiser server on %s", *addr)
	log.Printf("Configuration: %.1f samples/s, %.1f Hz render, switch every %d, jump every %d",
		*samples, *fps, *switchEvery, *jumpEvery)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trailCfg := trail.DefaultConfig()
	registry := observation.NewRegistry(trail.StaticOptions{
		MinSpeed: trailCfg.MinSpeed,
		MaxSpeed: trailCfg.MaxSpeed,
		Opacity:  trailCfg.Opacity,
	}, nil)

	cfg := visualiser.DefaultConfig()
	cfg.ListenAddr = *addr
	publisher := visualiser.NewPublisher(cfg, nil)
	publisher.SetObservationSource(registry)
	if err := publisher.Start(); err != nil {
		log.Fatalf("Failed to start publisher: %v", err)
	}
	defer publisher.Stop()

	sess, err := session.New(session.Config{
		StationID:   stationID,
		Trail:       trailCfg,
		FrameRateHz: *fps,
		Registry:    registry,
		Publisher:   publisher,
	})
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	src := telemetry.NewSyntheticSource(stationID)
	src.Rate = *samples
	src.SwitchEvery = *switchEvery
	src.JumpEvery = *jumpEvery

	log.Printf("Server ready, waiting for connections...")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := src.Run(ctx, sess.Inbox()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Synthetic source stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Session error: %v", err)
		}
	}()
	wg.Wait()

	log.Printf("Shutting down...")
}
