// Command slr-track follows a laser ranging station's target and streams
// the rendered trail to visualiser clients.
//
// Usage:
//
//	slr-track [flags]
//
// Flags:
//
//	-config        JSON configuration file (optional)
//	-source        Station feed: ws, serial or synthetic
//	-station-url   WebSocket URL of the station telemetry feed
//	-station-id    Station identifier stamped on every frame
//	-serial-port   Serial device of the mount controller
//	-grpc-listen   Visualiser gRPC listen address
//	-http-listen   Monitor HTTP listen address
//	-db-path       SQLite database path
//	-version       Print version and exit
//
// Any flag given explicitly overrides the value from -config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/slr.track/internal/config"
	"github.com/banshee-data/slr.track/internal/db"
	"github.com/banshee-data/slr.track/internal/monitor"
	"github.com/banshee-data/slr.track/internal/monitoring"
	"github.com/banshee-data/slr.track/internal/observation"
	"github.com/banshee-data/slr.track/internal/serialmux"
	"github.com/banshee-data/slr.track/internal/session"
	"github.com/banshee-data/slr.track/internal/telemetry"
	"github.com/banshee-data/slr.track/internal/trail"
	"github.com/banshee-data/slr.track/internal/units"
	"github.com/banshee-data/slr.track/internal/version"
	"github.com/banshee-data/slr.track/internal/visualiser"
)

var (
	configFile  = flag.String("config", "", "Path to JSON configuration file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// overrides maps flag names to configuration keys.
var overrides = map[string]string{
	"source":       "source",
	"station-url":  "station_url",
	"station-id":   "station_id",
	"serial-port":  "serial_port",
	"serial-baud":  "serial_baud",
	"angle-unit":   "angle_unit",
	"grpc-listen":  "grpc_listen",
	"http-listen":  "http_listen",
	"db-path":      "db_path",
	"frame-rate":   "frame_rate_hz",
	"observations": "observations_dir",
}

func init() {
	flag.String("source", config.SourceSynthetic, "Station feed: ws, serial or synthetic")
	flag.String("station-url", "", "WebSocket URL of the station telemetry feed")
	flag.String("station-id", "default", "Station identifier")
	flag.String("serial-port", "", "Serial device of the mount controller")
	flag.Int("serial-baud", serialmux.DefaultBaudRate, "Serial baud rate")
	flag.String("angle-unit", units.Degrees, "Angle unit of serial station lines (deg or rad)")
	flag.String("grpc-listen", "localhost:50061", "Visualiser gRPC listen address")
	flag.String("http-listen", "localhost:8090", "Monitor HTTP listen address")
	flag.String("db-path", "slr-track.db", "SQLite database path")
	flag.Float64("frame-rate", 60, "Render loop rate in Hz")
	flag.String("observations", "", "Directory of observation files loaded at startup")

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if os.Getenv("SLR_TRACK_QUIET") != "" {
		monitoring.SetLogger(nil)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Empty()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	var setErr error
	flag.Visit(func(f *flag.Flag) {
		key, ok := overrides[f.Name]
		if !ok || setErr != nil {
			return
		}
		setErr = cfg.Set(key, f.Value.String())
	})
	if setErr != nil {
		return nil, setErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("slr-track %s", version.Get())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, err := monitoring.NewTrackCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	// An empty db_path runs without persistence.
	var database *db.DB
	var store observation.Store
	if path := cfg.GetDBPath(); path != "" {
		database, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
		store = database
	}

	trailCfg := cfg.TrailConfig()
	registry := observation.NewRegistry(trail.StaticOptions{
		MinSpeed: trailCfg.MinSpeed,
		MaxSpeed: trailCfg.MaxSpeed,
		Opacity:  trailCfg.Opacity,
	}, store)
	if n, err := registry.LoadStore(); err != nil {
		log.Printf("Failed to restore observation sets: %v", err)
	} else if n > 0 {
		log.Printf("Restored %d observation sets", n)
	}
	if dir := cfg.GetObservationsDir(); dir != "" {
		sets, err := registry.LoadDir(dir)
		if err != nil {
			log.Printf("Failed to load observations from %s: %v", dir, err)
		} else {
			log.Printf("Loaded %d observation sets from %s", len(sets), dir)
		}
	}

	pubCfg := visualiser.DefaultConfig()
	pubCfg.ListenAddr = cfg.GetGRPCListen()
	publisher := visualiser.NewPublisher(pubCfg, metrics)
	publisher.SetObservationSource(registry)
	if err := publisher.Start(); err != nil {
		log.Fatalf("Failed to start visualiser publisher: %v", err)
	}
	defer publisher.Stop()

	sessCfg := session.Config{
		StationID:   cfg.GetStationID(),
		Trail:       trailCfg,
		FrameRateHz: cfg.GetFrameRateHz(),
		QueueDepth:  cfg.GetSampleQueueDepth(),
		Registry:    registry,
		Publisher:   publisher,
		Metrics:     metrics,
	}
	if database != nil && cfg.GetRecordPositions() {
		sessCfg.Positions = database
	}
	sess, err := session.New(sessCfg)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	monitorServer := monitor.NewServer(monitor.Config{
		Registry: registry,
		Sessions: []monitor.SessionView{sess},
		Metrics:  metrics,
	})
	if database != nil {
		if err := database.AttachAdminRoutes(monitorServer.Mux()); err != nil {
			log.Fatalf("Failed to attach database admin routes: %v", err)
		}
	}

	var wg sync.WaitGroup

	source, closeSource, err := openSource(ctx, cfg, metrics, monitorServer, &wg)
	if err != nil {
		log.Fatalf("Failed to open station feed: %v", err)
	}
	defer closeSource()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Reading station feed from %s", source.Name())
		if err := source.Run(ctx, sess.Inbox()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Station feed ended: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Session error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := monitorServer.Start(ctx, cfg.GetHTTPListen()); err != nil {
			log.Printf("Monitor server error: %v", err)
			stop()
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// stationSource is the part of the telemetry sources main needs.
type stationSource interface {
	Name() string
	Run(ctx context.Context, out chan<- telemetry.Message) error
}

// openSource builds the configured feed and mounts the serial admin routes.
// For serial feeds it also starts the port monitor.
func openSource(ctx context.Context, cfg *config.Config, metrics *monitoring.TrackCollector, srv *monitor.Server, wg *sync.WaitGroup) (stationSource, func(), error) {
	station := cfg.GetStationID()
	switch cfg.GetSource() {
	case config.SourceWebSocket:
		src := telemetry.NewWSSource(cfg.GetStationURL(), station)
		src.Metrics = metrics
		serialmux.NewDisabledSerialMux("station feed is " + src.Name()).AttachAdminRoutes(srv.Mux())
		return src, func() {}, nil

	case config.SourceSerial:
		mux, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), serialmux.PortOptions{BaudRate: cfg.GetSerialBaud()})
		if err != nil {
			return nil, nil, err
		}
		mux.AttachAdminRoutes(srv.Mux())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Serial monitor error: %v", err)
			}
		}()
		src := telemetry.NewSerialSource(mux, station)
		src.AngleUnit = cfg.GetAngleUnit()
		src.Metrics = metrics
		closer := func() {
			if err := mux.Close(); err != nil {
				log.Printf("Failed to close serial port: %v", err)
			}
		}
		return src, closer, nil

	default:
		src := telemetry.NewSyntheticSource(station)
		serialmux.NewDisabledSerialMux("station feed is " + src.Name()).AttachAdminRoutes(srv.Mux())
		return src, func() {}, nil
	}
}

