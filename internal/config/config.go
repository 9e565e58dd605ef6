// Package config loads the slr-track service configuration. Every field is
// optional; the Get* accessors fall back to the built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/slr.track/internal/trail"
	"github.com/banshee-data/slr.track/internal/units"
)

// DefaultConfigPath is the location of the shipped example configuration,
// relative to the repository root.
const DefaultConfigPath = "config/slr-track.example.json"

// Source kinds accepted by the "source" key.
const (
	SourceWebSocket = "ws"
	SourceSerial    = "serial"
	SourceSynthetic = "synthetic"
)

// Config is the on-disk configuration of the tracking service.
type Config struct {
	// Trail geometry and colouring
	MaxArcLength     *float64 `json:"max_arc_length,omitempty"`
	MinSpeed         *float64 `json:"min_speed,omitempty"`
	MaxSpeed         *float64 `json:"max_speed,omitempty"`
	Opacity          *float64 `json:"opacity,omitempty"`
	SmoothSteps      *int     `json:"smooth_steps,omitempty"`
	MaxControlPoints *int     `json:"max_control_points,omitempty"`
	MaxSegmentJump   *float64 `json:"max_segment_jump,omitempty"`

	// Render loop
	FrameRateHz      *float64 `json:"frame_rate_hz,omitempty"`
	SampleQueueDepth *int     `json:"sample_queue_depth,omitempty"`

	// Listeners and storage
	GRPCListen      *string `json:"grpc_listen,omitempty"`
	HTTPListen      *string `json:"http_listen,omitempty"`
	DBPath          *string `json:"db_path,omitempty"`
	RecordPositions *bool   `json:"record_positions,omitempty"`
	ObservationsDir *string `json:"observations_dir,omitempty"`

	// Station feed
	Source     *string `json:"source,omitempty"`
	StationURL *string `json:"station_url,omitempty"`
	StationID  *string `json:"station_id,omitempty"`
	SerialPort *string `json:"serial_port,omitempty"`
	SerialBaud *int    `json:"serial_baud,omitempty"`
	AngleUnit  *string `json:"angle_unit,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }

// Empty returns a configuration with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads and validates a JSON configuration file. Only .json files up
// to 1MB are accepted.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set. The trail parameters are checked
// together after defaults are applied.
func (c *Config) Validate() error {
	if err := c.TrailConfig().Validate(); err != nil {
		return err
	}
	if c.FrameRateHz != nil {
		if v := *c.FrameRateHz; !(v > 0) || v > 1000 || math.IsInf(v, 0) {
			return fmt.Errorf("frame_rate_hz must be in (0, 1000], got %f", v)
		}
	}
	if c.SampleQueueDepth != nil && *c.SampleQueueDepth < 1 {
		return fmt.Errorf("sample_queue_depth must be at least 1, got %d", *c.SampleQueueDepth)
	}
	if c.SerialBaud != nil && *c.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", *c.SerialBaud)
	}
	if c.AngleUnit != nil && !units.IsValidAngle(*c.AngleUnit) {
		return fmt.Errorf("angle_unit must be one of %s, got %q", units.GetValidAngleUnitsString(), *c.AngleUnit)
	}
	switch src := c.GetSource(); src {
	case SourceWebSocket:
		if c.GetStationURL() == "" {
			return fmt.Errorf("source %q requires station_url", src)
		}
	case SourceSerial:
		if c.GetSerialPort() == "" {
			return fmt.Errorf("source %q requires serial_port", src)
		}
	case SourceSynthetic:
	default:
		return fmt.Errorf("unknown source %q (want %s, %s or %s)", src, SourceWebSocket, SourceSerial, SourceSynthetic)
	}
	return nil
}

// TrailConfig builds the per-trail parameters with defaults applied.
func (c *Config) TrailConfig() trail.Config {
	t := trail.DefaultConfig()
	if c.MaxArcLength != nil {
		t.MaxArcLength = *c.MaxArcLength
	}
	if c.MinSpeed != nil {
		t.MinSpeed = *c.MinSpeed
	}
	if c.MaxSpeed != nil {
		t.MaxSpeed = *c.MaxSpeed
	}
	if c.Opacity != nil {
		t.Opacity = *c.Opacity
	}
	if c.SmoothSteps != nil {
		t.SmoothSteps = *c.SmoothSteps
	}
	if c.MaxControlPoints != nil {
		t.MaxControlPoints = *c.MaxControlPoints
	}
	if c.MaxSegmentJump != nil {
		t.MaxSegmentJump = *c.MaxSegmentJump
	}
	return t
}

func (c *Config) GetFrameRateHz() float64 {
	if c.FrameRateHz == nil {
		return 60
	}
	return *c.FrameRateHz
}

func (c *Config) GetSampleQueueDepth() int {
	if c.SampleQueueDepth == nil {
		return 256
	}
	return *c.SampleQueueDepth
}

func (c *Config) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return "localhost:50061"
	}
	return *c.GRPCListen
}

func (c *Config) GetHTTPListen() string {
	if c.HTTPListen == nil {
		return "localhost:8090"
	}
	return *c.HTTPListen
}

// GetDBPath returns the SQLite path; empty disables persistence.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return "slr-track.db"
	}
	return *c.DBPath
}

func (c *Config) GetRecordPositions() bool {
	if c.RecordPositions == nil {
		return true
	}
	return *c.RecordPositions
}

func (c *Config) GetObservationsDir() string {
	if c.ObservationsDir == nil {
		return ""
	}
	return *c.ObservationsDir
}

// GetSource returns the configured feed, inferring it from the station URL
// or serial port when unset.
func (c *Config) GetSource() string {
	if c.Source != nil && *c.Source != "" {
		return strings.ToLower(*c.Source)
	}
	switch {
	case c.GetStationURL() != "":
		return SourceWebSocket
	case c.GetSerialPort() != "":
		return SourceSerial
	default:
		return SourceSynthetic
	}
}

func (c *Config) GetStationURL() string {
	if c.StationURL == nil {
		return ""
	}
	return *c.StationURL
}

func (c *Config) GetStationID() string {
	if c.StationID == nil || *c.StationID == "" {
		return "default"
	}
	return *c.StationID
}

func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

func (c *Config) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 115200
	}
	return *c.SerialBaud
}

func (c *Config) GetAngleUnit() string {
	if c.AngleUnit == nil {
		return units.Degrees
	}
	return *c.AngleUnit
}

// Set assigns one key from its string form, as used by command line
// overrides. Keys match the JSON names.
func (c *Config) Set(key, value string) error {
	var err error
	parseFloat := func() *float64 {
		v, e := strconv.ParseFloat(value, 64)
		if e != nil {
			err = fmt.Errorf("%s: invalid number %q: %w", key, value, e)
			return nil
		}
		return ptrFloat64(v)
	}
	parseInt := func() *int {
		v, e := strconv.Atoi(value)
		if e != nil {
			err = fmt.Errorf("%s: invalid integer %q: %w", key, value, e)
			return nil
		}
		return ptrInt(v)
	}

	switch key {
	case "max_arc_length":
		c.MaxArcLength = parseFloat()
	case "min_speed":
		c.MinSpeed = parseFloat()
	case "max_speed":
		c.MaxSpeed = parseFloat()
	case "opacity":
		c.Opacity = parseFloat()
	case "max_segment_jump":
		c.MaxSegmentJump = parseFloat()
	case "frame_rate_hz":
		c.FrameRateHz = parseFloat()
	case "smooth_steps":
		c.SmoothSteps = parseInt()
	case "max_control_points":
		c.MaxControlPoints = parseInt()
	case "sample_queue_depth":
		c.SampleQueueDepth = parseInt()
	case "serial_baud":
		c.SerialBaud = parseInt()
	case "record_positions":
		v, e := strconv.ParseBool(value)
		if e != nil {
			return fmt.Errorf("%s: invalid boolean %q: %w", key, value, e)
		}
		c.RecordPositions = ptrBool(v)
	case "grpc_listen":
		c.GRPCListen = ptrString(value)
	case "http_listen":
		c.HTTPListen = ptrString(value)
	case "db_path":
		c.DBPath = ptrString(value)
	case "observations_dir":
		c.ObservationsDir = ptrString(value)
	case "source":
		c.Source = ptrString(value)
	case "station_url":
		c.StationURL = ptrString(value)
	case "station_id":
		c.StationID = ptrString(value)
	case "serial_port":
		c.SerialPort = ptrString(value)
	case "angle_unit":
		c.AngleUnit = ptrString(value)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return err
}
