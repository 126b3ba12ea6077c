package config

import (
	"encoding/json"
	"os"
)

// Dispatch policies understood by the trigger dispatcher.
const (
	DispatchOverlap = "overlap"
	DispatchDrop    = "drop"
	DispatchQueue   = "queue"
)

// Capture backends.
const (
	BackendVova    = "vova"
	BackendDisplay = "display"
	BackendGDI     = "gdi"
)

const (
	minPollIntervalMs = 20
	maxPollIntervalMs = 200
)

// Region is the watched screen rectangle in virtual-screen coordinates.
type Region struct {
	X      int `json:"x" mapstructure:"x"`
	Y      int `json:"y" mapstructure:"y"`
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// Config holds runtime configuration for marker detection and app behavior.
// Fields may be loaded from a JSON file and overridden by command-line flags.
type Config struct {
	Debug   bool   `json:"debug" mapstructure:"debug"`
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Region  Region `json:"region" mapstructure:"region"`
	// Empty means the bundled marker.
	MarkerPath string `json:"marker_path" mapstructure:"marker_path"`

	// Scheduling
	PollIntervalMs int `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	DeepScanEvery  int `json:"deep_scan_every" mapstructure:"deep_scan_every"`
	MissTolerance  int `json:"miss_tolerance" mapstructure:"miss_tolerance"`

	// Matching
	ColorTolerance int       `json:"color_tolerance" mapstructure:"color_tolerance"`
	MatchThreshold float64   `json:"match_threshold" mapstructure:"match_threshold"`
	ScanStep       int       `json:"scan_step" mapstructure:"scan_step"`
	SampleStep     int       `json:"sample_step" mapstructure:"sample_step"`
	QuickAlpha     int       `json:"quick_alpha" mapstructure:"quick_alpha"`
	OpaqueAlpha    int       `json:"opaque_alpha" mapstructure:"opaque_alpha"`
	Scales         []float64 `json:"scales" mapstructure:"scales"`
	MinScalePx     int       `json:"min_scale_px" mapstructure:"min_scale_px"`

	CaptureBackend      string `json:"capture_backend" mapstructure:"capture_backend"`
	SkipUnchangedFrames bool   `json:"skip_unchanged_frames" mapstructure:"skip_unchanged_frames"`

	// Trigger hand-off
	DispatchPolicy   string   `json:"dispatch_policy" mapstructure:"dispatch_policy"`
	DispatchQueue    int      `json:"dispatch_queue" mapstructure:"dispatch_queue"`
	TriggerCommand   []string `json:"trigger_command" mapstructure:"trigger_command"`
	TriggerTimeoutMs int      `json:"trigger_timeout_ms" mapstructure:"trigger_timeout_ms"`
	TriggerKey       string   `json:"trigger_key" mapstructure:"trigger_key"`

	// Empty disables the status server.
	StatusAddr string `json:"status_addr" mapstructure:"status_addr"`
}

// DefaultScales returns the standard deep-scan candidates around 1.0.
func DefaultScales() []float64 {
	return []float64{0.70, 0.75, 0.80, 0.90, 0.95, 1.05, 1.10, 1.20, 1.25, 1.30}
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:            false,
		Enabled:          true,
		Region:           Region{X: 0, Y: 0, Width: 120, Height: 40},
		PollIntervalMs:   20,
		DeepScanEvery:    5,
		MissTolerance:    5,
		ColorTolerance:   70,
		MatchThreshold:   0.75,
		ScanStep:         2,
		SampleStep:       2,
		QuickAlpha:       10,
		OpaqueAlpha:      20,
		Scales:           DefaultScales(),
		MinScalePx:       5,
		CaptureBackend:   BackendVova,
		DispatchPolicy:   DispatchDrop,
		DispatchQueue:    4,
		TriggerTimeoutMs: 30000,
		StatusAddr:       "",
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	if c.PollIntervalMs < minPollIntervalMs {
		c.PollIntervalMs = minPollIntervalMs
	}
	if c.PollIntervalMs > maxPollIntervalMs {
		c.PollIntervalMs = maxPollIntervalMs
	}
	if c.DeepScanEvery <= 0 {
		c.DeepScanEvery = 5
	}
	if c.MissTolerance < 0 {
		c.MissTolerance = 5
	}
	if c.ColorTolerance < 0 || c.ColorTolerance > 255 {
		c.ColorTolerance = 70
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		c.MatchThreshold = 0.75
	}
	if c.ScanStep <= 0 {
		c.ScanStep = 2
	}
	if c.SampleStep <= 0 {
		c.SampleStep = 2
	}
	if c.QuickAlpha < 0 || c.QuickAlpha > 255 {
		c.QuickAlpha = 10
	}
	if c.OpaqueAlpha < 0 || c.OpaqueAlpha > 255 {
		c.OpaqueAlpha = 20
	}
	if len(c.Scales) == 0 {
		c.Scales = DefaultScales()
	}
	valid := c.Scales[:0:0]
	for _, s := range c.Scales {
		if s > 0 {
			valid = append(valid, s)
		}
	}
	c.Scales = valid
	if c.MinScalePx <= 0 {
		c.MinScalePx = 5
	}
	switch c.CaptureBackend {
	case BackendVova, BackendDisplay, BackendGDI:
	default:
		c.CaptureBackend = BackendVova
	}
	switch c.DispatchPolicy {
	case DispatchOverlap, DispatchDrop, DispatchQueue:
	default:
		c.DispatchPolicy = DispatchDrop
	}
	if c.DispatchQueue <= 0 {
		c.DispatchQueue = 4
	}
	if c.TriggerTimeoutMs <= 0 {
		c.TriggerTimeoutMs = 30000
	}
	if c.Region.Width < 0 {
		c.Region.Width = 0
	}
	if c.Region.Height < 0 {
		c.Region.Height = 0
	}
	return nil
}

// Clone returns a deep copy so readers never observe a half-applied reload.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Scales = append([]float64(nil), c.Scales...)
	out.TriggerCommand = append([]string(nil), c.TriggerCommand...)
	return &out
}

// Load attempts to read configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). On JSON error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
