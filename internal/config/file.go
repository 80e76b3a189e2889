// Package config handles loupe configuration from YAML files or SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level loupe configuration.
type Config struct {
	Browser Browser `yaml:"browser"`
	Overlay Overlay `yaml:"overlay"`
	Pages   []Page  `yaml:"pages"`
	Preview Preview `yaml:"preview"`
}

// Browser controls how Chrome is reached.
type Browser struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	Remote   string `yaml:"remote"`
	Headless bool   `yaml:"headless"`
	Stealth  bool   `yaml:"stealth"`
}

// Overlay is the magnifier configuration. Immutable once a magnifier
// has been constructed from it.
type Overlay struct {
	// Size is the overlay diameter in pixels.
	Size int `yaml:"size"`
	// Zoom is the magnification factor.
	Zoom float64 `yaml:"zoom"`
	// Position is the fixed screen offset of the overlay. A pointer so
	// an explicit {0,0} is distinguishable from unset.
	Position *Position `yaml:"position"`
	// ActivationMode is "drag" or "move".
	ActivationMode string `yaml:"activation_mode"`

	UpdateFrequency UpdateFrequency `yaml:"update_frequency"`

	// CanvasID and SVGID are the well-known ids of the dynamic
	// elements eligible for live sampling. Their absence on the page
	// degrades gracefully to page-raster-only behaviour.
	CanvasID string `yaml:"canvas_id"`
	SVGID    string `yaml:"svg_id"`

	// RegionScale is the capture scale for the SVG region raster, >= 1.
	RegionScale float64 `yaml:"region_scale"`
}

// Position is a fixed screen offset in pixels.
type Position struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// UpdateFrequency groups the periodic capture and debounce intervals.
type UpdateFrequency struct {
	MainSnapshotInterval   time.Duration `yaml:"main_snapshot_interval"`
	RegionSnapshotInterval time.Duration `yaml:"region_snapshot_interval"`
	ResizeDebounce         time.Duration `yaml:"resize_debounce"`
	FrameInterval          time.Duration `yaml:"frame_interval"`
}

// Page is one page to magnify.
type Page struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// Preview configures the optional HTTP preview endpoint.
type Preview struct {
	Listen string `yaml:"listen"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	c.Overlay.ApplyDefaults()
}

// ApplyDefaults fills zero values with the documented defaults.
func (o *Overlay) ApplyDefaults() {
	if o.Size <= 0 {
		o.Size = 200
	}
	if o.Zoom <= 0 {
		o.Zoom = 2
	}
	if o.Position == nil {
		o.Position = &Position{X: 20, Y: 20}
	}
	if o.ActivationMode == "" {
		o.ActivationMode = "drag"
	}
	if o.UpdateFrequency.MainSnapshotInterval <= 0 {
		o.UpdateFrequency.MainSnapshotInterval = 16 * time.Millisecond
	}
	if o.UpdateFrequency.RegionSnapshotInterval <= 0 {
		o.UpdateFrequency.RegionSnapshotInterval = 16 * time.Millisecond
	}
	if o.UpdateFrequency.ResizeDebounce <= 0 {
		o.UpdateFrequency.ResizeDebounce = 150 * time.Millisecond
	}
	if o.UpdateFrequency.FrameInterval <= 0 {
		o.UpdateFrequency.FrameInterval = 16 * time.Millisecond
	}
	if o.CanvasID == "" {
		o.CanvasID = "dynamic-canvas"
	}
	if o.SVGID == "" {
		o.SVGID = "dynamic-svg"
	}
	if o.RegionScale < 1 {
		o.RegionScale = 2
	}
}

// Validate rejects configurations the magnifier cannot run with.
func (c *Config) Validate() error {
	if err := c.Overlay.Validate(); err != nil {
		return err
	}
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %q has no url", p.ID)
		}
	}
	return nil
}

// Validate rejects overlay settings the magnifier cannot run with.
func (o *Overlay) Validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("config: overlay size must be positive, got %d", o.Size)
	}
	if o.Zoom <= 0 {
		return fmt.Errorf("config: zoom must be positive, got %v", o.Zoom)
	}
	if o.ActivationMode != "drag" && o.ActivationMode != "move" {
		return fmt.Errorf("config: unknown activation mode %q", o.ActivationMode)
	}
	return nil
}
