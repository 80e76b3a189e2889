package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	var o Overlay
	o.ApplyDefaults()

	if o.Size != 200 || o.Zoom != 2 {
		t.Errorf("size/zoom defaults: %+v", o)
	}
	if o.Position.X != 20 || o.Position.Y != 20 {
		t.Errorf("position default: %+v", o.Position)
	}
	if o.ActivationMode != "drag" {
		t.Errorf("mode default: %q", o.ActivationMode)
	}
	if o.UpdateFrequency.MainSnapshotInterval != 16*time.Millisecond ||
		o.UpdateFrequency.RegionSnapshotInterval != 16*time.Millisecond ||
		o.UpdateFrequency.ResizeDebounce != 150*time.Millisecond {
		t.Errorf("frequency defaults: %+v", o.UpdateFrequency)
	}
	if o.CanvasID != "dynamic-canvas" || o.SVGID != "dynamic-svg" {
		t.Errorf("element id defaults: %+v", o)
	}
	if o.RegionScale != 2 {
		t.Errorf("region scale default: %v", o.RegionScale)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loupe.yaml")
	data := `
browser:
  headless: true
overlay:
  size: 300
  zoom: 3
  activation_mode: move
  update_frequency:
    resize_debounce: 250ms
pages:
  - id: demo
    url: https://example.com
preview:
  listen: 127.0.0.1:7171
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Overlay.Size != 300 || cfg.Overlay.Zoom != 3 {
		t.Errorf("overlay: %+v", cfg.Overlay)
	}
	if cfg.Overlay.ActivationMode != "move" {
		t.Errorf("mode: %q", cfg.Overlay.ActivationMode)
	}
	if cfg.Overlay.UpdateFrequency.ResizeDebounce != 250*time.Millisecond {
		t.Errorf("debounce: %v", cfg.Overlay.UpdateFrequency.ResizeDebounce)
	}
	// Untouched fields still get defaults.
	if cfg.Overlay.UpdateFrequency.MainSnapshotInterval != 16*time.Millisecond {
		t.Errorf("main interval: %v", cfg.Overlay.UpdateFrequency.MainSnapshotInterval)
	}
	if cfg.Preview.Listen != "127.0.0.1:7171" {
		t.Errorf("preview: %+v", cfg.Preview)
	}
}

func TestPosition_ExplicitZeroPreserved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loupe.yaml")
	data := `
overlay:
  position:
    x: 0
    y: 0
pages:
  - id: demo
    url: https://example.com
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	// A configured top-left corner must not be replaced by the default.
	if cfg.Overlay.Position.X != 0 || cfg.Overlay.Position.Y != 0 {
		t.Errorf("explicit {0,0} overridden: %+v", cfg.Overlay.Position)
	}
}

func TestValidate(t *testing.T) {
	o := Overlay{Size: 200, Zoom: 2, ActivationMode: "drag"}
	if err := o.Validate(); err != nil {
		t.Fatalf("valid overlay rejected: %v", err)
	}

	bad := []Overlay{
		{Size: 0, Zoom: 2, ActivationMode: "drag"},
		{Size: 200, Zoom: 0, ActivationMode: "drag"},
		{Size: 200, Zoom: 2, ActivationMode: "hover"},
	}
	for i, o := range bad {
		if err := o.Validate(); err == nil {
			t.Errorf("case %d: invalid overlay accepted: %+v", i, o)
		}
	}

	cfg := Config{Overlay: o, Pages: []Page{{ID: "x"}}}
	if err := cfg.Validate(); err == nil {
		t.Error("page without url accepted")
	}
}
