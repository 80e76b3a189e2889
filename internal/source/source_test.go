package source

import (
	"testing"

	"github.com/hazyhaar/loupe/internal/geom"
)

func TestSelect_Priority(t *testing.T) {
	canvas := Hit{Rect: geom.Rect{X: 0, Y: 0, W: 200, H: 200}, Present: true}
	svg := Hit{Rect: geom.Rect{X: 100, Y: 100, W: 200, H: 200}, Present: true}

	tests := []struct {
		name    string
		pointer geom.Point
		want    Kind
	}{
		{"canvas only", geom.Point{X: 50, Y: 50}, DirectCanvas},
		{"overlap prefers canvas", geom.Point{X: 150, Y: 150}, DirectCanvas},
		{"svg only", geom.Point{X: 250, Y: 250}, SVGRegion},
		{"neither", geom.Point{X: 500, Y: 500}, FullPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Select(tt.pointer, canvas, svg); got != tt.want {
				t.Errorf("Select: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelect_AbsentElements(t *testing.T) {
	p := geom.Point{X: 50, Y: 50}

	if got := Select(p, Hit{}, Hit{}); got != FullPage {
		t.Errorf("no elements: got %v, want FullPage", got)
	}

	svg := Hit{Rect: geom.Rect{X: 0, Y: 0, W: 100, H: 100}, Present: true}
	if got := Select(p, Hit{}, svg); got != SVGRegion {
		t.Errorf("canvas absent: got %v, want SVGRegion", got)
	}
}

func TestSelect_EmptyRectExcluded(t *testing.T) {
	// A present element with a zero-size layout box never matches.
	canvas := Hit{Rect: geom.Rect{X: 0, Y: 0, W: 0, H: 0}, Present: true}
	if got := Select(geom.Point{}, canvas, Hit{}); got != FullPage {
		t.Errorf("empty rect: got %v, want FullPage", got)
	}
}
