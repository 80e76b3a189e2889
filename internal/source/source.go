// Package source decides, for a single frame, which content source the
// magnifier samples: the live canvas, the cached SVG region raster, or
// the cached full-page raster.
package source

import "github.com/hazyhaar/loupe/internal/geom"

// Kind identifies a content source.
type Kind int

const (
	// FullPage samples the cached full-page raster.
	FullPage Kind = iota
	// DirectCanvas samples pixels straight from the live canvas element.
	DirectCanvas
	// SVGRegion samples the cached high-scale raster of the SVG element.
	SVGRegion
)

// String returns the wire/log name of the source kind.
func (k Kind) String() string {
	switch k {
	case DirectCanvas:
		return "canvas"
	case SVGRegion:
		return "svg"
	default:
		return "page"
	}
}

// Hit is the bounding rectangle of a designated element, if present.
// Absent elements are simply excluded from consideration.
type Hit struct {
	Rect    geom.Rect
	Present bool
}

// Select hit-tests the pointer against the designated canvas and SVG
// rectangles. Canvas wins over SVG, SVG wins over the page, when the
// rectangles overlap.
func Select(pointer geom.Point, canvas, svg Hit) Kind {
	if canvas.Present && !canvas.Rect.Empty() && canvas.Rect.Contains(pointer) {
		return DirectCanvas
	}
	if svg.Present && !svg.Rect.Empty() && svg.Rect.Contains(pointer) {
		return SVGRegion
	}
	return FullPage
}
