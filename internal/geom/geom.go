// Package geom provides the coordinate primitives and the pure
// pointer-to-source-rectangle mappings used by the magnifier. All
// functions are side-effect free so they can be tested without a page.
package geom

// Point is a position in some pixel space (viewport, document, element
// local, or raster).
type Point struct {
	X float64
	Y float64
}

// Size is a width/height pair in pixels.
type Size struct {
	W float64
	H float64
}

// Rect is an axis-aligned rectangle. X/Y is the top-left corner.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Contains reports whether p lies inside r. The right and bottom edges
// are exclusive, matching hit-testing against bounding boxes.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// clampAxis centers a span of length side on center and clamps it to
// [0, dim-side]. When the space is smaller than the span the origin is 0.
func clampAxis(center, side, dim float64) float64 {
	v := center - side/2
	max := dim - side
	if max < 0 {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
