package geom

// SourceSize returns the side of the square source rectangle for an
// overlay of the given diameter and magnification factor.
func SourceSize(size, zoom float64) float64 {
	return size / zoom
}

// MapElement maps a viewport pointer position to a source rectangle in
// the element's own coordinate space. The rectangle is centered on the
// pointer and never extends outside the element's bounding box.
func MapElement(pointer Point, element Rect, sourceSize float64) Rect {
	local := Point{X: pointer.X - element.X, Y: pointer.Y - element.Y}
	return Rect{
		X: clampAxis(local.X, sourceSize, element.W),
		Y: clampAxis(local.Y, sourceSize, element.H),
		W: sourceSize,
		H: sourceSize,
	}
}

// MapRegion maps a viewport pointer position to a source rectangle in a
// cached region raster. Element-local coordinates are scaled by the
// raster/element size ratio before centering; the rectangle keeps the
// source-size side, so a raster captured at scale >1 yields a sharper,
// tighter magnification. Clamping is against the raster's dimensions.
func MapRegion(pointer Point, element Rect, raster Size, sourceSize float64) Rect {
	local := Point{
		X: (pointer.X - element.X) * (raster.W / element.W),
		Y: (pointer.Y - element.Y) * (raster.H / element.H),
	}
	return Rect{
		X: clampAxis(local.X, sourceSize, raster.W),
		Y: clampAxis(local.Y, sourceSize, raster.H),
		W: sourceSize,
		H: sourceSize,
	}
}

// MapPage maps a viewport pointer position to a source rectangle in the
// full-page raster. The pointer is converted to absolute document
// coordinates by adding the current scroll offset, then scaled by the
// raster/document size ratio to account for a capture taken at a
// different size than the live document.
func MapPage(pointer, scroll Point, document, raster Size, sourceSize float64) Rect {
	abs := Point{
		X: (pointer.X + scroll.X) * (raster.W / document.W),
		Y: (pointer.Y + scroll.Y) * (raster.H / document.H),
	}
	return Rect{
		X: clampAxis(abs.X, sourceSize, raster.W),
		Y: clampAxis(abs.Y, sourceSize, raster.H),
		W: sourceSize,
		H: sourceSize,
	}
}
