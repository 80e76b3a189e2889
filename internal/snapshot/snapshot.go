// Package snapshot owns the cached rasters the magnifier draws from:
// at most one full-page raster and at most one region raster for the
// designated dynamic SVG element. Captures are fire-and-forget and
// single-flight per raster kind; the draw path only ever observes a
// raster that is absent or fully decoded.
package snapshot

import (
	"context"
	"image"
	"log/slog"
	"sync"

	"github.com/hazyhaar/loupe/internal/sanitize"
)

// Raster is a captured bitmap plus its pixel dimensions and the scale
// it was captured at. Replaced wholesale on recapture, never mutated.
type Raster struct {
	Image  *image.RGBA
	Width  int
	Height int
	Scale  float64
}

// NewRaster wraps a decoded image. Any source image is converted to
// RGBA once here so the draw path never pays for per-pixel conversion.
func NewRaster(img image.Image, scale float64) *Raster {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				rgba.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	}
	if scale <= 0 {
		scale = 1
	}
	return &Raster{Image: rgba, Width: b.Dx(), Height: b.Dy(), Scale: scale}
}

// Rasterizer is the capture collaborator. CapturePage rasterizes the
// full document, invoking the pre-capture hook on a captured CSS
// document before the screenshot; CaptureRegion rasterizes the
// designated SVG element at the given scale.
type Rasterizer interface {
	CapturePage(ctx context.Context, pre func(*sanitize.Document)) (*Raster, error)
	CaptureRegion(ctx context.Context, scale float64) (*Raster, error)
}

// Cache holds the two rasters and their in-flight flags.
type Cache struct {
	mu              sync.Mutex
	page            *Raster
	region          *Raster
	capturingPage   bool
	capturingRegion bool
	disposed        bool

	rasterizer  Rasterizer
	pre         func(*sanitize.Document)
	regionScale float64
	logger      *slog.Logger
}

// NewCache creates a Cache. The pre-capture hook may be nil.
func NewCache(r Rasterizer, pre func(*sanitize.Document), regionScale float64, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if regionScale < 1 {
		regionScale = 1
	}
	return &Cache{rasterizer: r, pre: pre, regionScale: regionScale, logger: logger}
}

// Rasters returns the current page and region rasters, either of which
// may be nil. Whole-value reads: a raster is never partially written.
func (c *Cache) Rasters() (page, region *Raster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page, c.region
}

// RefreshPage starts a page capture unless one is already in flight.
// The caller never blocks on the capture; its result is stored (or
// dropped, after disposal) whenever it completes.
func (c *Cache) RefreshPage(ctx context.Context) {
	c.mu.Lock()
	if c.disposed || c.capturingPage {
		c.mu.Unlock()
		return
	}
	c.capturingPage = true
	c.mu.Unlock()

	go func() {
		r, err := c.rasterizer.CapturePage(ctx, c.pre)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.capturingPage = false
		if err != nil {
			// Previous raster stays in place.
			c.logger.Warn("snapshot: page capture failed", "error", err)
			return
		}
		if c.disposed {
			return
		}
		c.page = r
	}()
}

// RefreshRegion is RefreshPage for the designated SVG element,
// captured at the configured scale for magnification fidelity.
func (c *Cache) RefreshRegion(ctx context.Context) {
	c.mu.Lock()
	if c.disposed || c.capturingRegion {
		c.mu.Unlock()
		return
	}
	c.capturingRegion = true
	c.mu.Unlock()

	go func() {
		r, err := c.rasterizer.CaptureRegion(ctx, c.regionScale)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.capturingRegion = false
		if err != nil {
			c.logger.Warn("snapshot: region capture failed", "error", err)
			return
		}
		if c.disposed {
			return
		}
		c.region = r
	}()
}

// Dispose drops the rasters and makes the cache reject any capture
// result that is still in flight. In-flight captures are not cancelled;
// their callbacks complete and are discarded.
func (c *Cache) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposed = true
	c.page = nil
	c.region = nil
}
