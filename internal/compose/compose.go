// Package compose renders the circular overlay frame: it selects the
// content source for the current pointer position, blits the magnified
// source rectangle with nearest-neighbor sampling, and falls back to
// loading/error placeholders when content is unavailable. A frame
// render never panics out of the engine; every failure downgrades to a
// placeholder.
package compose

import (
	"image"
	"log/slog"
	"math"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/hazyhaar/loupe/internal/geom"
	"github.com/hazyhaar/loupe/internal/snapshot"
	"github.com/hazyhaar/loupe/internal/source"
)

// FrameState describes what a composed frame shows.
type FrameState string

const (
	StateOK      FrameState = "ok"
	StateLoading FrameState = "loading"
	StateError   FrameState = "error"
)

// Input is everything one frame needs: pointer state, fresh element
// rectangles, page metrics, and the cached rasters. SampleCanvas, when
// non-nil, fetches live pixels from the dynamic canvas element.
type Input struct {
	Pointer  geom.Point
	Canvas   source.Hit
	SVG      source.Hit
	Scroll   geom.Point
	Document geom.Size
	Page     *snapshot.Raster
	Region   *snapshot.Raster

	SampleCanvas func() (*snapshot.Raster, error)
}

// Result is a composed frame plus what it ended up showing.
type Result struct {
	Image  image.Image
	Source source.Kind
	State  FrameState
}

// Engine composes overlay frames into a reused drawing surface. It is
// not safe for concurrent use; the owner serializes frames with its
// draw-in-flight token.
type Engine struct {
	size   int
	zoom   float64
	srcLen float64
	dc     *gg.Context
	patch  *image.RGBA
	logger *slog.Logger
}

// NewEngine creates an Engine for an overlay of the given diameter and
// magnification factor.
func NewEngine(size int, zoom float64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		size:   size,
		zoom:   zoom,
		srcLen: geom.SourceSize(float64(size), zoom),
		dc:     gg.NewContext(size, size),
		patch:  image.NewRGBA(image.Rect(0, 0, size, size)),
		logger: logger,
	}
}

// Frame composes one overlay frame.
func (e *Engine) Frame(in Input) Result {
	kind := source.Select(in.Pointer, in.Canvas, in.SVG)

	raster, src, used, state := e.resolve(kind, in)
	switch state {
	case StateLoading:
		e.drawLoading()
		return Result{Image: e.dc.Image(), Source: used, State: StateLoading}
	case StateError:
		e.drawError()
		return Result{Image: e.dc.Image(), Source: used, State: StateError}
	}

	if !e.blit(raster, src) {
		e.drawError()
		return Result{Image: e.dc.Image(), Source: used, State: StateError}
	}
	e.compose()
	return Result{Image: e.dc.Image(), Source: used, State: StateOK}
}

// resolve picks the raster and source rectangle for the selected kind,
// falling through the source chain when a cache is not populated yet.
// The returned kind is the source actually drawn from.
func (e *Engine) resolve(kind source.Kind, in Input) (*snapshot.Raster, geom.Rect, source.Kind, FrameState) {
	if kind == source.DirectCanvas && in.SampleCanvas != nil {
		r, err := in.SampleCanvas()
		if err != nil {
			// Tainted canvas or a sampling failure: error placeholder,
			// never propagated to the page.
			e.logger.Debug("compose: canvas sample failed", "error", err)
			return nil, geom.Rect{}, kind, StateError
		}
		rect := in.Canvas.Rect
		if float64(r.Width) == rect.W && float64(r.Height) == rect.H {
			return r, geom.MapElement(in.Pointer, rect, e.srcLen), kind, StateOK
		}
		// Canvas backing store larger than its layout box.
		return r, geom.MapRegion(in.Pointer, rect, geom.Size{W: float64(r.Width), H: float64(r.Height)}, e.srcLen), kind, StateOK
	}

	if kind == source.SVGRegion && in.Region != nil {
		rs := geom.Size{W: float64(in.Region.Width), H: float64(in.Region.Height)}
		return in.Region, geom.MapRegion(in.Pointer, in.SVG.Rect, rs, e.srcLen), kind, StateOK
	}

	// Everything else samples the page raster, including the fall
	// through from an unpopulated region cache.
	if in.Page == nil {
		return nil, geom.Rect{}, source.FullPage, StateLoading
	}
	rs := geom.Size{W: float64(in.Page.Width), H: float64(in.Page.Height)}
	return in.Page, geom.MapPage(in.Pointer, in.Scroll, in.Document, rs, e.srcLen), source.FullPage, StateOK
}

// blit scales the source rectangle into the overlay patch with
// nearest-neighbor sampling. Reports false when sampling failed.
func (e *Engine) blit(r *snapshot.Raster, src geom.Rect) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("compose: blit panic", "panic", rec)
			ok = false
		}
	}()

	if r == nil || r.Image == nil {
		return false
	}
	sr := image.Rect(
		int(math.Round(src.X)),
		int(math.Round(src.Y)),
		int(math.Round(src.X+src.W)),
		int(math.Round(src.Y+src.H)),
	).Intersect(r.Image.Bounds())
	if sr.Empty() {
		return false
	}

	xdraw.NearestNeighbor.Scale(e.patch, e.patch.Bounds(), r.Image, sr, xdraw.Src, nil)
	return true
}

// compose draws the blitted patch into the circular surface with the
// border ring. The patch is applied as a fill pattern of the disc so
// the circular mask goes through the path rasterizer.
func (e *Engine) compose() {
	dc := e.dc
	c := float64(e.size) / 2

	dc.ClearWithColor(gg.Transparent)

	patch := gg.ImageBufFromImage(e.patch)
	dc.SetFillPattern(dc.CreateImagePattern(patch, 0, 0, e.size, e.size))
	dc.DrawCircle(c, c, c-1)
	_ = dc.Fill()

	e.ring()
}

// drawLoading renders the placeholder shown before the first page
// raster arrives: neutral disc with a centered hollow arc.
func (e *Engine) drawLoading() {
	dc := e.dc
	c := float64(e.size) / 2

	dc.ClearWithColor(gg.Transparent)
	dc.DrawCircle(c, c, c-1)
	dc.SetRGB(0.93, 0.93, 0.93)
	_ = dc.Fill()

	dc.DrawArc(c, c, float64(e.size)/8, 0, 1.5*math.Pi)
	dc.SetRGB(0.55, 0.55, 0.55)
	dc.SetLineWidth(3)
	_ = dc.Stroke()

	e.ring()
}

// drawError renders the placeholder for a failed blit: neutral disc
// with a muted cross.
func (e *Engine) drawError() {
	dc := e.dc
	c := float64(e.size) / 2
	arm := float64(e.size) / 8

	dc.ClearWithColor(gg.Transparent)
	dc.DrawCircle(c, c, c-1)
	dc.SetRGB(0.93, 0.93, 0.93)
	_ = dc.Fill()

	dc.SetRGB(0.75, 0.3, 0.3)
	dc.SetLineWidth(3)
	dc.DrawLine(c-arm, c-arm, c+arm, c+arm)
	_ = dc.Stroke()
	dc.DrawLine(c-arm, c+arm, c+arm, c-arm)
	_ = dc.Stroke()

	e.ring()
}

func (e *Engine) ring() {
	dc := e.dc
	c := float64(e.size) / 2
	dc.DrawCircle(c, c, c-1.5)
	dc.SetRGBA(0.2, 0.2, 0.2, 0.9)
	dc.SetLineWidth(3)
	_ = dc.Stroke()
}
