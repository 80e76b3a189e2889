package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/loupe/internal/geom"
	"github.com/hazyhaar/loupe/internal/source"
)

// Metrics is a point-in-time reading of the page's scroll position and
// dimensions, taken in one Eval so the values are mutually consistent.
type Metrics struct {
	Scroll   geom.Point
	Viewport geom.Size
	Document geom.Size
}

// Host exposes everything the magnifier needs from the attached page:
// geometry queries, screenshot capture, canvas pixel sampling, input
// event delivery and the overlay element.
type Host struct {
	tab       *Tab
	overlayID string
	logger    *slog.Logger
}

// NewHost wraps an attached tab.
func NewHost(tab *Tab, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		tab:       tab,
		overlayID: "loupe-overlay",
		logger:    logger,
	}
}

// Tab returns the underlying tab.
func (h *Host) Tab() *Tab { return h.tab }

// Metrics reads scroll offset, viewport size and document size.
func (h *Host) Metrics(ctx context.Context) (Metrics, error) {
	res, err := h.tab.Page.Context(ctx).Eval(`() => ({
		sx: window.scrollX,
		sy: window.scrollY,
		vw: window.innerWidth,
		vh: window.innerHeight,
		dw: document.documentElement.scrollWidth,
		dh: document.documentElement.scrollHeight,
	})`)
	if err != nil {
		return Metrics{}, fmt.Errorf("browser: read metrics: %w", err)
	}
	v := res.Value
	return Metrics{
		Scroll:   geom.Point{X: v.Get("sx").Num(), Y: v.Get("sy").Num()},
		Viewport: geom.Size{W: v.Get("vw").Num(), H: v.Get("vh").Num()},
		Document: geom.Size{W: v.Get("dw").Num(), H: v.Get("dh").Num()},
	}, nil
}

// ElementHit reads the viewport-space bounding rect of the element with
// the given id. A missing element yields Present=false, not an error.
func (h *Host) ElementHit(ctx context.Context, id string) (source.Hit, error) {
	res, err := h.tab.Page.Context(ctx).Eval(`(id) => {
		const el = document.getElementById(id);
		if (!el) return { found: false, x: 0, y: 0, w: 0, h: 0 };
		const r = el.getBoundingClientRect();
		return { found: true, x: r.x, y: r.y, w: r.width, h: r.height };
	}`, id)
	if err != nil {
		return source.Hit{}, fmt.Errorf("browser: element rect %s: %w", id, err)
	}
	v := res.Value
	if !v.Get("found").Bool() {
		return source.Hit{}, nil
	}
	return source.Hit{
		Present: true,
		Rect: geom.Rect{
			X: v.Get("x").Num(),
			Y: v.Get("y").Num(),
			W: v.Get("w").Num(),
			H: v.Get("h").Num(),
		},
	}, nil
}

// Close closes the tab. The browser itself belongs to the Manager.
func (h *Host) Close() error {
	return h.tab.Close()
}
