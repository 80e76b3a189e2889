package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/hazyhaar/loupe/internal/geom"
	"github.com/hazyhaar/loupe/internal/sink"
)

// ensureOverlayJS creates the overlay <img> once. It is fixed-position,
// circular, click-transparent, and starts hidden.
const ensureOverlayJS = `(id, x, y, size) => {
	let el = document.getElementById(id);
	if (!el) {
		el = document.createElement('img');
		el.id = id;
		document.body.appendChild(el);
	}
	const s = el.style;
	s.position = 'fixed';
	s.left = x + 'px';
	s.top = y + 'px';
	s.width = size + 'px';
	s.height = size + 'px';
	s.borderRadius = '50%';
	s.pointerEvents = 'none';
	s.userSelect = 'none';
	s.zIndex = '2147483647';
	s.display = 'none';
}`

// EnsureOverlay creates (or re-styles) the overlay element at pos with
// the given diameter. Safe to call repeatedly, e.g. after a resize.
func (h *Host) EnsureOverlay(ctx context.Context, pos geom.Point, size float64) error {
	_, err := h.tab.Page.Context(ctx).Eval(ensureOverlayJS, h.overlayID, pos.X, pos.Y, size)
	if err != nil {
		return fmt.Errorf("browser: ensure overlay: %w", err)
	}
	return nil
}

// PresentFrame updates the overlay element for one frame: image data
// when present, then visibility. An empty PNG toggles visibility only.
func (h *Host) PresentFrame(ctx context.Context, f sink.Frame) error {
	src := ""
	if len(f.PNG) > 0 {
		src = "data:image/png;base64," + base64.StdEncoding.EncodeToString(f.PNG)
	}
	_, err := h.tab.Page.Context(ctx).Eval(`(id, src, visible) => {
		const el = document.getElementById(id);
		if (!el) return;
		if (src) el.src = src;
		el.style.display = visible ? 'block' : 'none';
	}`, h.overlayID, src, f.Visible)
	if err != nil {
		return fmt.Errorf("browser: present frame: %w", err)
	}
	return nil
}

// RemoveOverlay deletes the overlay element from the page.
func (h *Host) RemoveOverlay(ctx context.Context) error {
	_, err := h.tab.Page.Context(ctx).Eval(`(id) => {
		const el = document.getElementById(id);
		if (el) el.remove();
	}`, h.overlayID)
	if err != nil {
		return fmt.Errorf("browser: remove overlay: %w", err)
	}
	return nil
}

// setOverlayHidden toggles visibility without touching display, so a
// capture can exclude the overlay while keeping its layout state.
// Errors are swallowed: a missing overlay is fine during capture.
func (h *Host) setOverlayHidden(ctx context.Context, hidden bool) {
	_, _ = h.tab.Page.Context(ctx).Eval(`(id, hidden) => {
		const el = document.getElementById(id);
		if (el) el.style.visibility = hidden ? 'hidden' : 'visible';
	}`, h.overlayID, hidden)
}

// OverlaySink presents frames on the page overlay. It is the primary
// sink of a magnifier.
type OverlaySink struct {
	host *Host
}

// NewOverlaySink wraps host as a frame sink.
func NewOverlaySink(host *Host) *OverlaySink {
	return &OverlaySink{host: host}
}

func (o *OverlaySink) SendFrame(ctx context.Context, f sink.Frame) error {
	return o.host.PresentFrame(ctx, f)
}

// Close removes the overlay element. The host itself is closed by its
// owner.
func (o *OverlaySink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return o.host.RemoveOverlay(ctx)
}
