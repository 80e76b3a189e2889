// Package loupe provides a circular magnifier overlay for live web
// pages, driven over the Chrome DevTools Protocol. It keeps cached
// rasters of the page and of a designated dynamic SVG element, samples
// a designated canvas element directly, and for every frame magnifies
// the content under the pointer into an injected overlay element.
//
// loupe renders, it does not interpret. Composed frames are delivered
// to sinks (the in-page overlay, an optional HTTP preview) as PNGs.
package loupe

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/loupe/internal/activation"
	"github.com/hazyhaar/loupe/internal/browser"
	"github.com/hazyhaar/loupe/internal/compose"
	"github.com/hazyhaar/loupe/internal/config"
	"github.com/hazyhaar/loupe/internal/geom"
	"github.com/hazyhaar/loupe/internal/sanitize"
	"github.com/hazyhaar/loupe/internal/sink"
	"github.com/hazyhaar/loupe/internal/snapshot"
	"github.com/hazyhaar/loupe/internal/source"
)

// Host is the page the magnifier is attached to. *browser.Host is the
// production implementation; tests substitute a fake.
type Host interface {
	// Metrics reads scroll offset, viewport size and document size.
	Metrics(ctx context.Context) (browser.Metrics, error)
	// ElementHit reads the viewport rect of the element with the given
	// id. Absence is Present=false, not an error.
	ElementHit(ctx context.Context, id string) (source.Hit, error)

	CapturePage(ctx context.Context, pre func(*sanitize.Document)) (*snapshot.Raster, error)
	CaptureRegion(ctx context.Context, id string, scale float64) (*snapshot.Raster, error)
	SampleCanvas(ctx context.Context, id string) (*snapshot.Raster, error)

	EnsureOverlay(ctx context.Context, pos geom.Point, size float64) error
	Events(ctx context.Context) (<-chan activation.Event, error)

	Close() error
}

// hostRasterizer adapts a Host to the snapshot capture interface by
// binding the region captures to the configured SVG element.
type hostRasterizer struct {
	host  Host
	svgID string
}

func (r hostRasterizer) CapturePage(ctx context.Context, pre func(*sanitize.Document)) (*snapshot.Raster, error) {
	return r.host.CapturePage(ctx, pre)
}

func (r hostRasterizer) CaptureRegion(ctx context.Context, scale float64) (*snapshot.Raster, error) {
	return r.host.CaptureRegion(ctx, r.svgID, scale)
}

// Magnifier is the per-page orchestrator: activation state machine,
// capture timers, frame composition and sink delivery all run through
// its single event loop. Create one per magnified page.
type Magnifier struct {
	cfg    config.Overlay
	host   Host
	cache  *snapshot.Cache
	engine *compose.Engine
	sinks  *sink.Router
	enc    png.Encoder
	logger *slog.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	seq     atomic.Uint64

	// svgPresent is the last observed presence of the dynamic SVG
	// element, written by the frame path and read by the capture
	// scheduling: region captures run only while the element exists.
	svgPresent atomic.Bool

	destroyOnce sync.Once
}

// New creates a Magnifier for one attached page. The overlay config is
// immutable for the magnifier's lifetime.
func New(overlay config.Overlay, logger *slog.Logger, host Host, sinks ...sink.Sink) *Magnifier {
	if logger == nil {
		logger = slog.Default()
	}
	overlay.ApplyDefaults()

	san := sanitize.New(logger)
	return &Magnifier{
		cfg:    overlay,
		host:   host,
		cache:  snapshot.NewCache(hostRasterizer{host: host, svgID: overlay.SVGID}, san.Apply, overlay.RegionScale, logger),
		engine: compose.NewEngine(overlay.Size, overlay.Zoom, logger),
		sinks:  sink.NewRouter(logger, sinks...),
		enc:    png.Encoder{CompressionLevel: png.BestSpeed},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start injects the overlay and input listeners, takes the initial page
// snapshot and runs the event loop until ctx is cancelled or Destroy is
// called.
func (m *Magnifier) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	pos := geom.Point{X: float64(m.cfg.Position.X), Y: float64(m.cfg.Position.Y)}
	if err := m.host.EnsureOverlay(ctx, pos, float64(m.cfg.Size)); err != nil {
		return fmt.Errorf("loupe: ensure overlay: %w", err)
	}

	events, err := m.host.Events(ctx)
	if err != nil {
		return fmt.Errorf("loupe: attach input events: %w", err)
	}

	// Initial snapshot so the first activation has something to show.
	m.cache.RefreshPage(ctx)

	m.started = true
	go m.loop(ctx, events)

	m.logger.Info("loupe: magnifier started",
		"size", m.cfg.Size, "zoom", m.cfg.Zoom, "mode", m.cfg.ActivationMode)
	return nil
}

// Destroy tears the magnifier down: stops the loop, disposes the raster
// cache so late capture results are dropped, and closes sinks and host.
// Idempotent.
func (m *Magnifier) Destroy() {
	m.destroyOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.cache.Dispose()
		if m.started {
			select {
			case <-m.done:
			case <-time.After(2 * time.Second):
				m.logger.Warn("loupe: loop did not stop in time")
			}
		}
		if err := m.sinks.Close(); err != nil {
			m.logger.Warn("loupe: close sinks", "error", err)
		}
		if err := m.host.Close(); err != nil {
			m.logger.Warn("loupe: close host", "error", err)
		}
		m.logger.Info("loupe: magnifier destroyed")
	})
}

// loop is the single owner of activation state and frame scheduling.
// Captures and frame renders are fire-and-forget goroutines; renders
// are additionally serialized by the drawBusy token so at most one
// frame is in flight.
func (m *Magnifier) loop(ctx context.Context, events <-chan activation.Event) {
	defer close(m.done)

	mode := activation.ParseMode(m.cfg.ActivationMode)
	state := activation.State{}
	uf := m.cfg.UpdateFrequency

	frame := time.NewTicker(uf.FrameInterval)
	defer frame.Stop()

	// Capture tickers exist only while the overlay is active. A nil
	// channel never fires in the select.
	var (
		pageTick *time.Ticker
		pageC    <-chan time.Time
		regionT  *time.Ticker
		regionC  <-chan time.Time
		resizeT  *time.Timer
		resizeC  <-chan time.Time
		drawBusy bool
	)
	drawDone := make(chan struct{}, 1)
	defer func() {
		if pageTick != nil {
			pageTick.Stop()
		}
		if regionT != nil {
			regionT.Stop()
		}
		if resizeT != nil {
			resizeT.Stop()
		}
	}()

	startCapture := func() {
		if pageTick == nil {
			pageTick = time.NewTicker(uf.MainSnapshotInterval)
			pageC = pageTick.C
		}
		if regionT == nil {
			regionT = time.NewTicker(uf.RegionSnapshotInterval)
			regionC = regionT.C
		}
		// Kick immediately; the tickers keep the rasters fresh.
		m.cache.RefreshPage(ctx)
		if m.svgPresent.Load() {
			m.cache.RefreshRegion(ctx)
		}
	}
	stopCapture := func() {
		if pageTick != nil {
			pageTick.Stop()
			pageTick, pageC = nil, nil
		}
		if regionT != nil {
			regionT.Stop()
			regionT, regionC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Layout() {
				// Debounced: bursts of resize/scroll events collapse
				// into one recapture after the page settles. Runs
				// regardless of activation state.
				if resizeT == nil {
					resizeT = time.NewTimer(uf.ResizeDebounce)
					resizeC = resizeT.C
				} else {
					if !resizeT.Stop() {
						select {
						case <-resizeC:
						default:
						}
					}
					resizeT.Reset(uf.ResizeDebounce)
				}
				continue
			}

			var effects []activation.Effect
			state, effects = activation.Transition(mode, state, ev)
			for _, ef := range effects {
				switch ef {
				case activation.EffectShow:
					m.sendVisibility(ctx, true)
				case activation.EffectHide:
					m.sendVisibility(ctx, false)
				case activation.EffectStartCapture:
					startCapture()
				case activation.EffectStopCapture:
					stopCapture()
				}
			}

		case <-resizeC:
			resizeT, resizeC = nil, nil
			m.cache.RefreshPage(ctx)

		case <-pageC:
			m.cache.RefreshPage(ctx)

		case <-regionC:
			// A page without the dynamic SVG gets no region round-trips.
			if m.svgPresent.Load() {
				m.cache.RefreshRegion(ctx)
			}

		case <-frame.C:
			if state.Phase != activation.PhaseActive || drawBusy {
				continue
			}
			drawBusy = true
			st := state
			go func() {
				m.renderFrame(ctx, st)
				drawDone <- struct{}{}
			}()

		case <-drawDone:
			drawBusy = false
		}
	}
}

// renderFrame gathers fresh geometry, composes one frame and sends it.
// Runs outside the loop goroutine; the engine is safe because frames
// are serialized by the drawBusy token.
func (m *Magnifier) renderFrame(ctx context.Context, st activation.State) {
	met, err := m.host.Metrics(ctx)
	if err != nil {
		m.logger.Warn("loupe: read metrics", "error", err)
		return
	}
	canvas, err := m.host.ElementHit(ctx, m.cfg.CanvasID)
	if err != nil {
		m.logger.Debug("loupe: canvas rect", "error", err)
		canvas = source.Hit{}
	}
	svg, err := m.host.ElementHit(ctx, m.cfg.SVGID)
	if err != nil {
		m.logger.Debug("loupe: svg rect", "error", err)
		svg = source.Hit{}
	}
	m.svgPresent.Store(svg.Present)

	page, region := m.cache.Rasters()
	res := m.engine.Frame(compose.Input{
		Pointer:  st.Pointer,
		Canvas:   canvas,
		SVG:      svg,
		Scroll:   met.Scroll,
		Document: met.Document,
		Page:     page,
		Region:   region,
		SampleCanvas: func() (*snapshot.Raster, error) {
			return m.host.SampleCanvas(ctx, m.cfg.CanvasID)
		},
	})

	var buf bytes.Buffer
	if err := m.enc.Encode(&buf, res.Image); err != nil {
		m.logger.Warn("loupe: encode frame", "error", err)
		return
	}
	_ = m.sinks.SendFrame(ctx, sink.Frame{
		PNG:      buf.Bytes(),
		Visible:  true,
		Source:   res.Source.String(),
		State:    string(res.State),
		Mode:     m.cfg.ActivationMode,
		PointerX: st.Pointer.X,
		PointerY: st.Pointer.Y,
		Seq:      m.seq.Add(1),
	})
}

// sendVisibility delivers a visibility-only frame (no image payload).
func (m *Magnifier) sendVisibility(ctx context.Context, visible bool) {
	_ = m.sinks.SendFrame(ctx, sink.Frame{
		Visible: visible,
		Mode:    m.cfg.ActivationMode,
		Seq:     m.seq.Add(1),
	})
}
