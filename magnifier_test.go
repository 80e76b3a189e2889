package loupe

import (
	"context"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/loupe/internal/activation"
	"github.com/hazyhaar/loupe/internal/browser"
	"github.com/hazyhaar/loupe/internal/config"
	"github.com/hazyhaar/loupe/internal/geom"
	"github.com/hazyhaar/loupe/internal/sanitize"
	"github.com/hazyhaar/loupe/internal/sink"
	"github.com/hazyhaar/loupe/internal/snapshot"
	"github.com/hazyhaar/loupe/internal/source"
)

// fakeHost simulates an 800x600 page, by default with no dynamic
// elements.
type fakeHost struct {
	events chan activation.Event

	pageCaptures   atomic.Int32
	regionCaptures atomic.Int32
	closed         atomic.Bool

	mu         sync.Mutex
	svgHit     source.Hit
	sanitized  *sanitize.Document
	overlayPos geom.Point
}

func newFakeHost() *fakeHost {
	return &fakeHost{events: make(chan activation.Event, 16)}
}

func (f *fakeHost) Metrics(ctx context.Context) (browser.Metrics, error) {
	return browser.Metrics{
		Viewport: geom.Size{W: 800, H: 600},
		Document: geom.Size{W: 800, H: 600},
	}, nil
}

func (f *fakeHost) ElementHit(ctx context.Context, id string) (source.Hit, error) {
	if id == "dynamic-svg" {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.svgHit, nil
	}
	return source.Hit{}, nil
}

func (f *fakeHost) setSVG(hit source.Hit) {
	f.mu.Lock()
	f.svgHit = hit
	f.mu.Unlock()
}

func (f *fakeHost) CapturePage(ctx context.Context, pre func(*sanitize.Document)) (*snapshot.Raster, error) {
	f.pageCaptures.Add(1)
	if pre != nil {
		doc := &sanitize.Document{
			Inline: []sanitize.Text{{Ref: "0", CSS: "color: oklab(0.5 0 0)"}},
		}
		pre(doc)
		f.mu.Lock()
		f.sanitized = doc
		f.mu.Unlock()
	}
	return snapshot.NewRaster(image.NewRGBA(image.Rect(0, 0, 800, 600)), 1), nil
}

func (f *fakeHost) CaptureRegion(ctx context.Context, id string, scale float64) (*snapshot.Raster, error) {
	f.regionCaptures.Add(1)
	return snapshot.NewRaster(image.NewRGBA(image.Rect(0, 0, 200, 200)), scale), nil
}

func (f *fakeHost) SampleCanvas(ctx context.Context, id string) (*snapshot.Raster, error) {
	return nil, context.Canceled
}

func (f *fakeHost) EnsureOverlay(ctx context.Context, pos geom.Point, size float64) error {
	f.mu.Lock()
	f.overlayPos = pos
	f.mu.Unlock()
	return nil
}

func (f *fakeHost) Events(ctx context.Context) (<-chan activation.Event, error) {
	return f.events, nil
}

func (f *fakeHost) Close() error {
	f.closed.Store(true)
	return nil
}

// recordSink captures every delivered frame.
type recordSink struct {
	mu     sync.Mutex
	frames []sink.Frame
}

func (r *recordSink) SendFrame(ctx context.Context, f sink.Frame) error {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	return nil
}

func (r *recordSink) Close() error { return nil }

func (r *recordSink) snapshot() []sink.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sink.Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOverlay() config.Overlay {
	o := config.Overlay{}
	o.ApplyDefaults()
	return o
}

func TestMagnifier_DragActivation(t *testing.T) {
	host := newFakeHost()
	rec := &recordSink{}
	m := New(testOverlay(), discardLogger(), host, rec)
	defer m.Destroy()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Initial page snapshot is taken right after start, before any
	// activation.
	waitFor(t, "initial page capture", func() bool {
		return host.pageCaptures.Load() >= 1
	})

	host.events <- activation.Event{Kind: activation.PointerDown, Pos: geom.Point{X: 100, Y: 100}}

	waitFor(t, "rendered visible frame", func() bool {
		for _, f := range rec.snapshot() {
			if f.Visible && len(f.PNG) > 0 && f.State == "ok" && f.Source == "page" {
				return true
			}
		}
		return false
	})

	host.events <- activation.Event{Kind: activation.PointerUp, Pos: geom.Point{X: 100, Y: 100}}

	waitFor(t, "hide frame", func() bool {
		frames := rec.snapshot()
		return len(frames) > 0 && !frames[len(frames)-1].Visible
	})
}

func TestMagnifier_CaptureStopsWhenIdle(t *testing.T) {
	host := newFakeHost()
	m := New(testOverlay(), discardLogger(), host, &recordSink{})
	defer m.Destroy()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	host.events <- activation.Event{Kind: activation.PointerDown, Pos: geom.Point{X: 50, Y: 50}}
	waitFor(t, "captures while active", func() bool {
		return host.pageCaptures.Load() >= 2
	})

	host.events <- activation.Event{Kind: activation.PointerUp, Pos: geom.Point{X: 50, Y: 50}}
	// Let in-flight ticks drain, then the count must stop moving.
	time.Sleep(100 * time.Millisecond)
	before := host.pageCaptures.Load()
	time.Sleep(200 * time.Millisecond)
	if after := host.pageCaptures.Load(); after != before {
		t.Errorf("captures continued while idle: %d -> %d", before, after)
	}
}

func TestMagnifier_RegionCaptureRequiresElement(t *testing.T) {
	host := newFakeHost()
	m := New(testOverlay(), discardLogger(), host, &recordSink{})
	defer m.Destroy()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	host.events <- activation.Event{Kind: activation.PointerDown, Pos: geom.Point{X: 50, Y: 50}}
	waitFor(t, "captures while active", func() bool {
		return host.pageCaptures.Load() >= 2
	})

	// No dynamic SVG on the page: the region ticker must not issue any
	// capture round-trips.
	time.Sleep(200 * time.Millisecond)
	if n := host.regionCaptures.Load(); n != 0 {
		t.Fatalf("got %d region captures without the element", n)
	}

	host.setSVG(source.Hit{Present: true, Rect: geom.Rect{X: 0, Y: 0, W: 100, H: 100}})
	waitFor(t, "region capture once element appears", func() bool {
		return host.regionCaptures.Load() >= 1
	})
}

func TestMagnifier_LayoutRecaptureDebounced(t *testing.T) {
	host := newFakeHost()
	m := New(testOverlay(), discardLogger(), host, &recordSink{})
	defer m.Destroy()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "initial page capture", func() bool {
		return host.pageCaptures.Load() >= 1
	})
	base := host.pageCaptures.Load()

	// A burst of layout events while idle collapses into one recapture
	// after the debounce window (150ms by default).
	for i := 0; i < 5; i++ {
		host.events <- activation.Event{Kind: activation.Resize}
		host.events <- activation.Event{Kind: activation.Scroll}
	}

	time.Sleep(50 * time.Millisecond)
	if n := host.pageCaptures.Load(); n != base {
		t.Fatalf("recaptured before the debounce window: %d -> %d", base, n)
	}

	waitFor(t, "debounced recapture", func() bool {
		return host.pageCaptures.Load() == base+1
	})

	time.Sleep(250 * time.Millisecond)
	if n := host.pageCaptures.Load(); n != base+1 {
		t.Errorf("got %d recaptures for one burst, want 1", n-base)
	}
}

func TestMagnifier_MoveMode(t *testing.T) {
	overlay := testOverlay()
	overlay.ActivationMode = "move"

	host := newFakeHost()
	rec := &recordSink{}
	m := New(overlay, discardLogger(), host, rec)
	defer m.Destroy()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	host.events <- activation.Event{Kind: activation.PointerMove, Pos: geom.Point{X: 10, Y: 10}}
	waitFor(t, "show frame", func() bool {
		for _, f := range rec.snapshot() {
			if f.Visible {
				return true
			}
		}
		return false
	})

	host.events <- activation.Event{Kind: activation.PointerLeave, Pos: geom.Point{X: 0, Y: 0}}
	waitFor(t, "hide frame", func() bool {
		frames := rec.snapshot()
		return len(frames) > 0 && !frames[len(frames)-1].Visible
	})
}

func TestMagnifier_SanitizerRunsBeforeCapture(t *testing.T) {
	host := newFakeHost()
	m := New(testOverlay(), discardLogger(), host, &recordSink{})
	defer m.Destroy()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, "sanitized capture", func() bool {
		host.mu.Lock()
		defer host.mu.Unlock()
		return host.sanitized != nil
	})

	host.mu.Lock()
	doc := host.sanitized
	host.mu.Unlock()
	if !doc.Inline[0].Changed {
		t.Fatal("inline style not rewritten")
	}
	if !strings.Contains(doc.Inline[0].CSS, "rgb(99, 99, 99)") {
		t.Errorf("rewritten css = %q", doc.Inline[0].CSS)
	}
}

func TestMagnifier_DestroyClosesHost(t *testing.T) {
	host := newFakeHost()
	m := New(testOverlay(), discardLogger(), host, &recordSink{})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.Destroy()
	m.Destroy() // idempotent

	if !host.closed.Load() {
		t.Error("host not closed")
	}
}
