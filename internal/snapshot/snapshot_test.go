package snapshot

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/loupe/internal/sanitize"
)

// fakeRasterizer blocks each capture until released, counting starts.
type fakeRasterizer struct {
	mu       sync.Mutex
	started  atomic.Int32
	release  chan struct{}
	fail     bool
	lastScale float64
}

func newFakeRasterizer() *fakeRasterizer {
	return &fakeRasterizer{release: make(chan struct{})}
}

func (f *fakeRasterizer) CapturePage(ctx context.Context, pre func(*sanitize.Document)) (*Raster, error) {
	f.started.Add(1)
	<-f.release
	if f.fail {
		return nil, errors.New("boom")
	}
	return NewRaster(image.NewRGBA(image.Rect(0, 0, 8, 6)), 1), nil
}

func (f *fakeRasterizer) CaptureRegion(ctx context.Context, scale float64) (*Raster, error) {
	f.started.Add(1)
	f.mu.Lock()
	f.lastScale = scale
	f.mu.Unlock()
	<-f.release
	if f.fail {
		return nil, errors.New("boom")
	}
	return NewRaster(image.NewRGBA(image.Rect(0, 0, 4, 4)), scale), nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestRefreshPage_SingleFlight(t *testing.T) {
	fr := newFakeRasterizer()
	c := NewCache(fr, nil, 1, nil)

	c.RefreshPage(context.Background())
	waitFor(t, func() bool { return fr.started.Load() == 1 })

	// Second and third requests while one is pending are no-ops.
	c.RefreshPage(context.Background())
	c.RefreshPage(context.Background())
	if got := fr.started.Load(); got != 1 {
		t.Fatalf("captures started: got %d, want 1", got)
	}

	close(fr.release)
	waitFor(t, func() bool {
		page, _ := c.Rasters()
		return page != nil
	})

	page, _ := c.Rasters()
	if page.Width != 8 || page.Height != 6 {
		t.Errorf("raster dims: got %dx%d, want 8x6", page.Width, page.Height)
	}
}

func TestRefreshPage_FailureRetainsPrevious(t *testing.T) {
	fr := newFakeRasterizer()
	close(fr.release)
	c := NewCache(fr, nil, 1, nil)

	c.RefreshPage(context.Background())
	waitFor(t, func() bool {
		page, _ := c.Rasters()
		return page != nil
	})
	prev, _ := c.Rasters()

	fr.fail = true
	c.RefreshPage(context.Background())
	waitFor(t, func() bool { return fr.started.Load() == 2 })
	// Flag cleared even on failure: another refresh starts a capture.
	waitFor(t, func() bool {
		c.RefreshPage(context.Background())
		return fr.started.Load() >= 3
	})

	page, _ := c.Rasters()
	if page != prev {
		t.Error("failed capture replaced the previous raster")
	}
}

func TestRefreshRegion_UsesConfiguredScale(t *testing.T) {
	fr := newFakeRasterizer()
	close(fr.release)
	c := NewCache(fr, nil, 2.5, nil)

	c.RefreshRegion(context.Background())
	waitFor(t, func() bool {
		_, region := c.Rasters()
		return region != nil
	})

	fr.mu.Lock()
	scale := fr.lastScale
	fr.mu.Unlock()
	if scale != 2.5 {
		t.Errorf("capture scale: got %v, want 2.5", scale)
	}
}

func TestDispose_DropsLateResult(t *testing.T) {
	fr := newFakeRasterizer()
	c := NewCache(fr, nil, 1, nil)

	c.RefreshPage(context.Background())
	waitFor(t, func() bool { return fr.started.Load() == 1 })

	c.Dispose()
	close(fr.release)

	// Give the in-flight callback time to complete and be discarded.
	time.Sleep(20 * time.Millisecond)
	page, region := c.Rasters()
	if page != nil || region != nil {
		t.Error("late capture result stored after Dispose")
	}

	// Disposed cache never starts new captures.
	c.RefreshPage(context.Background())
	c.RefreshRegion(context.Background())
	time.Sleep(10 * time.Millisecond)
	if got := fr.started.Load(); got != 1 {
		t.Errorf("captures after dispose: got %d, want 1", got)
	}
}

func TestNewRaster_ConvertsToRGBA(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	r := NewRaster(src, 0)
	if r.Image == nil || r.Width != 3 || r.Height != 2 {
		t.Fatalf("unexpected raster: %+v", r)
	}
	if r.Scale != 1 {
		t.Errorf("scale default: got %v, want 1", r.Scale)
	}
}
