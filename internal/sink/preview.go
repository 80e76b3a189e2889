package sink

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Preview serves the most recent frame over HTTP, so a headless
// magnifier session can be inspected from a browser:
//
//	GET /frame.png  latest composed overlay frame
//	GET /status     JSON presentation state
type Preview struct {
	mu     sync.Mutex
	last   Frame
	srv    *http.Server
	logger *slog.Logger
}

// NewPreview creates a Preview listening on addr and starts serving.
func NewPreview(addr string, logger *slog.Logger) *Preview {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Preview{logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/frame.png", p.handleFrame)
	r.Get("/status", p.handleStatus)

	p.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := p.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("sink: preview server stopped", "error", err)
		}
	}()

	return p
}

// SendFrame stores the frame for subsequent HTTP reads. Never blocks.
func (p *Preview) SendFrame(ctx context.Context, f Frame) error {
	p.mu.Lock()
	if len(f.PNG) == 0 {
		// Visibility-only update: keep the last rendered image.
		f.PNG = p.last.PNG
	}
	p.last = f
	p.mu.Unlock()
	return nil
}

// Close shuts the HTTP server down.
func (p *Preview) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.srv.Shutdown(ctx)
}

func (p *Preview) handleFrame(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	png := p.last.PNG
	p.mu.Unlock()

	if len(png) == 0 {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (p *Preview) handleStatus(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	f := p.last
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"visible": f.Visible,
		"mode":    f.Mode,
		"source":  f.Source,
		"state":   f.State,
		"pointer": [2]float64{f.PointerX, f.PointerY},
		"seq":     f.Seq,
	})
}
