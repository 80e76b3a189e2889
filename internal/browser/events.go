package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/loupe/internal/activation"
	"github.com/hazyhaar/loupe/internal/geom"
)

//go:embed loupe.js
var loupeJS string

const bindingName = "__loupe_binding"

var eventKinds = map[string]activation.EventKind{
	"pointerdown":  activation.PointerDown,
	"pointermove":  activation.PointerMove,
	"pointerup":    activation.PointerUp,
	"pointerleave": activation.PointerLeave,
	"touchstart":   activation.TouchStart,
	"touchmove":    activation.TouchMove,
	"touchend":     activation.TouchEnd,
	"scroll":       activation.Scroll,
	"resize":       activation.Resize,
}

// Events injects the input listeners and returns a channel of page
// events. The channel is buffered; when the consumer lags, events are
// dropped rather than stalling the CDP event loop, since for pointer
// moves only the freshest position matters. The goroutine exits and the
// channel closes when ctx is cancelled.
func (h *Host) Events(ctx context.Context) (<-chan activation.Event, error) {
	page := h.tab.Page

	if err := (proto.RuntimeAddBinding{Name: bindingName}.Call(page)); err != nil {
		h.logger.Warn("browser: add binding failed (may already exist)", "error", err)
	}

	ch := make(chan activation.Event, 256)
	go func() {
		defer close(ch)
		page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			var raw struct {
				Kind string  `json:"kind"`
				X    float64 `json:"x"`
				Y    float64 `json:"y"`
			}
			if err := json.Unmarshal([]byte(e.Payload), &raw); err != nil {
				h.logger.Warn("browser: parse event payload", "error", err)
				return
			}
			kind, ok := eventKinds[raw.Kind]
			if !ok {
				return
			}
			select {
			case ch <- activation.Event{Kind: kind, Pos: geom.Point{X: raw.X, Y: raw.Y}}:
			default:
			}
		})()
	}()

	if _, err := page.Context(ctx).Eval(loupeJS); err != nil {
		return nil, fmt.Errorf("browser: inject event listeners: %w", err)
	}
	h.logger.Debug("browser: event listeners injected", "tab", h.tab.ID)
	return ch, nil
}
