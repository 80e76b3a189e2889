// Package sink delivers composed overlay frames to their consumers:
// the in-page overlay element and, optionally, an HTTP preview
// endpoint for debugging a headless session.
package sink

import "context"

// Frame is one composed overlay frame plus its presentation state.
type Frame struct {
	// PNG is the encoded frame. Empty for visibility-only updates.
	PNG []byte
	// Visible reports whether the overlay should currently be shown.
	Visible bool
	// Source names the content source the frame sampled (canvas, svg, page).
	Source string
	// State is ok, loading or error.
	State string
	// Mode is the activation mode of the producing magnifier.
	Mode string
	// PointerX, PointerY is the viewport pointer position the frame was
	// composed for.
	PointerX, PointerY float64
	// Seq increases monotonically per magnifier.
	Seq uint64
}

// Sink consumes frames. Implementations must tolerate being handed
// frames faster than they can deliver them by dropping, not blocking.
type Sink interface {
	SendFrame(ctx context.Context, f Frame) error
	Close() error
}
