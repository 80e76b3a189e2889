// Package activation implements the overlay activation state machine.
// Transitions are pure: (state, event) in, (state, effects) out. The
// owner applies effects (show/hide the overlay, start/stop the periodic
// capture timers), which keeps the rules testable without a page.
package activation

import "github.com/hazyhaar/loupe/internal/geom"

// Mode selects the activation style.
type Mode int

const (
	// ModeDrag shows the overlay only while the pointer is held down.
	ModeDrag Mode = iota
	// ModeMove shows the overlay whenever the pointer moves over the page.
	ModeMove
)

// ParseMode maps the config string to a Mode. Unknown values fall back
// to drag, the default style.
func ParseMode(s string) Mode {
	if s == "move" {
		return ModeMove
	}
	return ModeDrag
}

// Phase is the coarse machine state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
)

// touchSlop is the minimum movement on either axis, from the initial
// touch point, before a drag-mode touch activates the overlay. Below
// it the gesture is assumed to be a scroll or tap.
const touchSlop = 5.0

// EventKind identifies an input event.
type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	PointerLeave
	TouchStart
	TouchMove
	TouchEnd
	Resize
	Scroll
)

// Event is one input occurrence in viewport coordinates.
type Event struct {
	Kind EventKind
	Pos  geom.Point
}

// Layout reports whether the event invalidates coordinate mapping
// (handled by the debounced recapture path, not by Transition).
func (e Event) Layout() bool {
	return e.Kind == Resize || e.Kind == Scroll
}

// Effect is a side effect the owner must apply after a transition.
type Effect int

const (
	EffectShow Effect = iota
	EffectHide
	EffectStartCapture
	EffectStopCapture
)

// State is the machine state. Pointer always holds the last known
// position; Dragging mirrors the pressed/held gesture.
type State struct {
	Phase    Phase
	Pointer  geom.Point
	Dragging bool

	// Touch gesture tracking for drag mode.
	touchTracking bool
	touchOrigin   geom.Point
}

// Transition applies one event to the state under the given mode.
// Activation effects are emitted only on an actual phase change, so
// re-entering the active phase never restarts the capture timers.
func Transition(mode Mode, s State, ev Event) (State, []Effect) {
	if mode == ModeMove {
		return transitionMove(s, ev)
	}
	return transitionDrag(s, ev)
}

func transitionDrag(s State, ev Event) (State, []Effect) {
	switch ev.Kind {
	case PointerDown:
		s.Pointer = ev.Pos
		s.Dragging = true
		return activate(s)

	case PointerMove:
		s.Pointer = ev.Pos
		return s, nil

	case PointerUp, TouchEnd:
		s.Dragging = false
		s.touchTracking = false
		return deactivate(s)

	case TouchStart:
		s.Pointer = ev.Pos
		s.touchTracking = true
		s.touchOrigin = ev.Pos
		return s, nil

	case TouchMove:
		s.Pointer = ev.Pos
		if s.Phase == PhaseActive {
			return s, nil
		}
		if !s.touchTracking {
			return s, nil
		}
		dx := ev.Pos.X - s.touchOrigin.X
		dy := ev.Pos.Y - s.touchOrigin.Y
		if dx < 0 {
			dx = -dx
		}
		if dy < 0 {
			dy = -dy
		}
		if dx <= touchSlop && dy <= touchSlop {
			return s, nil
		}
		s.Dragging = true
		s.touchTracking = false
		return activate(s)
	}
	return s, nil
}

func transitionMove(s State, ev Event) (State, []Effect) {
	switch ev.Kind {
	case PointerMove, TouchMove:
		s.Pointer = ev.Pos
		return activate(s)

	case PointerDown:
		s.Pointer = ev.Pos
		s.Dragging = true
		return s, nil

	case PointerUp:
		s.Dragging = false
		return s, nil

	case PointerLeave, TouchEnd:
		s.Dragging = false
		return deactivate(s)
	}
	return s, nil
}

func activate(s State) (State, []Effect) {
	if s.Phase == PhaseActive {
		return s, nil
	}
	s.Phase = PhaseActive
	return s, []Effect{EffectShow, EffectStartCapture}
}

func deactivate(s State) (State, []Effect) {
	if s.Phase == PhaseIdle {
		return s, nil
	}
	s.Phase = PhaseIdle
	return s, []Effect{EffectHide, EffectStopCapture}
}
