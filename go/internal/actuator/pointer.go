// Package actuator drives the virtual cursor on the receiving page, from
// relayed gestures and, when the user is idle, on its own.
package actuator

import (
	"sync"

	"github.com/mcdev12/fakemouse/go/internal/surface"
)

// Pointer owns the cursor state. The engine and the idle automaton both move
// it; the mutex keeps their updates from interleaving.
type Pointer struct {
	surface surface.Surface

	mu    sync.Mutex
	state surface.CursorState
}

// NewPointer places a visible cursor in the middle of the page.
func NewPointer(s surface.Surface) *Pointer {
	p := &Pointer{surface: s}
	maxX, maxY := p.bounds()
	p.state = surface.CursorState{
		Position: surface.Point{X: maxX / 2, Y: maxY / 2},
		Visible:  true,
	}
	s.SetCursor(p.state)
	return p
}

// bounds returns the largest position that keeps the whole cursor on screen.
func (p *Pointer) bounds() (float64, float64) {
	vp := p.surface.Viewport()
	cs := p.surface.CursorSize()
	return vp.Width - cs.Width, vp.Height - cs.Height
}

// Clamp limits pt to the visible area on each axis.
func (p *Pointer) Clamp(pt surface.Point) surface.Point {
	maxX, maxY := p.bounds()
	return surface.Point{
		X: max(0, min(pt.X, maxX)),
		Y: max(0, min(pt.Y, maxY)),
	}
}

// MoveTo moves the cursor to pt, clamped, and returns where it landed.
func (p *Pointer) MoveTo(pt surface.Point) surface.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Position = p.Clamp(pt)
	p.surface.SetCursor(p.state)
	return p.state.Position
}

// MoveBy offsets the cursor and returns its position before and after.
func (p *Pointer) MoveBy(dx, dy float64) (from, to surface.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	from = p.state.Position
	p.state.Position = p.Clamp(surface.Point{X: from.X + dx, Y: from.Y + dy})
	p.surface.SetCursor(p.state)
	return from, p.state.Position
}

// SetVisible shows or hides the cursor.
func (p *Pointer) SetVisible(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Visible = visible
	p.surface.SetCursor(p.state)
}

// ToggleVisible flips visibility and returns the new value.
func (p *Pointer) ToggleVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Visible = !p.state.Visible
	p.surface.SetCursor(p.state)
	return p.state.Visible
}

// State returns a copy of the cursor state.
func (p *Pointer) State() surface.CursorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
