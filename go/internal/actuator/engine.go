package actuator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fakemouse/go/internal/clock"
	"github.com/mcdev12/fakemouse/go/internal/protocol"
	"github.com/mcdev12/fakemouse/go/internal/surface"
	"github.com/rs/zerolog/log"
)

const DefaultHighlightDuration = 2 * time.Second

// Replier sends messages back over the relay channel.
type Replier interface {
	Send(m *protocol.Message) error
}

// IdleResetter is told about every consumed gesture.
type IdleResetter interface {
	Reset()
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the clock used for highlight removal.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithHighlightDuration sets how long drag highlights stay on the page.
func WithHighlightDuration(d time.Duration) EngineOption {
	return func(e *Engine) { e.highlightFor = d }
}

// WithIdleResetter registers the automaton to reset on input.
func WithIdleResetter(r IdleResetter) EngineOption {
	return func(e *Engine) { e.idle = r }
}

// Engine applies relayed messages to the page in arrival order.
type Engine struct {
	surface surface.Surface
	pointer *Pointer
	replier Replier
	idle    IdleResetter

	clock        clock.Clock
	highlightFor time.Duration

	mu       sync.Mutex
	last     protocol.Gesture
	haveLast bool
	// replayPending is set on every relay (re)connect: the relay opens the
	// connection by replaying its latest frame, which may be one we applied.
	replayPending bool
}

// NewEngine creates an engine. replier may be nil when nobody listens for
// copied text.
func NewEngine(s surface.Surface, p *Pointer, replier Replier, opts ...EngineOption) *Engine {
	e := &Engine{
		surface:      s,
		pointer:      p,
		replier:      replier,
		clock:        clockwork.NewRealClock(),
		highlightFor: DefaultHighlightDuration,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleFrame validates a raw relay frame and applies it.
func (e *Engine) HandleFrame(_ context.Context, raw []byte) {
	msg, err := protocol.Validate(raw)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring invalid frame")
		return
	}
	if err := e.Handle(msg); err != nil {
		log.Warn().Err(err).Str("type", string(msg.Type)).Msg("failed to apply message")
	}
}

// Reconnected marks the next inbound frame as the relay's replay of its
// latest message.
func (e *Engine) Reconnected() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replayPending = true
}

// Handle applies one message.
func (e *Engine) Handle(m *protocol.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	replay := e.replayPending
	e.replayPending = false

	switch {
	case m.Type.IsGesture():
		return e.handleGesture(m, replay)
	case m.Type == protocol.TypeOrientation, m.Type == protocol.TypeMotion:
		e.surface.ShowSensor(m)
	}
	return nil
}

func (e *Engine) handleGesture(m *protocol.Message, replay bool) error {
	g := *m.Gesture

	if g.Fingers > 1 {
		e.resetIdle()
		if g.Y != 0 {
			e.surface.ScrollBy(g.Y)
		}
		return nil
	}

	if replay && e.haveLast && g.X == e.last.X && g.Y == e.last.Y && g.Click == e.last.Click {
		log.Debug().Str("type", string(m.Type)).Msg("replayed gesture ignored")
		return nil
	}
	e.last, e.haveLast = g, true
	e.resetIdle()

	vp := e.surface.Viewport()
	from, to := e.pointer.MoveBy(-g.X*vp.Width, -g.Y*vp.Height)

	if m.Type == protocol.TypeDrag {
		return e.copyBetween(from, to)
	}
	if g.Click {
		e.clickAt(to)
	}
	return nil
}

func (e *Engine) resetIdle() {
	if e.idle != nil {
		e.idle.Reset()
	}
}

func (e *Engine) clickAt(pt surface.Point) {
	el, err := surface.ClickAt(e.surface, pt)
	switch {
	case errors.Is(err, surface.ErrNoElement):
		log.Debug().Float64("x", pt.X).Float64("y", pt.Y).Msg("no element under cursor")
	case err == nil:
		log.Debug().Str("element", el.ID).Msg("clicked")
	}
}

// copyBetween collects the text under the rectangle swept by a drag, marks
// it on the page and sends it back to the touch pad.
func (e *Engine) copyBetween(from, to surface.Point) error {
	area := surface.RectBetween(from, to)

	var parts []string
	seen := make(map[int]bool)
	for _, box := range e.surface.TextBoxes() {
		if !box.Bounds.Intersects(area) {
			continue
		}
		remove := e.surface.Highlight(box.Bounds)
		clock.Schedule(e.clock, e.highlightFor, remove)

		if seen[box.Node] {
			continue
		}
		seen[box.Node] = true
		if text := strings.TrimSpace(box.Text); text != "" {
			parts = append(parts, text)
		}
	}

	text := strings.Join(parts, " ")
	log.Info().Int("nodes", len(seen)).Str("text", text).Msg("copied text")

	if e.replier == nil {
		return nil
	}
	if err := e.replier.Send(protocol.NewCopiedText(text)); err != nil {
		return fmt.Errorf("send copied text: %w", err)
	}
	return nil
}
