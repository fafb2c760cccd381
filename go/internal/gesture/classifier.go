// Package gesture turns raw press/move/release sequences and sensor samples
// on the sending device into relay messages.
package gesture

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fakemouse/go/internal/clock"
	"github.com/mcdev12/fakemouse/go/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	DefaultLongPress     = 300 * time.Millisecond
	DefaultMoveThreshold = 5.0
)

// State is the classifier's position in the press lifecycle.
type State int

const (
	StateIdle State = iota
	StatePressPending
	StateDragging
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePressPending:
		return "press_pending"
	case StateDragging:
		return "dragging"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Viewport is the sending surface size in device pixels.
type Viewport struct {
	Width  float64
	Height float64
}

// Options configures a Classifier.
type Options struct {
	LongPress     time.Duration
	MoveThreshold float64
	Viewport      Viewport
	Clock         clock.Clock
	// OnDragStart is called once per press when a long press switches it to
	// a drag. It runs on the timer goroutine or on the goroutine of the call
	// that observed the elapsed press, never with the classifier locked.
	OnDragStart func()
}

// Classifier is the per-sender gesture state machine:
// Idle -> PressPending -> {Dragging | Cancelled} -> Idle.
type Classifier struct {
	opts Options

	mu        sync.Mutex
	state     State
	startX    float64
	startY    float64
	fingers   int
	pressedAt time.Time
	timer     *clock.Timer
	// seq identifies the current press so a stale long-press timer from an
	// earlier press cannot promote a newer one.
	seq uint64
}

// NewClassifier validates opts and fills in defaults.
func NewClassifier(opts Options) (*Classifier, error) {
	if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
		return nil, errors.New("viewport must have a positive size")
	}
	if opts.LongPress <= 0 {
		opts.LongPress = DefaultLongPress
	}
	if opts.MoveThreshold <= 0 {
		opts.MoveThreshold = DefaultMoveThreshold
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Classifier{opts: opts}, nil
}

// State returns the current state.
func (c *Classifier) State() State {
	c.mu.Lock()
	started := c.promote(c.opts.Clock.Now())
	state := c.state
	c.mu.Unlock()

	if started {
		c.dragStarted()
	}
	return state
}

// Press starts a new press, replacing any press still pending.
func (c *Classifier) Press(x, y float64, fingers int) {
	if fingers < 1 {
		fingers = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.timer.Cancel()
	c.seq++
	seq := c.seq

	c.state = StatePressPending
	c.startX, c.startY = x, y
	c.fingers = fingers
	c.pressedAt = c.opts.Clock.Now()
	c.timer = clock.Schedule(c.opts.Clock, c.opts.LongPress, func() {
		c.longPressElapsed(seq)
	})
}

// Move cancels a pending press once the finger travels past the threshold
// on either axis; the press then becomes a scroll.
func (c *Classifier) Move(x, y float64) {
	c.mu.Lock()
	started := c.promote(c.opts.Clock.Now())
	if c.state == StatePressPending {
		dx := math.Abs(x - c.startX)
		dy := math.Abs(y - c.startY)
		if dx > c.opts.MoveThreshold || dy > c.opts.MoveThreshold {
			c.state = StateCancelled
			c.timer.Cancel()
			c.timer = nil
		}
	}
	c.mu.Unlock()

	if started {
		c.dragStarted()
	}
}

// Release ends the press and classifies it. It returns false when no press
// was in progress.
func (c *Classifier) Release(x, y float64) (*protocol.Message, bool) {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil, false
	}

	c.timer.Cancel()
	c.timer = nil
	started := c.promote(c.opts.Clock.Now())

	state := c.state
	fingers := c.fingers
	dx := x - c.startX
	dy := y - c.startY

	c.state = StateIdle
	c.seq++
	c.mu.Unlock()

	if started {
		c.dragStarted()
	}

	vp := c.opts.Viewport
	if fingers > 1 {
		return protocol.NewGesture(protocol.TypeScroll, dx, dy, false, fingers, vp.Width, vp.Height), true
	}

	nx, ny := dx/vp.Width, dy/vp.Height
	switch state {
	case StateDragging:
		return protocol.NewGesture(protocol.TypeDrag, nx, ny, false, fingers, vp.Width, vp.Height), true
	case StateCancelled:
		return protocol.NewGesture(protocol.TypeScroll, nx, ny, false, fingers, vp.Width, vp.Height), true
	default:
		return protocol.NewGesture(protocol.TypeTouch, nx, ny, true, fingers, vp.Width, vp.Height), true
	}
}

// promote applies an elapsed long press that the timer goroutine has not
// delivered yet, so classification depends only on the clock. It reports
// whether the press switched to a drag. Must hold mu.
func (c *Classifier) promote(now time.Time) bool {
	if c.state == StatePressPending && now.Sub(c.pressedAt) >= c.opts.LongPress {
		c.state = StateDragging
		return true
	}
	return false
}

func (c *Classifier) longPressElapsed(seq uint64) {
	c.mu.Lock()
	if seq != c.seq || c.state != StatePressPending {
		c.mu.Unlock()
		return
	}
	c.state = StateDragging
	c.timer = nil
	c.mu.Unlock()

	c.dragStarted()
}

// dragStarted runs once per press, from whichever path promoted it first.
// Must not hold mu.
func (c *Classifier) dragStarted() {
	log.Debug().Msg("long press, drag mode enabled")
	if c.opts.OnDragStart != nil {
		c.opts.OnDragStart()
	}
}
