package actuator

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/mcdev12/fakemouse/go/internal/clock"
	"github.com/mcdev12/fakemouse/go/internal/config"
	"github.com/mcdev12/fakemouse/go/internal/surface"
	"github.com/rs/zerolog/log"
)

// Mode is a wandering modifier.
type Mode string

const (
	ModeWandering Mode = "wandering"
	ModeRage      Mode = "rage"
	ModeShadow    Mode = "shadow"
)

var allModes = []Mode{ModeWandering, ModeRage, ModeShadow}

// AutomatonState is Quiescent or Wandering.
type AutomatonState int

const (
	StateQuiescent AutomatonState = iota
	StateWandering
)

func (s AutomatonState) String() string {
	if s == StateWandering {
		return "wandering"
	}
	return "quiescent"
}

// RandSource is the randomness the automaton draws from. *rand.Rand
// satisfies it.
type RandSource interface {
	Float64() float64
	Int63n(n int64) int64
}

// NewRandSource returns a seeded source.
func NewRandSource(seed int64) RandSource {
	return rand.New(rand.NewSource(seed))
}

// AutomatonConfig tunes the idle automaton.
type AutomatonConfig struct {
	IdleMin      time.Duration
	IdleMax      time.Duration
	StepInterval time.Duration
	SessionMin   time.Duration
	SessionMax   time.Duration
	AnchorChance float64
	ShadowChance float64
	RageFactor   float64
	// StopOnInput ends a running session when input arrives. Off by default:
	// a session normally runs until its own duration elapses.
	StopOnInput bool
}

// DefaultAutomatonConfig returns the stock timings.
func DefaultAutomatonConfig() AutomatonConfig {
	return AutomatonConfig{
		IdleMin:      30 * time.Second,
		IdleMax:      60 * time.Second,
		StepInterval: 500 * time.Millisecond,
		SessionMin:   10 * time.Second,
		SessionMax:   60 * time.Second,
		AnchorChance: 0.3,
		ShadowChance: 0.3,
		RageFactor:   2,
	}
}

// AutomatonConfigFrom applies the actuator settings to the defaults.
func AutomatonConfigFrom(cfg config.Actuator) AutomatonConfig {
	c := DefaultAutomatonConfig()
	c.IdleMin, c.IdleMax = cfg.IdleMin, cfg.IdleMax
	c.StepInterval = cfg.StepInterval
	c.SessionMin, c.SessionMax = cfg.SessionMin, cfg.SessionMax
	c.StopOnInput = cfg.StopOnInput
	return c
}

// Automaton moves the cursor by itself after a period without input.
type Automaton struct {
	cfg     AutomatonConfig
	surface surface.Surface
	pointer *Pointer
	clock   clock.Clock

	mu      sync.Mutex
	rand    RandSource
	state   AutomatonState
	modes   []Mode
	idle    *clock.Timer
	session *clock.Timer
	step    *clock.Timer
	// idleGen and sessionGen invalidate callbacks from cancelled timers.
	idleGen    uint64
	sessionGen uint64
	stopped    bool
}

// NewAutomaton creates a quiescent automaton. Call Reset to arm it.
func NewAutomaton(cfg AutomatonConfig, s surface.Surface, p *Pointer, clk clock.Clock, rnd RandSource) *Automaton {
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = DefaultAutomatonConfig().StepInterval
	}
	if cfg.RageFactor <= 0 {
		cfg.RageFactor = 1
	}
	return &Automaton{
		cfg:     cfg,
		surface: s,
		pointer: p,
		clock:   clk,
		rand:    rnd,
	}
}

// Reset restarts the idle countdown with a fresh duration.
func (a *Automaton) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}
	if a.cfg.StopOnInput && a.state == StateWandering {
		a.endSessionLocked()
	}
	a.armIdleLocked()
}

// State returns the current state.
func (a *Automaton) State() AutomatonState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Modes returns the modifiers of the running session.
func (a *Automaton) Modes() []Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Mode(nil), a.modes...)
}

// Stop cancels every timer. The automaton cannot be restarted.
func (a *Automaton) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	a.idleGen++
	a.idle.Cancel()
	if a.state == StateWandering {
		a.endSessionLocked()
	}
}

func (a *Automaton) armIdleLocked() {
	a.idle.Cancel()
	a.idleGen++
	gen := a.idleGen
	a.idle = clock.Schedule(a.clock, a.between(a.cfg.IdleMin, a.cfg.IdleMax), func() {
		a.idleElapsed(gen)
	})
}

func (a *Automaton) idleElapsed(gen uint64) {
	a.mu.Lock()
	if gen != a.idleGen || a.stopped || a.state == StateWandering {
		a.mu.Unlock()
		return
	}

	a.modes = a.pickModes()
	a.state = StateWandering
	a.sessionGen++
	session := a.sessionGen
	duration := a.between(a.cfg.SessionMin, a.cfg.SessionMax)
	a.session = clock.Schedule(a.clock, duration, func() { a.sessionElapsed(session) })
	a.step = clock.Schedule(a.clock, a.cfg.StepInterval, func() { a.stepElapsed(session) })
	announcement := describeModes(a.modes)
	a.mu.Unlock()

	log.Info().Str("modes", announcement).Dur("duration", duration).Msg("wandering session started")
	a.surface.Notify(announcement)
}

func (a *Automaton) sessionElapsed(session uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if session != a.sessionGen || a.state != StateWandering {
		return
	}
	a.endSessionLocked()
	if !a.stopped {
		a.armIdleLocked()
	}
	log.Info().Msg("wandering session ended")
}

func (a *Automaton) endSessionLocked() {
	a.sessionGen++
	a.session.Cancel()
	a.step.Cancel()
	a.session, a.step = nil, nil
	a.state = StateQuiescent
	a.modes = nil
	a.pointer.SetVisible(true)
}

func (a *Automaton) stepElapsed(session uint64) {
	a.mu.Lock()
	if session != a.sessionGen || a.state != StateWandering {
		a.mu.Unlock()
		return
	}

	target := a.pickTarget()
	if a.hasMode(ModeRage) {
		cur := a.pointer.State().Position
		target = surface.Point{
			X: cur.X + (target.X-cur.X)*a.cfg.RageFactor,
			Y: cur.Y + (target.Y-cur.Y)*a.cfg.RageFactor,
		}
	}
	if a.hasMode(ModeShadow) && a.rand.Float64() < a.cfg.ShadowChance {
		a.pointer.ToggleVisible()
	}
	landed := a.pointer.MoveTo(target)
	a.step = clock.Schedule(a.clock, a.cfg.StepInterval, func() { a.stepElapsed(session) })
	a.mu.Unlock()

	if el, err := surface.ClickAt(a.surface, landed); err == nil {
		log.Debug().Str("element", el.ID).Msg("wandering click")
	}
}

// pickTarget returns a uniform point within the cursor bounds, or sometimes
// one of the page anchors. Must hold mu.
func (a *Automaton) pickTarget() surface.Point {
	if anchors := a.surface.Anchors(); len(anchors) > 0 && a.rand.Float64() < a.cfg.AnchorChance {
		return anchors[a.rand.Int63n(int64(len(anchors)))]
	}
	vp := a.surface.Viewport()
	cs := a.surface.CursorSize()
	return surface.Point{
		X: a.rand.Float64() * max(0, vp.Width-cs.Width),
		Y: a.rand.Float64() * max(0, vp.Height-cs.Height),
	}
}

// pickModes draws a non-empty subset of the modifiers. Must hold mu.
func (a *Automaton) pickModes() []Mode {
	mask := a.rand.Int63n(1<<len(allModes)-1) + 1
	var modes []Mode
	for i, m := range allModes {
		if mask&(1<<i) != 0 {
			modes = append(modes, m)
		}
	}
	return modes
}

func (a *Automaton) hasMode(m Mode) bool {
	for _, have := range a.modes {
		if have == m {
			return true
		}
	}
	return false
}

// between draws a duration uniformly from [lo, hi]. Must hold mu.
func (a *Automaton) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(a.rand.Int63n(int64(hi-lo)+1))
}

func describeModes(modes []Mode) string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return "Activated: " + strings.Join(names, ", ")
}
