package actuator

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fakemouse/go/internal/surface"
)

// fixedRand always picks every mode, always takes the 0.3 chances and draws
// the upper end of every range.
type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64     { return r.f }
func (r fixedRand) Int63n(n int64) int64 { return n - 1 }

func testAutomatonConfig() AutomatonConfig {
	cfg := DefaultAutomatonConfig()
	cfg.IdleMin, cfg.IdleMax = 30*time.Second, 30*time.Second
	cfg.SessionMin, cfg.SessionMax = 10*time.Second, 10*time.Second
	return cfg
}

func blockUntil(t *testing.T, fc *clockwork.FakeClock, waiters int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, waiters); err != nil {
		t.Fatalf("waiting for %d timers: %v", waiters, err)
	}
}

func newAnchoredPage(t *testing.T) *surface.Page {
	t.Helper()
	at := surface.Point{X: 100, Y: 100}
	page, err := surface.NewPage(surface.PageSpec{
		Viewport: surface.Size{Width: 800, Height: 600},
		Cursor:   surface.Size{Width: 20, Height: 20},
		Anchors:  []surface.Anchor{{Href: "https://example.com", At: &at}},
	})
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	return page
}

func TestIdleTimeoutStartsSession(t *testing.T) {
	page := newAnchoredPage(t)
	fc := clockwork.NewFakeClock()
	pointer := NewPointer(page)
	a := NewAutomaton(testAutomatonConfig(), page, pointer, fc, fixedRand{f: 0.1})
	defer a.Stop()

	a.Reset()
	blockUntil(t, fc, 1)
	fc.Advance(30 * time.Second)
	waitFor(t, func() bool { return len(page.Notifications()) == 1 })

	if a.State() != StateWandering {
		t.Fatalf("expected wandering, got %s", a.State())
	}
	modes := a.Modes()
	if len(modes) != 3 {
		t.Fatalf("expected all modes, got %v", modes)
	}
	if n := page.Notifications(); n[0] != "Activated: wandering, rage, shadow" {
		t.Fatalf("unexpected announcement %v", n)
	}

	// First step: anchor target at (100,100), doubled offset from the centre
	// (390,290) lands at (-190,-90), clamped to the corner.
	blockUntil(t, fc, 2)
	fc.Advance(500 * time.Millisecond)
	waitFor(t, func() bool { return pointer.State().Position == (surface.Point{}) })
	if pointer.State().Visible {
		t.Fatalf("shadow mode should have hidden the cursor")
	}
}

func TestSessionEndsAfterDurationWithCursorVisible(t *testing.T) {
	page := newAnchoredPage(t)
	fc := clockwork.NewFakeClock()
	pointer := NewPointer(page)
	a := NewAutomaton(testAutomatonConfig(), page, pointer, fc, fixedRand{f: 0.1})
	defer a.Stop()

	a.Reset()
	blockUntil(t, fc, 1)
	fc.Advance(30 * time.Second)
	waitFor(t, func() bool { return a.State() == StateWandering })

	// 19 steps fit before the 10s session ends; the session and step
	// timers are both pending between steps.
	for i := 0; i < 19; i++ {
		blockUntil(t, fc, 2)
		fc.Advance(500 * time.Millisecond)
		if a.State() != StateWandering {
			t.Fatalf("session ended early at step %d", i+1)
		}
	}

	blockUntil(t, fc, 2)
	fc.Advance(500 * time.Millisecond)
	waitFor(t, func() bool { return a.State() == StateQuiescent })

	if !pointer.State().Visible || !page.Cursor().Visible {
		t.Fatalf("cursor must be visible after the session")
	}
	if len(a.Modes()) != 0 {
		t.Fatalf("modes should be cleared, got %v", a.Modes())
	}

	// The idle countdown is armed again for the next session.
	blockUntil(t, fc, 1)
	fc.Advance(30 * time.Second)
	waitFor(t, func() bool { return a.State() == StateWandering })
}

func TestWanderingClicksClickableElements(t *testing.T) {
	page := newAnchoredPage(t)
	fc := clockwork.NewFakeClock()
	cfg := testAutomatonConfig()
	cfg.RageFactor = 1
	a := NewAutomaton(cfg, page, NewPointer(page), fc, fixedRand{f: 0.1})
	defer a.Stop()

	a.Reset()
	blockUntil(t, fc, 1)
	fc.Advance(30 * time.Second)
	blockUntil(t, fc, 2)
	fc.Advance(500 * time.Millisecond)

	waitFor(t, func() bool {
		clicks := page.Clicks()
		return len(clicks) == 1 && clicks[0] == "anchor-0"
	})
}

func TestInputKeepsAutomatonQuiescent(t *testing.T) {
	page := newAnchoredPage(t)
	fc := clockwork.NewFakeClock()
	pointer := NewPointer(page)
	a := NewAutomaton(testAutomatonConfig(), page, pointer, fc, fixedRand{f: 0.1})
	defer a.Stop()
	engine := NewEngine(page, pointer, nil, WithIdleResetter(a), WithClock(fc))

	a.Reset()
	for i := 0; i < 5; i++ {
		blockUntil(t, fc, 1)
		fc.Advance(20 * time.Second)
		engine.Handle(touch(0.001*float64(i+1), 0, false))
	}
	time.Sleep(20 * time.Millisecond)

	if a.State() != StateQuiescent || len(page.Notifications()) != 0 {
		t.Fatalf("input every 20s must keep a 30s idle timer from firing")
	}

	blockUntil(t, fc, 1)
	fc.Advance(30 * time.Second)
	waitFor(t, func() bool { return a.State() == StateWandering })
}

func TestInputDuringSessionDoesNotEndIt(t *testing.T) {
	page := newAnchoredPage(t)
	fc := clockwork.NewFakeClock()
	pointer := NewPointer(page)
	a := NewAutomaton(testAutomatonConfig(), page, pointer, fc, fixedRand{f: 0.9})
	defer a.Stop()

	a.Reset()
	blockUntil(t, fc, 1)
	fc.Advance(30 * time.Second)
	waitFor(t, func() bool { return a.State() == StateWandering })

	a.Reset()
	if a.State() != StateWandering {
		t.Fatalf("input must not cancel a running session by default")
	}
}

func TestStopOnInputEndsSession(t *testing.T) {
	page := newAnchoredPage(t)
	fc := clockwork.NewFakeClock()
	pointer := NewPointer(page)
	cfg := testAutomatonConfig()
	cfg.StopOnInput = true
	a := NewAutomaton(cfg, page, pointer, fc, fixedRand{f: 0.1})
	defer a.Stop()

	a.Reset()
	blockUntil(t, fc, 1)
	fc.Advance(30 * time.Second)
	blockUntil(t, fc, 2)
	fc.Advance(500 * time.Millisecond)
	waitFor(t, func() bool { return !pointer.State().Visible })

	a.Reset()
	if a.State() != StateQuiescent || !pointer.State().Visible {
		t.Fatalf("input should end the session and restore the cursor")
	}
}

func TestSeededRandSourceIsRepeatable(t *testing.T) {
	r1, r2 := NewRandSource(42), NewRandSource(42)
	for i := 0; i < 10; i++ {
		if r1.Float64() != r2.Float64() || r1.Int63n(100) != r2.Int63n(100) {
			t.Fatalf("seeded sources diverged at draw %d", i)
		}
	}
}
