package gesture

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fakemouse/go/internal/protocol"
)

func f(v float64) *float64 { return &v }

func orientation(a, b, g float64) OrientationSample {
	return OrientationSample{Alpha: f(a), Beta: f(b), Gamma: f(g)}
}

func TestBurstIsThrottledToOneMessage(t *testing.T) {
	fc := clockwork.NewFakeClock()
	th := NewThrottler(50*time.Millisecond, fc)

	emitted := 0
	for i := 0; i < 100; i++ {
		if _, ok := th.Orientation(orientation(float64(i), 0, 0)); ok {
			emitted++
		}
		fc.Advance(100 * time.Microsecond)
	}
	if emitted != 1 {
		t.Fatalf("expected exactly one message from a 10ms burst, got %d", emitted)
	}
}

func TestThrottleEmitsAgainAfterInterval(t *testing.T) {
	fc := clockwork.NewFakeClock()
	th := NewThrottler(50*time.Millisecond, fc)

	msg, ok := th.Orientation(orientation(1, 2, 3))
	if !ok || msg.Type != protocol.TypeOrientation || msg.Alpha != 1 || msg.Gamma != 3 {
		t.Fatalf("first sample should be emitted, got %+v", msg)
	}

	fc.Advance(49 * time.Millisecond)
	if _, ok := th.Orientation(orientation(1, 2, 3)); ok {
		t.Fatalf("sample inside interval should be dropped")
	}
	fc.Advance(time.Millisecond)
	if _, ok := th.Orientation(orientation(1, 2, 3)); !ok {
		t.Fatalf("sample after interval should be emitted")
	}
}

func TestStreamsAreThrottledIndependently(t *testing.T) {
	fc := clockwork.NewFakeClock()
	th := NewThrottler(50*time.Millisecond, fc)

	var m MotionSample
	m.Acceleration.X, m.Acceleration.Y, m.Acceleration.Z = f(0.1), f(0.2), f(9.8)
	m.RotationRate.Alpha, m.RotationRate.Beta, m.RotationRate.Gamma = f(1), f(2), f(3)

	if _, ok := th.Orientation(orientation(1, 2, 3)); !ok {
		t.Fatalf("expected orientation")
	}
	msg, ok := th.Motion(m)
	if !ok {
		t.Fatalf("motion must not be throttled by orientation")
	}
	if msg.Acceleration.Z != 9.8 || msg.RotationRate.Beta != 2 {
		t.Fatalf("unexpected motion payload %+v", msg.Motion)
	}
}

func TestIncompleteSampleDoesNotConsumeInterval(t *testing.T) {
	fc := clockwork.NewFakeClock()
	th := NewThrottler(50*time.Millisecond, fc)

	if _, ok := th.Orientation(OrientationSample{Alpha: f(1)}); ok {
		t.Fatalf("incomplete sample should be dropped")
	}
	if _, ok := th.Orientation(orientation(1, 2, 3)); !ok {
		t.Fatalf("complete sample should still be emitted")
	}
}
