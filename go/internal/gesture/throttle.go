package gesture

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/fakemouse/go/internal/clock"
	"github.com/mcdev12/fakemouse/go/internal/protocol"
)

const DefaultThrottleInterval = 50 * time.Millisecond

// OrientationSample is a raw tilt reading. Platforms report nil for axes
// they cannot measure.
type OrientationSample struct {
	Alpha *float64 `json:"alpha"`
	Beta  *float64 `json:"beta"`
	Gamma *float64 `json:"gamma"`
}

// MotionSample is a raw motion reading.
type MotionSample struct {
	Acceleration struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
		Z *float64 `json:"z"`
	} `json:"acceleration"`
	RotationRate struct {
		Alpha *float64 `json:"alpha"`
		Beta  *float64 `json:"beta"`
		Gamma *float64 `json:"gamma"`
	} `json:"rotation_rate"`
}

// Throttler limits each continuous sensor stream to at most one message per
// interval. Streams are throttled independently.
type Throttler struct {
	interval time.Duration
	clock    clock.Clock

	mu   sync.Mutex
	last map[protocol.Type]time.Time
}

// NewThrottler creates a throttler. A nil clock uses the wall clock.
func NewThrottler(interval time.Duration, clk clock.Clock) *Throttler {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Throttler{
		interval: interval,
		clock:    clk,
		last:     make(map[protocol.Type]time.Time),
	}
}

// Orientation returns a message for s when the orientation stream is due.
// Incomplete samples are dropped and do not consume the interval.
func (t *Throttler) Orientation(s OrientationSample) (*protocol.Message, bool) {
	if s.Alpha == nil || s.Beta == nil || s.Gamma == nil {
		return nil, false
	}
	if !t.allow(protocol.TypeOrientation) {
		return nil, false
	}
	return protocol.NewOrientation(protocol.Orientation{
		Alpha: *s.Alpha,
		Beta:  *s.Beta,
		Gamma: *s.Gamma,
	}), true
}

// Motion returns a message for s when the motion stream is due.
func (t *Throttler) Motion(s MotionSample) (*protocol.Message, bool) {
	a, r := s.Acceleration, s.RotationRate
	if a.X == nil || a.Y == nil || a.Z == nil || r.Alpha == nil || r.Beta == nil || r.Gamma == nil {
		return nil, false
	}
	if !t.allow(protocol.TypeMotion) {
		return nil, false
	}
	return protocol.NewMotion(protocol.Motion{
		Acceleration: protocol.Vector3{X: *a.X, Y: *a.Y, Z: *a.Z},
		RotationRate: protocol.Rotation{Alpha: *r.Alpha, Beta: *r.Beta, Gamma: *r.Gamma},
	}), true
}

func (t *Throttler) allow(stream protocol.Type) bool {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[stream]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[stream] = now
	return true
}
