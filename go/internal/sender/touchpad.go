// Package sender is the touch pad peer: it classifies raw touch input,
// throttles sensor streams and relays the results.
package sender

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/fakemouse/go/internal/clock"
	"github.com/mcdev12/fakemouse/go/internal/config"
	"github.com/mcdev12/fakemouse/go/internal/gesture"
	"github.com/mcdev12/fakemouse/go/internal/protocol"
	"github.com/rs/zerolog/log"
)

// EventKind names a raw input event.
type EventKind string

const (
	EventPress       EventKind = "press"
	EventMove        EventKind = "move"
	EventRelease     EventKind = "release"
	EventOrientation EventKind = "orientation"
	EventMotion      EventKind = "motion"
)

// RawEvent is one input event from the device, as read from the NDJSON feed.
type RawEvent struct {
	Kind    EventKind `json:"kind"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Fingers int       `json:"fingers"`

	Orientation *gesture.OrientationSample `json:"orientation,omitempty"`
	Motion      *gesture.MotionSample      `json:"motion,omitempty"`
}

// Transport delivers messages to the relay.
type Transport interface {
	Send(m *protocol.Message) error
}

// Touchpad wires the classifier and throttler to a transport.
type Touchpad struct {
	classifier *gesture.Classifier
	throttler  *gesture.Throttler
	transport  Transport

	mu         sync.RWMutex
	copiedText string
	hasCopied  bool
}

// NewTouchpad builds a touch pad from the sender configuration.
func NewTouchpad(cfg config.Sender, clk clock.Clock, transport Transport) (*Touchpad, error) {
	classifier, err := gesture.NewClassifier(gesture.Options{
		LongPress:     cfg.LongPress,
		MoveThreshold: cfg.MoveThreshold,
		Viewport:      gesture.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		Clock:         clk,
		OnDragStart: func() {
			log.Info().Msg("drag mode")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	return &Touchpad{
		classifier: classifier,
		throttler:  gesture.NewThrottler(cfg.ThrottleInterval, clk),
		transport:  transport,
	}, nil
}

// HandleInput feeds one raw event through classification and relays any
// resulting message.
func (t *Touchpad) HandleInput(ev RawEvent) error {
	var (
		msg *protocol.Message
		ok  bool
	)

	switch ev.Kind {
	case EventPress:
		t.classifier.Press(ev.X, ev.Y, ev.Fingers)
		return nil
	case EventMove:
		t.classifier.Move(ev.X, ev.Y)
		return nil
	case EventRelease:
		msg, ok = t.classifier.Release(ev.X, ev.Y)
	case EventOrientation:
		if ev.Orientation == nil {
			return nil
		}
		msg, ok = t.throttler.Orientation(*ev.Orientation)
	case EventMotion:
		if ev.Motion == nil {
			return nil
		}
		msg, ok = t.throttler.Motion(*ev.Motion)
	default:
		return fmt.Errorf("unknown input event %q", ev.Kind)
	}

	if !ok {
		return nil
	}
	if err := t.transport.Send(msg); err != nil {
		return fmt.Errorf("relay %s: %w", msg.Type, err)
	}
	if msg.Type.IsGesture() {
		log.Debug().
			Str("type", string(msg.Type)).
			Float64("x", msg.X).
			Float64("y", msg.Y).
			Msg("gesture sent")
	}
	return nil
}

// HandleFrame consumes frames arriving from the relay. Only copied text is
// of interest to the touch pad.
func (t *Touchpad) HandleFrame(_ context.Context, raw []byte) {
	msg, err := protocol.Validate(raw)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring invalid frame")
		return
	}
	if msg.Type != protocol.TypeCopiedText {
		return
	}

	t.mu.Lock()
	t.copiedText = *msg.CopiedText
	t.hasCopied = true
	t.mu.Unlock()

	log.Info().Str("text", *msg.CopiedText).Msg("copied text received")
}

// CopiedText returns the most recent text extracted by the actuator.
func (t *Touchpad) CopiedText() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copiedText, t.hasCopied
}
