// Package protocol defines the JSON frames exchanged between the sending
// device, the relay and the actuator.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Type discriminates the relay message variants.
type Type string

const (
	TypeTouch       Type = "touch"
	TypeDrag        Type = "drag"
	TypeScroll      Type = "scroll"
	TypeOrientation Type = "orientation"
	TypeMotion      Type = "motion"
	TypeCopiedText  Type = "copied_text"
)

// IsGesture reports whether t is one of the pointer gesture variants.
func (t Type) IsGesture() bool {
	switch t {
	case TypeTouch, TypeDrag, TypeScroll:
		return true
	}
	return false
}

// Message is the tagged union carried by every frame. Exactly one of the
// embedded variant payloads is set, matching Type.
type Message struct {
	Type Type `json:"type"`

	*Gesture
	*Orientation
	*Motion

	CopiedText *string `json:"copied_text,omitempty"`
}

// Gesture carries a pointer delta. Single-finger deltas are normalized by the
// sender's viewport; multi-finger deltas are raw device pixels.
type Gesture struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Click         Click   `json:"click"`
	Fingers       int     `json:"fingers"`
	BrowserWidth  float64 `json:"browser_width,omitempty"`
	BrowserHeight float64 `json:"browser_height,omitempty"`
}

// Orientation is a device tilt sample in degrees.
type Orientation struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Motion is a device motion sample.
type Motion struct {
	Acceleration Vector3  `json:"acceleration"`
	RotationRate Rotation `json:"rotation_rate"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Rotation struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Click is encoded on the wire as 0 or 1. Booleans are accepted on input.
type Click bool

func (c Click) MarshalJSON() ([]byte, error) {
	if c {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (c *Click) UnmarshalJSON(data []byte) error {
	switch s := string(data); s {
	case "true":
		*c = true
	case "false", "null":
		*c = false
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("click must be 0/1 or a boolean, got %s", s)
		}
		*c = f != 0
	}
	return nil
}

// NewGesture builds a pointer gesture frame.
func NewGesture(t Type, x, y float64, click bool, fingers int, browserWidth, browserHeight float64) *Message {
	return &Message{
		Type: t,
		Gesture: &Gesture{
			X:             x,
			Y:             y,
			Click:         Click(click),
			Fingers:       fingers,
			BrowserWidth:  browserWidth,
			BrowserHeight: browserHeight,
		},
	}
}

// NewOrientation builds an orientation frame.
func NewOrientation(o Orientation) *Message {
	return &Message{Type: TypeOrientation, Orientation: &o}
}

// NewMotion builds a motion frame.
func NewMotion(m Motion) *Message {
	return &Message{Type: TypeMotion, Motion: &m}
}

// NewCopiedText builds the frame returning extracted text to the sender.
func NewCopiedText(text string) *Message {
	return &Message{Type: TypeCopiedText, CopiedText: &text}
}

// Encode serializes a message into a single frame.
func Encode(m *Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	return data, nil
}
