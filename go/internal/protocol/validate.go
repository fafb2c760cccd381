package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object.
	ErrMalformed = errors.New("malformed frame")
	// ErrMissingField is returned when a required field is absent or null.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidField is returned when a field is present but out of range.
	ErrInvalidField = errors.New("invalid field")
	// ErrUnknownType is returned for an unrecognised discriminator.
	ErrUnknownType = errors.New("unknown message type")
)

var (
	gestureFields     = []string{"x", "y", "type"}
	orientationFields = []string{"alpha", "beta", "gamma"}
	accelerationAxes  = []string{"x", "y", "z"}
	rotationAxes      = []string{"alpha", "beta", "gamma"}
)

// Validate parses a raw frame and checks the fields its variant requires.
// Rejected frames are meant to be dropped by the caller, never answered.
func Validate(raw []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrMalformed
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty object", ErrMalformed)
	}

	var t Type
	if typ, ok := fields["type"]; ok && !isNull(typ) {
		if err := json.Unmarshal(typ, &t); err != nil {
			return nil, fmt.Errorf("%w: type is not a string", ErrMalformed)
		}
	} else if _, ok := fields["copied_text"]; ok {
		t = TypeCopiedText
	}

	switch {
	case t.IsGesture():
		return validateGesture(t, fields)
	case t == TypeOrientation:
		return validateOrientation(fields)
	case t == TypeMotion:
		return validateMotion(fields)
	case t == TypeCopiedText:
		return validateCopiedText(fields)
	case t == "":
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func validateGesture(t Type, fields map[string]json.RawMessage) (*Message, error) {
	if err := require(fields, gestureFields); err != nil {
		return nil, err
	}

	g := Gesture{Fingers: 1}
	if err := decodeInto(fields, &g); err != nil {
		return nil, err
	}
	if _, ok := fields["fingers"]; ok && g.Fingers < 1 {
		return nil, fmt.Errorf("%w: fingers must be at least 1, got %d", ErrInvalidField, g.Fingers)
	}

	return &Message{Type: t, Gesture: &g}, nil
}

func validateOrientation(fields map[string]json.RawMessage) (*Message, error) {
	if err := require(fields, orientationFields); err != nil {
		return nil, err
	}

	var o Orientation
	if err := decodeInto(fields, &o); err != nil {
		return nil, err
	}
	return NewOrientation(o), nil
}

func validateMotion(fields map[string]json.RawMessage) (*Message, error) {
	if err := requireNested(fields, "acceleration", accelerationAxes); err != nil {
		return nil, err
	}
	if err := requireNested(fields, "rotation_rate", rotationAxes); err != nil {
		return nil, err
	}

	var m Motion
	if err := decodeInto(fields, &m); err != nil {
		return nil, err
	}
	return NewMotion(m), nil
}

func validateCopiedText(fields map[string]json.RawMessage) (*Message, error) {
	raw, ok := fields["copied_text"]
	if !ok || isNull(raw) {
		return nil, fmt.Errorf("%w: copied_text", ErrMissingField)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("%w: copied_text is not a string", ErrMalformed)
	}
	return NewCopiedText(text), nil
}

func require(fields map[string]json.RawMessage, names []string) error {
	for _, name := range names {
		if v, ok := fields[name]; !ok || isNull(v) {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	return nil
}

func requireNested(fields map[string]json.RawMessage, key string, names []string) error {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return fmt.Errorf("%w: %s", ErrMissingField, key)
	}

	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil {
		return fmt.Errorf("%w: %s is not an object", ErrMalformed, key)
	}
	for _, name := range names {
		if v, ok := nested[name]; !ok || isNull(v) {
			return fmt.Errorf("%w: %s.%s", ErrMissingField, key, name)
		}
	}
	return nil
}

// decodeInto re-decodes the already split object into a typed variant.
func decodeInto(fields map[string]json.RawMessage, v interface{}) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
