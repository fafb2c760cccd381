// Package surface describes the page the actuator drives: element lookup,
// synthetic clicks, cursor rendering, text layout and notifications.
package surface

import (
	"errors"
	"strings"

	"github.com/mcdev12/fakemouse/go/internal/protocol"
)

// Point is a page coordinate in CSS pixels.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Size is a width and height in CSS pixels.
type Size struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Rect is an axis-aligned rectangle. Right and Bottom are exclusive for
// hit testing.
type Rect struct {
	Left   float64 `yaml:"left"`
	Top    float64 `yaml:"top"`
	Right  float64 `yaml:"right"`
	Bottom float64 `yaml:"bottom"`
}

// RectBetween returns the rectangle spanned by two corners in any order.
func RectBetween(a, b Point) Rect {
	return Rect{
		Left:   min(a.X, b.X),
		Top:    min(a.Y, b.Y),
		Right:  max(a.X, b.X),
		Bottom: max(a.Y, b.Y),
	}
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Right && p.Y >= r.Top && p.Y < r.Bottom
}

// Intersects reports whether the two rectangles overlap or touch.
func (r Rect) Intersects(o Rect) bool {
	return r.Left <= o.Right && o.Left <= r.Right && r.Top <= o.Bottom && o.Top <= r.Bottom
}

// CursorState is the virtual cursor's rendered state.
type CursorState struct {
	Position Point
	Visible  bool
}

// Element is a handle to a page element.
type Element struct {
	ID      string `yaml:"id"`
	Tag     string `yaml:"tag"`
	OnClick bool   `yaml:"onclick"`
	Cursor  string `yaml:"cursor"`
	Text    string `yaml:"text"`
	Bounds  Rect   `yaml:"bounds"`
}

// TextBox is the layout box of one text node. Node identifies the node so
// callers can tell boxes of the same node apart from adjacent ones.
type TextBox struct {
	Node   int
	Text   string
	Bounds Rect
}

// Surface is everything the actuator needs from the page.
type Surface interface {
	Viewport() Size
	CursorSize() Size
	ElementAt(p Point) (Element, bool)
	IsClickable(e Element) bool
	// DispatchClick fires mousedown, mouseup and click on e.
	DispatchClick(e Element)
	SetCursor(c CursorState)
	// TextBoxes returns the visible text boxes in document order.
	TextBoxes() []TextBox
	// Highlight marks r and returns a func that removes the mark.
	Highlight(r Rect) (remove func())
	ScrollBy(dy float64)
	Notify(message string)
	ShowSensor(m *protocol.Message)
	Anchors() []Point
}

var (
	// ErrNoElement is returned when nothing is under the requested point.
	ErrNoElement = errors.New("no element at point")
	// ErrNotClickable is returned for elements that ignore clicks.
	ErrNotClickable = errors.New("element is not clickable")
)

// ClickAt clicks the element under pt if it is clickable and returns it.
func ClickAt(s Surface, pt Point) (Element, error) {
	el, ok := s.ElementAt(pt)
	if !ok {
		return Element{}, ErrNoElement
	}
	if !s.IsClickable(el) {
		return el, ErrNotClickable
	}
	s.DispatchClick(el)
	return el, nil
}

var clickableTags = map[string]bool{
	"button": true,
	"a":      true,
	"input":  true,
	"select": true,
}

// Clickable is the predicate for elements that react to a synthetic click:
// interactive tags, elements with a click handler, and elements styled with
// a pointer cursor.
func Clickable(tag string, hasClickHandler bool, cursorStyle string) bool {
	if clickableTags[strings.ToLower(tag)] {
		return true
	}
	if hasClickHandler {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(cursorStyle), "pointer")
}
