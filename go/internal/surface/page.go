package surface

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mcdev12/fakemouse/go/internal/protocol"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const anchorSize = 10

// PageSpec is the YAML description of a headless page.
type PageSpec struct {
	Viewport Size      `yaml:"viewport"`
	Cursor   Size      `yaml:"cursor"`
	Elements []Element `yaml:"elements"`
	Anchors  []Anchor  `yaml:"anchors"`
}

// Anchor is a hidden link the wandering cursor may snap to. Anchors without
// a position are laid out along the page diagonal.
type Anchor struct {
	Href string `yaml:"href"`
	At   *Point `yaml:"at"`
}

// Page is a headless Surface. It records every interaction so the actuator
// can run without a browser.
type Page struct {
	viewport Size
	cursor   Size
	elements []Element
	anchors  []Point

	mu            sync.Mutex
	state         CursorState
	clicks        []string
	highlights    map[int]Rect
	nextHighlight int
	scrollY       float64
	notifications []string
	lastSensor    *protocol.Message
}

// LoadPage reads a page description from a YAML file.
func LoadPage(path string) (*Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read page file: %w", err)
	}
	var spec PageSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse page file: %w", err)
	}
	return NewPage(spec)
}

// NewPage builds a page from its description.
func NewPage(spec PageSpec) (*Page, error) {
	if spec.Viewport.Width <= 0 || spec.Viewport.Height <= 0 {
		return nil, errors.New("page viewport must have a positive size")
	}
	if spec.Cursor.Width <= 0 || spec.Cursor.Height <= 0 {
		spec.Cursor = Size{Width: 20, Height: 20}
	}

	p := &Page{
		viewport:   spec.Viewport,
		cursor:     spec.Cursor,
		elements:   append([]Element(nil), spec.Elements...),
		highlights: make(map[int]Rect),
		state:      CursorState{Visible: true},
	}

	spacing := min(spec.Viewport.Width, spec.Viewport.Height) / float64(max(len(spec.Anchors), 1))
	for i, a := range spec.Anchors {
		at := Point{X: float64(i) * spacing, Y: float64(i) * spacing}
		if a.At != nil {
			at = *a.At
		}
		p.anchors = append(p.anchors, at)
		// Anchors are transparent links painted above the content.
		p.elements = append(p.elements, Element{
			ID:     fmt.Sprintf("anchor-%d", i),
			Tag:    "a",
			Bounds: Rect{Left: at.X, Top: at.Y, Right: at.X + anchorSize, Bottom: at.Y + anchorSize},
		})
	}

	return p, nil
}

func (p *Page) Viewport() Size   { return p.viewport }
func (p *Page) CursorSize() Size { return p.cursor }

// ElementAt returns the topmost element containing pt. Later elements are
// painted above earlier ones.
func (p *Page) ElementAt(pt Point) (Element, bool) {
	p.mu.Lock()
	scroll := p.scrollY
	p.mu.Unlock()

	doc := Point{X: pt.X, Y: pt.Y + scroll}
	for i := len(p.elements) - 1; i >= 0; i-- {
		if p.elements[i].Bounds.Contains(doc) {
			return p.elements[i], true
		}
	}
	return Element{}, false
}

func (p *Page) IsClickable(e Element) bool {
	return Clickable(e.Tag, e.OnClick, e.Cursor)
}

func (p *Page) DispatchClick(e Element) {
	p.mu.Lock()
	p.clicks = append(p.clicks, e.ID)
	p.mu.Unlock()

	for _, event := range []string{"mousedown", "mouseup", "click"} {
		log.Debug().Str("element", e.ID).Str("tag", e.Tag).Str("event", event).Msg("dispatch")
	}
}

func (p *Page) SetCursor(c CursorState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = c
}

// TextBoxes returns one box per element with text, in document order, in
// viewport coordinates.
func (p *Page) TextBoxes() []TextBox {
	p.mu.Lock()
	scroll := p.scrollY
	p.mu.Unlock()

	var boxes []TextBox
	for i, e := range p.elements {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		b := e.Bounds
		b.Top -= scroll
		b.Bottom -= scroll
		boxes = append(boxes, TextBox{Node: i, Text: e.Text, Bounds: b})
	}
	return boxes
}

func (p *Page) Highlight(r Rect) func() {
	p.mu.Lock()
	id := p.nextHighlight
	p.nextHighlight++
	p.highlights[id] = r
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.highlights, id)
	}
}

func (p *Page) ScrollBy(dy float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrollY = max(0, p.scrollY+dy)
}

func (p *Page) Notify(message string) {
	p.mu.Lock()
	p.notifications = append(p.notifications, message)
	p.mu.Unlock()

	log.Info().Str("toast", message).Msg("notification")
}

func (p *Page) ShowSensor(m *protocol.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSensor = m
}

func (p *Page) Anchors() []Point {
	return append([]Point(nil), p.anchors...)
}

// Cursor returns the last rendered cursor state.
func (p *Page) Cursor() CursorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Clicks returns the IDs of clicked elements in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Highlights returns the marks currently shown.
func (p *Page) Highlights() []Rect {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Rect, 0, len(p.highlights))
	for i := 0; i < p.nextHighlight; i++ {
		if r, ok := p.highlights[i]; ok {
			out = append(out, r)
		}
	}
	return out
}

// ScrollY returns the vertical scroll offset.
func (p *Page) ScrollY() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollY
}

// Notifications returns every message shown so far.
func (p *Page) Notifications() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notifications...)
}

// LastSensor returns the most recent orientation or motion sample shown.
func (p *Page) LastSensor() *protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSensor
}

var _ Surface = (*Page)(nil)
