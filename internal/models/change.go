package models

import (
	"errors"
	"fmt"
)

// ErrUnknownAnchor is returned when an anchor name is not recognised.
var ErrUnknownAnchor = errors.New("unknown anchor")

// Anchor selects where existing content is placed when a canvas is resized.
type Anchor uint8

const (
	AnchorTopLeft Anchor = iota
	AnchorTopRight
	AnchorBottomLeft
	AnchorBottomRight
	AnchorCenter
)

var anchorNames = [...]string{
	AnchorTopLeft:     "TopLeft",
	AnchorTopRight:    "TopRight",
	AnchorBottomLeft:  "BottomLeft",
	AnchorBottomRight: "BottomRight",
	AnchorCenter:      "Center",
}

func (a Anchor) String() string {
	if int(a) < len(anchorNames) {
		return anchorNames[a]
	}
	return fmt.Sprintf("Anchor(%d)", uint8(a))
}

// Valid reports whether a is one of the defined anchors.
func (a Anchor) Valid() bool { return int(a) < len(anchorNames) }

// ParseAnchor maps a wire name ("TopLeft", "Center", ...) to an Anchor.
func ParseAnchor(s string) (Anchor, error) {
	for i, name := range anchorNames {
		if name == s {
			return Anchor(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAnchor, s)
}

// MarshalText implements encoding.TextMarshaler so anchors travel as names in JSON.
func (a Anchor) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAnchor, uint8(a))
	}
	return []byte(anchorNames[a]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Anchor) UnmarshalText(text []byte) error {
	v, err := ParseAnchor(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ChangeEvent is one mutation of the canvas. The set of implementations is
// closed: Paint and Resize.
type ChangeEvent interface {
	changeEvent()
}

// Paint sets a single pixel. Coordinates are checked against the canvas only
// when the event is applied.
type Paint struct {
	X     int
	Y     int
	Color Color
}

// Resize changes the canvas dimensions, keeping existing content at Anchor.
type Resize struct {
	Width  int
	Height int
	Anchor Anchor
}

func (Paint) changeEvent()  {}
func (Resize) changeEvent() {}

// Change is an applied event stamped with wall-clock milliseconds since epoch.
type Change struct {
	Event     ChangeEvent
	Timestamp int64
}
