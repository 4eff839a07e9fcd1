package models

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidColor is returned when a color string is not of the form #RRGGBB.
var ErrInvalidColor = errors.New("invalid color")

// Color is a 24-bit RGB value. The zero value is black.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// White is the default color of every new pixel.
func White() Color { return Color{R: 0xFF, G: 0xFF, B: 0xFF} }

// Black returns #000000.
func Black() Color { return Color{} }

// Hex renders the color as an upper-case #RRGGBB string.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func (c Color) String() string { return c.Hex() }

// ParseHex decodes a #RRGGBB string. Hex digits are case-insensitive;
// anything other than exactly seven characters starting with '#' is rejected.
func ParseHex(s string) (Color, error) {
	if len(s) != 7 || s[0] != '#' {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	b, err := hex.DecodeString(s[1:])
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return Color{R: b[0], G: b[1], B: b[2]}, nil
}
