package world

import (
	"fmt"

	"pixelboard/internal/models"
)

// Canvas is a fixed-size, row-major grid of colors. len(pixels) is always
// width*height and both dimensions are always positive.
type Canvas struct {
	width  int
	height int
	pixels []models.Color
}

// MaxCanvasPixels bounds width*height for any canvas, live or restored.
const MaxCanvasPixels = 1 << 26

// CheckDimensions reports whether a width x height canvas may exist: both
// sides positive and the area within MaxCanvasPixels.
func CheckDimensions(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxCanvasPixels/height {
		return invalidDimensions(width, height)
	}
	return nil
}

// NewCanvas returns a white canvas of the given size.
func NewCanvas(width, height int) (*Canvas, error) {
	if err := CheckDimensions(width, height); err != nil {
		return nil, err
	}
	return &Canvas{
		width:  width,
		height: height,
		pixels: whitePixels(width * height),
	}, nil
}

// NewCanvasFromPixels builds a canvas over an existing row-major pixel slice.
// The slice is copied.
func NewCanvasFromPixels(width, height int, pixels []models.Color) (*Canvas, error) {
	if err := CheckDimensions(width, height); err != nil {
		return nil, err
	}
	if len(pixels) != width*height {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", ErrInvalidDimensions, len(pixels), width, height)
	}
	return &Canvas{
		width:  width,
		height: height,
		pixels: append([]models.Color(nil), pixels...),
	}, nil
}

func whitePixels(n int) []models.Color {
	p := make([]models.Color, n)
	white := models.White()
	for i := range p {
		p[i] = white
	}
	return p
}

func (c *Canvas) Width() int  { return c.width }
func (c *Canvas) Height() int { return c.height }

func (c *Canvas) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < c.width && y < c.height
}

// Pixel returns the color at (x, y).
func (c *Canvas) Pixel(x, y int) (models.Color, error) {
	if !c.inBounds(x, y) {
		return models.Color{}, outOfBounds(c.width, c.height)
	}
	return c.pixels[y*c.width+x], nil
}

// SetPixel paints (x, y). Nothing changes when the coordinate is out of bounds.
func (c *Canvas) SetPixel(x, y int, color models.Color) error {
	if !c.inBounds(x, y) {
		return outOfBounds(c.width, c.height)
	}
	c.pixels[y*c.width+x] = color
	return nil
}

// Resize replaces the grid with a white one of the new size and copies the
// old content to the position selected by anchor. Content that no longer
// fits is cropped.
func (c *Canvas) Resize(newWidth, newHeight int, anchor models.Anchor) error {
	if err := CheckDimensions(newWidth, newHeight); err != nil {
		return err
	}
	if !anchor.Valid() {
		return fmt.Errorf("resize: %w: %d", models.ErrUnknownAnchor, uint8(anchor))
	}

	growX := max(newWidth-c.width, 0)
	growY := max(newHeight-c.height, 0)

	var offX, offY int
	switch anchor {
	case models.AnchorTopLeft:
	case models.AnchorTopRight:
		offX = growX
	case models.AnchorBottomLeft:
		offY = growY
	case models.AnchorBottomRight:
		offX, offY = growX, growY
	case models.AnchorCenter:
		offX, offY = growX/2, growY/2
	}

	pixels := whitePixels(newWidth * newHeight)
	for y := 0; y < c.height; y++ {
		ny := y + offY
		if ny >= newHeight {
			break
		}
		for x := 0; x < c.width; x++ {
			nx := x + offX
			if nx >= newWidth {
				break
			}
			pixels[ny*newWidth+nx] = c.pixels[y*c.width+x]
		}
	}

	c.width, c.height, c.pixels = newWidth, newHeight, pixels
	return nil
}

// Clone returns a deep copy.
func (c *Canvas) Clone() *Canvas {
	return &Canvas{
		width:  c.width,
		height: c.height,
		pixels: append([]models.Color(nil), c.pixels...),
	}
}

// Equal reports whether both canvases have the same size and pixels.
func (c *Canvas) Equal(other *Canvas) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.width != other.width || c.height != other.height {
		return false
	}
	for i := range c.pixels {
		if c.pixels[i] != other.pixels[i] {
			return false
		}
	}
	return true
}

// Pixels returns a copy of the row-major pixel data.
func (c *Canvas) Pixels() []models.Color {
	return append([]models.Color(nil), c.pixels...)
}

// HexRows renders the canvas as board[y][x] hex strings.
func (c *Canvas) HexRows() [][]string {
	rows := make([][]string, c.height)
	for y := range rows {
		row := make([]string, c.width)
		for x := range row {
			row[x] = c.pixels[y*c.width+x].Hex()
		}
		rows[y] = row
	}
	return rows
}

// apply performs ev against c. It is the only place that interprets events,
// so live mutation and history replay cannot drift apart.
func (c *Canvas) apply(ev models.ChangeEvent) error {
	switch e := ev.(type) {
	case models.Paint:
		return c.SetPixel(e.X, e.Y, e.Color)
	case models.Resize:
		return c.Resize(e.Width, e.Height, e.Anchor)
	default:
		return fmt.Errorf("unsupported change event %T", ev)
	}
}
