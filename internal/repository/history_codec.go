package repository

import (
	"bytes"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"pixelboard/internal/models"
	"pixelboard/internal/world"
)

/*
Binary history format.

  magic "PXHB" | version byte | body

The body is protobuf wire format, written and read field by field with
protowire so no generated code is needed. Unknown fields are skipped.

  History  { 1: interval varint; 2: repeated Change bytes; 3: repeated Snapshot bytes }
  Change   { 1: timestamp varint (zigzag); 2: Paint bytes | 3: Resize bytes }
  Paint    { 1: x varint; 2: y varint; 3: rgb varint (0xRRGGBB) }
  Resize   { 1: width varint; 2: height varint; 3: anchor varint }
  Snapshot { 1: change_count varint; 2: width varint; 3: height varint; 4: pixels bytes (RGB triplets) }
*/

var historyMagic = []byte("PXHB")

const historyFormatVersion = 1

var errWireType = errors.New("unexpected wire type")

// EncodeHistory serializes h. It only reads h, so callers may hold the
// world's read lock around it.
func EncodeHistory(h *world.History) ([]byte, error) {
	b := make([]byte, 0, 64)
	b = append(b, historyMagic...)
	b = append(b, historyFormatVersion)

	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.Interval()))

	for i, ch := range h.Changes() {
		msg, err := encodeChange(ch)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}

	for _, s := range h.Snapshots() {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeSnapshot(s))
	}

	return b, nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func encodeChange(ch models.Change) ([]byte, error) {
	b := appendVarintField(nil, 1, protowire.EncodeZigZag(ch.Timestamp))

	switch ev := ch.Event.(type) {
	case models.Paint:
		var p []byte
		p = appendVarintField(p, 1, uint64(ev.X))
		p = appendVarintField(p, 2, uint64(ev.Y))
		p = appendVarintField(p, 3, uint64(ev.Color.R)<<16|uint64(ev.Color.G)<<8|uint64(ev.Color.B))
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, p)
	case models.Resize:
		var r []byte
		r = appendVarintField(r, 1, uint64(ev.Width))
		r = appendVarintField(r, 2, uint64(ev.Height))
		r = appendVarintField(r, 3, uint64(ev.Anchor))
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, r)
	default:
		return nil, fmt.Errorf("unsupported change event %T", ch.Event)
	}
	return b, nil
}

func encodeSnapshot(s world.Snapshot) []byte {
	pixels := s.Canvas.Pixels()
	raw := make([]byte, 0, len(pixels)*3)
	for _, p := range pixels {
		raw = append(raw, p.R, p.G, p.B)
	}

	b := appendVarintField(nil, 1, uint64(s.ChangeCount))
	b = appendVarintField(b, 2, uint64(s.Canvas.Width()))
	b = appendVarintField(b, 3, uint64(s.Canvas.Height()))
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	return protowire.AppendBytes(b, raw)
}

// DecodeHistory parses data produced by EncodeHistory and validates the
// result with world.RestoreHistory.
func DecodeHistory(data []byte) (*world.History, error) {
	if len(data) < len(historyMagic)+1 || !bytes.Equal(data[:len(historyMagic)], historyMagic) {
		return nil, errors.New("missing history header")
	}
	if v := data[len(historyMagic)]; v != historyFormatVersion {
		return nil, fmt.Errorf("unsupported history format version %d", v)
	}

	var (
		interval  uint64
		changes   []models.Change
		snapshots []world.Snapshot
	)
	err := walkFields(data[len(historyMagic)+1:], func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			interval = v
			return n, err
		case 2:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			ch, err := decodeChange(msg)
			if err != nil {
				return n, fmt.Errorf("change %d: %w", len(changes), err)
			}
			changes = append(changes, ch)
			return n, nil
		case 3:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			s, err := decodeSnapshot(msg)
			if err != nil {
				return n, fmt.Errorf("snapshot %d: %w", len(snapshots), err)
			}
			snapshots = append(snapshots, s)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, err
	}

	return world.RestoreHistory(int(interval), changes, snapshots)
}

func decodeChange(data []byte) (models.Change, error) {
	var ch models.Change
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			ch.Timestamp = protowire.DecodeZigZag(v)
			return n, err
		case 2:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			var p models.Paint
			var rgb uint64
			err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case 1:
					v, n, err := consumeVarint(typ, b)
					p.X = int(v)
					return n, err
				case 2:
					v, n, err := consumeVarint(typ, b)
					p.Y = int(v)
					return n, err
				case 3:
					v, n, err := consumeVarint(typ, b)
					rgb = v
					return n, err
				default:
					return protowire.ConsumeFieldValue(num, typ, b), nil
				}
			})
			p.Color = models.Color{R: uint8(rgb >> 16), G: uint8(rgb >> 8), B: uint8(rgb)}
			ch.Event = p
			return n, err
		case 3:
			msg, n, err := consumeBytes(typ, b)
			if err != nil {
				return n, err
			}
			var r models.Resize
			err = walkFields(msg, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				switch num {
				case 1:
					v, n, err := consumeVarint(typ, b)
					r.Width = int(v)
					return n, err
				case 2:
					v, n, err := consumeVarint(typ, b)
					r.Height = int(v)
					return n, err
				case 3:
					v, n, err := consumeVarint(typ, b)
					r.Anchor = models.Anchor(v)
					return n, err
				default:
					return protowire.ConsumeFieldValue(num, typ, b), nil
				}
			})
			if err == nil && !r.Anchor.Valid() {
				err = fmt.Errorf("%w: %d", models.ErrUnknownAnchor, uint8(r.Anchor))
			}
			if err == nil {
				err = world.CheckDimensions(r.Width, r.Height)
			}
			ch.Event = r
			return n, err
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return models.Change{}, err
	}
	if ch.Event == nil {
		return models.Change{}, errors.New("change without event")
	}
	return ch, nil
}

func decodeSnapshot(data []byte) (world.Snapshot, error) {
	var (
		count, width, height uint64
		raw                  []byte
	)
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			count = v
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			width = v
			return n, err
		case 3:
			v, n, err := consumeVarint(typ, b)
			height = v
			return n, err
		case 4:
			v, n, err := consumeBytes(typ, b)
			raw = v
			return n, err
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return world.Snapshot{}, err
	}

	if width == 0 || height == 0 || width > world.MaxCanvasPixels || height > world.MaxCanvasPixels/width {
		return world.Snapshot{}, fmt.Errorf("snapshot size %dx%d: %w", width, height, world.ErrInvalidDimensions)
	}
	if uint64(len(raw)) != width*height*3 {
		return world.Snapshot{}, fmt.Errorf("pixel data of %d bytes for %dx%d", len(raw), width, height)
	}
	pixels := make([]models.Color, 0, len(raw)/3)
	for i := 0; i < len(raw); i += 3 {
		pixels = append(pixels, models.Color{R: raw[i], G: raw[i+1], B: raw[i+2]})
	}
	canvas, err := world.NewCanvasFromPixels(int(width), int(height), pixels)
	if err != nil {
		return world.Snapshot{}, err
	}
	return world.Snapshot{Canvas: canvas, ChangeCount: int(count)}, nil
}

// walkFields calls fn for every field in b. fn consumes the value and
// returns how many bytes it used; a negative count is a protowire error code.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}
