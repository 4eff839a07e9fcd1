package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

/*
Wire protocol for the canvas websocket.

Client -> server (JSON, "type" discriminator):
  {"type":"paint","x":1,"y":2,"color":"#RRGGBB"}
  {"type":"ping"}
  {"type":"resize","width":64,"height":64,"anchor":"Center"}

Server -> client:
  {"type":"init","width":W,"height":H,"board":[[hex,...],...],"cooldown":0}
  {"type":"update","x":1,"y":2,"color":"#RRGGBB"}
  {"type":"pong","clients":N}

The board is row-major: board[y][x].
*/

// ErrUnknownMessage is returned for a well-formed JSON object whose type tag
// is not part of the protocol.
var ErrUnknownMessage = errors.New("unknown message type")

const (
	MessageTypePaint  = "paint"
	MessageTypePing   = "ping"
	MessageTypeResize = "resize"
	MessageTypeInit   = "init"
	MessageTypeUpdate = "update"
	MessageTypePong   = "pong"
)

// ClientMessage is a decoded inbound command.
type ClientMessage interface {
	clientMessage()
}

// PaintCommand asks for one pixel to be painted. Color is validated by the
// handler, not the decoder, so a bad color is reported with its coordinates.
type PaintCommand struct {
	X     uint   `json:"x"`
	Y     uint   `json:"y"`
	Color string `json:"color"`
}

// PingCommand asks for the current connected-client count.
type PingCommand struct{}

// ResizeCommand asks for the canvas to be resized.
type ResizeCommand struct {
	Width  uint   `json:"width"`
	Height uint   `json:"height"`
	Anchor Anchor `json:"anchor"`
}

func (PaintCommand) clientMessage()  {}
func (PingCommand) clientMessage()   {}
func (ResizeCommand) clientMessage() {}

type envelope struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one inbound text frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case MessageTypePaint:
		var m PaintCommand
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode paint: %w", err)
		}
		return m, nil
	case MessageTypePing:
		return PingCommand{}, nil
	case MessageTypeResize:
		var m ResizeCommand
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode resize: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

// InitMessage carries the full board to a client.
type InitMessage struct {
	Type     string     `json:"type"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Board    [][]string `json:"board"`
	Cooldown uint       `json:"cooldown"`
}

// UpdateMessage announces one accepted paint.
type UpdateMessage struct {
	Type  string `json:"type"`
	X     uint   `json:"x"`
	Y     uint   `json:"y"`
	Color string `json:"color"`
}

// PongMessage answers a ping with the number of registered sessions.
type PongMessage struct {
	Type    string `json:"type"`
	Clients int    `json:"clients"`
}

// NewInitMessage builds an init payload. Cooldown is reserved and always zero.
func NewInitMessage(width, height int, board [][]string) InitMessage {
	return InitMessage{Type: MessageTypeInit, Width: width, Height: height, Board: board}
}

func NewUpdateMessage(x, y uint, color Color) UpdateMessage {
	return UpdateMessage{Type: MessageTypeUpdate, X: x, Y: y, Color: color.Hex()}
}

func NewPongMessage(clients int) PongMessage {
	return PongMessage{Type: MessageTypePong, Clients: clients}
}
