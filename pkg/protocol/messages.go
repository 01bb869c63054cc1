package protocol

import (
	"encoding/json"

	"github.com/a-essam23/go-canvas/pkg/canvas"
)

type Event string

const (
	EventJoin        Event = "join"
	EventLeave       Event = "leave"
	EventRoomState   Event = "room_state"
	EventStrokeChunk Event = "stroke_chunk"
	EventStrokeEnd   Event = "stroke_end"
	EventUndo        Event = "undo"
	EventRedo        Event = "redo"
	EventCursor      Event = "cursor"
	EventUserJoin    Event = "user_join"
	EventUserLeft    Event = "user_left"
	EventError       Event = "error"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type JoinRequest struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

// RoomState is unicast to a joiner. Redo state is deliberately absent.
type RoomState struct {
	Self    string             `json:"self"`
	Users   map[string]User    `json:"users"`
	History []canvas.Operation `json:"history"`
}

// StrokeChunk carries only the increment since the previous chunk of the
// same operation, plus enough style to create the op on first sight.
type StrokeChunk struct {
	OpID      string           `json:"opId"`
	UserID    string           `json:"userId,omitempty"`
	Kind      canvas.Kind      `json:"kind,omitempty"`
	Points    []canvas.Point   `json:"points,omitempty"`
	Shape     canvas.ShapeKind `json:"shape,omitempty"`
	Start     *canvas.Point    `json:"start,omitempty"`
	End       *canvas.Point    `json:"end,omitempty"`
	Color     string           `json:"color"`
	Width     float64          `json:"width"`
	IsEraser  bool             `json:"isEraser"`
	Timestamp int64            `json:"timestamp"`
}

// ChunkKind defaults to stroke, which is what chunks without a kind are.
func (c *StrokeChunk) ChunkKind() canvas.Kind {
	if c.Kind == "" {
		return canvas.KindStroke
	}
	return c.Kind
}

type CursorUpdate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Cursor struct {
	UserID string  `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Color  string  `json:"color"`
	Name   string  `json:"name"`
}

type UserJoin struct {
	Users map[string]User `json:"users"`
}

type UserLeft struct {
	UserID string `json:"userId"`
}

type ErrorNotice struct {
	Event   Event  `json:"event"`
	Message string `json:"message"`
}
