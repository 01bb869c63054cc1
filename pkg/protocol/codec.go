package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/tidwall/gjson"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownEvent = errors.New("unknown event")
)

// Message is the decoded, validated form of an Envelope. Exactly one of the
// pointer fields is set, matching Event. Undo, redo and leave requests from
// clients carry no body.
type Message struct {
	Event Event

	Join      *JoinRequest
	RoomState *RoomState
	Chunk     *StrokeChunk
	Operation *canvas.Operation
	Cursor    *CursorUpdate
	Presence  *Cursor
	UserJoin  *UserJoin
	UserLeft  *UserLeft
	Error     *ErrorNotice
}

// Encode wraps payload into an Envelope and marshals it.
func Encode(event Event, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// PeekEvent extracts the event name without decoding the payload.
func PeekEvent(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	ev := gjson.GetBytes(data, "event")
	if ev.Type != gjson.String || ev.Str == "" {
		return "", fmt.Errorf("%w: missing event", ErrMalformed)
	}
	return Event(ev.Str), nil
}

// DecodeClient decodes a frame sent by a client to the server.
func DecodeClient(data []byte) (*Message, error) {
	event, err := PeekEvent(data)
	if err != nil {
		return nil, err
	}
	payload := gjson.GetBytes(data, "payload")
	msg := &Message{Event: event}

	switch event {
	case EventJoin:
		var j JoinRequest
		if err := unmarshalPayload(payload, &j); err != nil {
			return nil, err
		}
		if j.Room == "" {
			return nil, fmt.Errorf("%w: join without room", ErrMalformed)
		}
		msg.Join = &j
	case EventStrokeChunk:
		var c StrokeChunk
		if err := unmarshalPayload(payload, &c); err != nil {
			return nil, err
		}
		if err := validateChunk(&c); err != nil {
			return nil, err
		}
		msg.Chunk = &c
	case EventStrokeEnd:
		var op canvas.Operation
		if err := unmarshalPayload(payload, &op); err != nil {
			return nil, err
		}
		if !op.Valid() {
			return nil, fmt.Errorf("%w: invalid operation", ErrMalformed)
		}
		msg.Operation = &op
	case EventCursor:
		if !payload.Get("x").Exists() || !payload.Get("y").Exists() {
			return nil, fmt.Errorf("%w: cursor without coordinates", ErrMalformed)
		}
		var c CursorUpdate
		if err := unmarshalPayload(payload, &c); err != nil {
			return nil, err
		}
		msg.Cursor = &c
	case EventUndo, EventRedo, EventLeave:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return msg, nil
}

// DecodeServer decodes a frame sent by the server to a client.
func DecodeServer(data []byte) (*Message, error) {
	event, err := PeekEvent(data)
	if err != nil {
		return nil, err
	}
	payload := gjson.GetBytes(data, "payload")
	msg := &Message{Event: event}

	switch event {
	case EventRoomState:
		var s RoomState
		if err := unmarshalPayload(payload, &s); err != nil {
			return nil, err
		}
		msg.RoomState = &s
	case EventStrokeChunk:
		var c StrokeChunk
		if err := unmarshalPayload(payload, &c); err != nil {
			return nil, err
		}
		if err := validateChunk(&c); err != nil {
			return nil, err
		}
		msg.Chunk = &c
	case EventStrokeEnd, EventUndo, EventRedo:
		var op canvas.Operation
		if err := unmarshalPayload(payload, &op); err != nil {
			return nil, err
		}
		if op.ID == "" {
			return nil, fmt.Errorf("%w: %s without operation id", ErrMalformed, event)
		}
		msg.Operation = &op
	case EventCursor:
		var c Cursor
		if err := unmarshalPayload(payload, &c); err != nil {
			return nil, err
		}
		msg.Presence = &c
	case EventUserJoin:
		var u UserJoin
		if err := unmarshalPayload(payload, &u); err != nil {
			return nil, err
		}
		msg.UserJoin = &u
	case EventUserLeft:
		var u UserLeft
		if err := unmarshalPayload(payload, &u); err != nil {
			return nil, err
		}
		msg.UserLeft = &u
	case EventError:
		var e ErrorNotice
		if err := unmarshalPayload(payload, &e); err != nil {
			return nil, err
		}
		msg.Error = &e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return msg, nil
}

func unmarshalPayload(payload gjson.Result, v any) error {
	if !payload.Exists() || !payload.IsObject() {
		return fmt.Errorf("%w: payload must be an object", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(payload.Raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func validateChunk(c *StrokeChunk) error {
	if c.OpID == "" {
		return fmt.Errorf("%w: chunk without opId", ErrMalformed)
	}
	switch c.ChunkKind() {
	case canvas.KindStroke:
		if len(c.Points) == 0 {
			return fmt.Errorf("%w: stroke chunk without points", ErrMalformed)
		}
	case canvas.KindShape:
		if c.Shape != canvas.ShapeRectangle && c.Shape != canvas.ShapeCircle {
			return fmt.Errorf("%w: unknown shape %q", ErrMalformed, c.Shape)
		}
		if c.Start == nil || c.End == nil {
			return fmt.Errorf("%w: shape chunk without anchors", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, c.Kind)
	}
	return nil
}
