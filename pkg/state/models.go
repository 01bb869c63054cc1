package state

import (
	"time"

	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/transport"
	"github.com/google/uuid"
)

// representation of a single transport-layer connection.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	Transport transport.Sender // The actual connection for sending messages
	CreatedAt time.Time
}

// a participant of a room. ID is the identity of the connection that joined.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// read-only view handed to a joiner. Undone operations are not part of it.
type Snapshot struct {
	Users   map[string]User
	History []canvas.Operation
}

// per-key state kept by pipeline modifiers between events.
type ModifierState struct {
	Value any
	Timer *time.Timer
}
