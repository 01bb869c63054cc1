package pipeline

import (
	"context"
	"log/slog"

	"github.com/a-essam23/go-canvas/pkg/protocol"
	"github.com/a-essam23/go-canvas/pkg/state"
	"github.com/a-essam23/go-canvas/pkg/transport"
	"github.com/google/uuid"
)

/*
 * The purpose of this is to detach the implementation of actions and modifiers
 * from the actual router
 */

// Publisher is the multicast boundary. Publish never fails the caller: a
// peer that cannot take the message is skipped.
type Publisher interface {
	// Publish sends msg to every connection in the room except exclude
	// (uuid.Nil excludes nobody) and returns how many accepted it.
	Publish(roomID string, exclude uuid.UUID, msg []byte) int
	// Fanout is Publish over targets already resolved by the caller.
	Fanout(roomID string, targets []transport.Sender, exclude uuid.UUID, msg []byte) int
	Unicast(connID uuid.UUID, msg []byte) bool
}

type Cargo struct {
	Logger       *slog.Logger
	Ctx          context.Context
	Connection   *state.Connection
	StateManager state.Manager
	Publisher    Publisher
	Message      *protocol.Message
	// room the origin belongs to when the pipeline starts; empty before join
	RoomID string
}

// UserID is the origin's identity as seen by other participants.
func (c *Cargo) UserID() string {
	if c.Connection == nil {
		return ""
	}
	return c.Connection.ID.String()
}

// simple, testable functions that receive a Cargo and resolved string parameters
type ActionFunc func(pctx *Cargo, params ...string) error

// modifiers run before the action and halt the pipeline by returning an error
type ModifierFunc func(pctx *Cargo, params ...string) error

// represents one step in an execution pipeline
type Step struct {
	Name     string
	Function ActionFunc
	Params   []string
	// set for modifier steps; their rejection is reported to the origin
	Modifier bool
}
