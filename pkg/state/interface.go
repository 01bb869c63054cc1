package state

import (
	"errors"
	"time"

	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/transport"
	"github.com/google/uuid"
)

var ErrRoomNotFound = errors.New("room not found")

// DeliverFunc receives an applied operation and the live transports of the
// room at that moment. It runs under the room lock, so it may only enqueue.
type DeliverFunc func(op canvas.Operation, targets []transport.Sender)

// Manager is the authoritative registry of connections, rooms and their
// operation histories. Implementations must be safe for concurrent use and
// must serialize mutations per room.
type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(conn transport.Sender, ipAddr string) (*Connection, error)
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)
	GetAllConnections() []*Connection
	GetIPConnectionCount(ip string) int
	FindOldestIPConnection(ip string) (*Connection, bool)

	// --- Room & Membership Management ---
	// EnsureRoom is an idempotent get-or-create.
	EnsureRoom(roomID string) *Room
	FindRoom(roomID string) (*Room, bool)
	RoomIDs() []string
	AddUser(roomID string, user User)
	// JoinRoom adds user and passes the post-join snapshot to onJoined
	// under the room lock, so that the joiner's initial state is ordered
	// before any later mutation of the room.
	JoinRoom(roomID string, user User, onJoined func(Snapshot))
	// RemoveUser is a no-op if the user is not a member.
	RemoveUser(roomID, userID string) (User, bool)
	RoomOf(userID string) (string, bool)
	// RoomConnections resolves the members of a room to their transports.
	RoomConnections(roomID string) []transport.Sender
	// EvictIdle drops rooms without users that saw no activity for ttl.
	EvictIdle(ttl time.Duration, now time.Time) []string

	// --- Operation History ---
	CommitOperation(roomID string, op canvas.Operation)
	UndoLast(roomID string) (canvas.Operation, bool)
	RedoLast(roomID string) (canvas.Operation, bool)
	// The With variants call deliver under the room lock after the
	// mutation, so notifications leave in the order mutations were applied.
	// deliver is not called when undo or redo has nothing to do.
	CommitOperationWith(roomID string, op canvas.Operation, deliver DeliverFunc)
	UndoLastWith(roomID string, deliver DeliverFunc) (canvas.Operation, bool)
	RedoLastWith(roomID string, deliver DeliverFunc) (canvas.Operation, bool)
	Snapshot(roomID string) Snapshot

	// --- Modifier store Management ---
	GetModifierState(modifierName, key, eventName string) (state *ModifierState, found bool)

	// SetModifierState sets or updates the state data, stopping the cleanup
	// timer of any state it replaces.
	SetModifierState(modifierName, key, eventName string, state *ModifierState)

	// DeleteModifierState removes a state entry. This is typically called by
	// the modifier's own cleanup timer.
	DeleteModifierState(modifierName, key, eventName string)
}
