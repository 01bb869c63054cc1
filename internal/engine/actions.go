package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/pipeline"
	"github.com/a-essam23/go-canvas/pkg/protocol"
	"github.com/a-essam23/go-canvas/pkg/state"
	"github.com/a-essam23/go-canvas/pkg/transport"
	"github.com/google/uuid"
)

var errNotInRoom = errors.New("connection has not joined a room")

func newJoinAction(pickColor func() string) pipeline.ActionFunc {
	return func(pctx *pipeline.Cargo, params ...string) error {
		req := pctx.Message.Join
		if req == nil {
			return errors.New("join without a join request")
		}
		userID := pctx.UserID()
		if pctx.RoomID != "" {
			leaveRoom(pctx, pctx.RoomID, userID)
		}

		user := state.User{ID: userID, Name: req.Name, Color: pickColor()}
		var joinErr error
		var members map[string]state.User
		pctx.StateManager.JoinRoom(req.Room, user, func(snap state.Snapshot) {
			members = snap.Users
			msg, err := protocol.Encode(protocol.EventRoomState, protocol.RoomState{
				Self:    userID,
				Users:   wireUsers(snap.Users),
				History: snap.History,
			})
			if err != nil {
				joinErr = err
				return
			}
			pctx.Publisher.Unicast(pctx.Connection.ID, msg)
		})
		pctx.RoomID = req.Room
		if _, live := pctx.StateManager.GetConnection(pctx.Connection.ID); !live {
			// closed while joining
			pctx.StateManager.RemoveUser(req.Room, userID)
			return nil
		}
		if joinErr != nil {
			return fmt.Errorf("failed to encode room state for '%s': %w", req.Room, joinErr)
		}
		pctx.Logger.Info("User joined room", slog.String("userID", userID), slog.String("roomID", req.Room))

		return publish(pctx, req.Room, pctx.Connection.ID, protocol.EventUserJoin, protocol.UserJoin{Users: wireUsers(members)})
	}
}

func actionLeave(pctx *pipeline.Cargo, params ...string) error {
	if pctx.RoomID == "" {
		return errNotInRoom
	}
	leaveRoom(pctx, pctx.RoomID, pctx.UserID())
	pctx.RoomID = ""
	return nil
}

// leaveRoom removes the user and tells the rest of the room. Removing a
// non-member announces nothing.
func leaveRoom(pctx *pipeline.Cargo, roomID, userID string) {
	if _, removed := pctx.StateManager.RemoveUser(roomID, userID); !removed {
		return
	}
	pctx.Logger.Info("User left room", slog.String("userID", userID), slog.String("roomID", roomID))
	if err := publish(pctx, roomID, uuid.Nil, protocol.EventUserLeft, protocol.UserLeft{UserID: userID}); err != nil {
		pctx.Logger.Error("Failed to announce departure", slog.Any("error", err))
	}
}

func actionStrokeChunk(pctx *pipeline.Cargo, params ...string) error {
	if pctx.RoomID == "" {
		return errNotInRoom
	}
	chunk := *pctx.Message.Chunk
	chunk.UserID = pctx.UserID()
	return publish(pctx, pctx.RoomID, pctx.Connection.ID, protocol.EventStrokeChunk, chunk)
}

func actionStrokeEnd(pctx *pipeline.Cargo, params ...string) error {
	if pctx.RoomID == "" {
		return errNotInRoom
	}
	op := pctx.Message.Operation.Clone()
	op.AuthorID = pctx.UserID()
	var err error
	pctx.StateManager.CommitOperationWith(pctx.RoomID, op, func(applied canvas.Operation, targets []transport.Sender) {
		err = fanout(pctx, targets, pctx.Connection.ID, protocol.EventStrokeEnd, applied)
	})
	return err
}

func actionUndo(pctx *pipeline.Cargo, params ...string) error {
	if pctx.RoomID == "" {
		return errNotInRoom
	}
	var err error
	_, ok := pctx.StateManager.UndoLastWith(pctx.RoomID, func(op canvas.Operation, targets []transport.Sender) {
		err = fanout(pctx, targets, uuid.Nil, protocol.EventUndo, op)
	})
	if !ok {
		pctx.Logger.Debug("Nothing to undo", slog.String("roomID", pctx.RoomID))
	}
	return err
}

func actionRedo(pctx *pipeline.Cargo, params ...string) error {
	if pctx.RoomID == "" {
		return errNotInRoom
	}
	var err error
	_, ok := pctx.StateManager.RedoLastWith(pctx.RoomID, func(op canvas.Operation, targets []transport.Sender) {
		err = fanout(pctx, targets, uuid.Nil, protocol.EventRedo, op)
	})
	if !ok {
		pctx.Logger.Debug("Nothing to redo", slog.String("roomID", pctx.RoomID))
	}
	return err
}

func actionCursor(pctx *pipeline.Cargo, params ...string) error {
	if pctx.RoomID == "" {
		return errNotInRoom
	}
	room, ok := pctx.StateManager.FindRoom(pctx.RoomID)
	if !ok {
		return state.ErrRoomNotFound
	}
	user, ok := room.User(pctx.UserID())
	if !ok {
		return errNotInRoom
	}
	return publish(pctx, pctx.RoomID, pctx.Connection.ID, protocol.EventCursor, protocol.Cursor{
		UserID: user.ID,
		X:      pctx.Message.Cursor.X,
		Y:      pctx.Message.Cursor.Y,
		Color:  user.Color,
		Name:   user.Name,
	})
}

// Disconnect removes a closed connection from its room, if any, and tells
// the remaining members. Operations the connection had not committed are
// simply never committed.
func Disconnect(pctx *pipeline.Cargo) {
	userID := pctx.UserID()
	roomID, ok := pctx.StateManager.RoomOf(userID)
	if !ok {
		return
	}
	leaveRoom(pctx, roomID, userID)
}

func publish(pctx *pipeline.Cargo, roomID string, exclude uuid.UUID, event protocol.Event, payload any) error {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	pctx.Publisher.Publish(roomID, exclude, msg)
	return nil
}

// fanout is publish for callers that already hold the room's targets.
func fanout(pctx *pipeline.Cargo, targets []transport.Sender, exclude uuid.UUID, event protocol.Event, payload any) error {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	pctx.Publisher.Fanout(pctx.RoomID, targets, exclude, msg)
	return nil
}

func wireUsers(users map[string]state.User) map[string]protocol.User {
	out := make(map[string]protocol.User, len(users))
	for id, u := range users {
		out[id] = protocol.User{ID: u.ID, Name: u.Name, Color: u.Color}
	}
	return out
}
