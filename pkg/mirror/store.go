// Package mirror holds a client's local copy of a room: its operations,
// membership and cursors. The mirror may run ahead of the server while
// chunks stream in, and converges once the terminal commit arrives.
package mirror

import (
	"log/slog"
	"sync"

	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/chunk"
	"github.com/a-essam23/go-canvas/pkg/protocol"
)

// RedrawFunc is the render boundary. It is called after every mutation,
// outside the store lock.
type RedrawFunc func()

type Store struct {
	mu   sync.RWMutex
	self string
	ops  []canvas.Operation
	// ids of ops the server has committed; the rest are still streaming
	committed map[string]bool
	users     map[string]protocol.User
	cursors   map[string]protocol.Cursor

	onRedraw RedrawFunc
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Store {
	return &Store{
		committed: make(map[string]bool),
		users:     make(map[string]protocol.User),
		cursors:   make(map[string]protocol.Cursor),
		logger:    logger.With(slog.String("component", "mirror")),
	}
}

func (s *Store) SetOnRedraw(fn RedrawFunc) {
	s.mu.Lock()
	s.onRedraw = fn
	s.mu.Unlock()
}

func (s *Store) redraw() {
	s.mu.RLock()
	fn := s.onRedraw
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Seed replaces the whole mirror with a room snapshot. It is also what
// happens when switching rooms.
func (s *Store) Seed(state protocol.RoomState) {
	s.mu.Lock()
	s.self = state.Self
	s.ops = canvas.CloneAll(state.History)
	s.committed = committedSet(s.ops)
	s.users = make(map[string]protocol.User, len(state.Users))
	for id, u := range state.Users {
		s.users[id] = u
	}
	s.cursors = make(map[string]protocol.Cursor)
	s.mu.Unlock()

	s.logger.Debug("Mirror seeded", slog.Int("ops", len(state.History)), slog.Int("users", len(state.Users)))
	s.redraw()
}

// Replace swaps in a new operation list, keeping presence. Used on import.
func (s *Store) Replace(ops []canvas.Operation) {
	s.mu.Lock()
	s.ops = canvas.CloneAll(ops)
	s.committed = committedSet(s.ops)
	s.mu.Unlock()
	s.redraw()
}

func committedSet(ops []canvas.Operation) map[string]bool {
	set := make(map[string]bool, len(ops))
	for _, op := range ops {
		set[op.ID] = true
	}
	return set
}

// ApplyChunk creates or extends the in-progress copy of a remote op.
func (s *Store) ApplyChunk(c protocol.StrokeChunk) {
	s.mu.Lock()
	var created bool
	s.ops, created = chunk.Apply(s.ops, c)
	s.mu.Unlock()

	if created {
		s.logger.Debug("Started remote operation", slog.String("opID", c.OpID), slog.String("userID", c.UserID))
	}
	s.redraw()
}

// ApplyCommit installs the authoritative payload of a committed op. It
// overrides whatever the chunks accumulated, and creates the op when no
// chunk was ever seen for it.
func (s *Store) ApplyCommit(op canvas.Operation) {
	s.upsert(op)
	s.redraw()
}

// AddLocal records the sender's own commit; peers learn of it by broadcast
// but the sender does not receive its own stroke_end.
func (s *Store) AddLocal(op canvas.Operation) {
	s.upsert(op)
	s.redraw()
}

// ApplyUndo removes the op with the given id wherever it sits.
func (s *Store) ApplyUndo(op canvas.Operation) {
	if !s.remove(op.ID) {
		s.logger.Debug("Undo for unknown operation", slog.String("opID", op.ID))
	}
	s.redraw()
}

// Remove drops an op, committed or not. It reports whether the op was held.
func (s *Store) Remove(id string) bool {
	removed := s.remove(id)
	if removed {
		s.redraw()
	}
	return removed
}

func (s *Store) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.committed, id)
	for i := range s.ops {
		if s.ops[i].ID == id {
			s.ops = append(s.ops[:i], s.ops[i+1:]...)
			return true
		}
	}
	return false
}

// ApplyRedo re-appends the op.
func (s *Store) ApplyRedo(op canvas.Operation) {
	s.upsert(op)
	s.redraw()
}

func (s *Store) upsert(op canvas.Operation) {
	op = op.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed[op.ID] = true
	for i := range s.ops {
		if s.ops[i].ID == op.ID {
			s.ops[i] = op
			return
		}
	}
	s.ops = append(s.ops, op)
}

// SetUsers replaces membership with the full map carried by user_join.
func (s *Store) SetUsers(users map[string]protocol.User) {
	s.mu.Lock()
	s.users = make(map[string]protocol.User, len(users))
	for id, u := range users {
		s.users[id] = u
	}
	s.mu.Unlock()
	s.redraw()
}

// RemoveUser drops a departed user and their cursor.
func (s *Store) RemoveUser(userID string) {
	s.mu.Lock()
	delete(s.users, userID)
	delete(s.cursors, userID)
	s.mu.Unlock()
	s.redraw()
}

func (s *Store) SetCursor(c protocol.Cursor) {
	s.mu.Lock()
	s.cursors[c.UserID] = c
	s.mu.Unlock()
	s.redraw()
}

// Self is the identity the server assigned to this client on join.
func (s *Store) Self() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// Ops returns the mirror in receipt order.
func (s *Store) Ops() []canvas.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return canvas.CloneAll(s.ops)
}

// CommittedOps returns, in receipt order, only the ops the server has
// committed. Remote strokes still streaming in are left out.
func (s *Store) CommittedOps() []canvas.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]canvas.Operation, 0, len(s.committed))
	for i := range s.ops {
		if s.committed[s.ops[i].ID] {
			out = append(out, s.ops[i].Clone())
		}
	}
	return out
}

// DisplayOps returns the mirror ordered for rendering, by client timestamp.
// This is a best-effort visual order and can differ from the server's
// receipt order, which is what undo and redo act on.
func (s *Store) DisplayOps() []canvas.Operation {
	return canvas.SortForDisplay(s.Ops())
}

func (s *Store) Find(id string) (canvas.Operation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.ops {
		if s.ops[i].ID == id {
			return s.ops[i].Clone(), true
		}
	}
	return canvas.Operation{}, false
}

func (s *Store) Users() map[string]protocol.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make(map[string]protocol.User, len(s.users))
	for id, u := range s.users {
		users[id] = u
	}
	return users
}

func (s *Store) Cursors() map[string]protocol.Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cursors := make(map[string]protocol.Cursor, len(s.cursors))
	for id, c := range s.cursors {
		cursors[id] = c
	}
	return cursors
}

// Apply routes a decoded server message to the matching mutation. Unknown
// events and messages missing their body are ignored.
func (s *Store) Apply(msg *protocol.Message) {
	if msg == nil {
		return
	}
	switch msg.Event {
	case protocol.EventRoomState:
		if msg.RoomState != nil {
			s.Seed(*msg.RoomState)
			return
		}
	case protocol.EventStrokeChunk:
		if msg.Chunk != nil {
			s.ApplyChunk(*msg.Chunk)
			return
		}
	case protocol.EventStrokeEnd:
		if msg.Operation != nil {
			s.ApplyCommit(*msg.Operation)
			return
		}
	case protocol.EventUndo:
		if msg.Operation != nil {
			s.ApplyUndo(*msg.Operation)
			return
		}
	case protocol.EventRedo:
		if msg.Operation != nil {
			s.ApplyRedo(*msg.Operation)
			return
		}
	case protocol.EventCursor:
		if msg.Presence != nil {
			s.SetCursor(*msg.Presence)
			return
		}
	case protocol.EventUserJoin:
		if msg.UserJoin != nil {
			s.SetUsers(msg.UserJoin.Users)
			return
		}
	case protocol.EventUserLeft:
		if msg.UserLeft != nil {
			s.RemoveUser(msg.UserLeft.UserID)
			return
		}
	default:
		return
	}
	s.logger.Debug("Ignoring message without a body", slog.String("event", string(msg.Event)))
}
