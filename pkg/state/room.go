package state

import (
	"sync"
	"time"

	"github.com/a-essam23/go-canvas/pkg/canvas"
)

// Room is an isolated drawing session. All mutations of one room are
// serialized by its own mutex; different rooms never share a lock.
//
// history is in server receipt order and is what undo and redo act on.
// An operation id lives in exactly one of history or undone.
type Room struct {
	ID string

	mu         sync.Mutex
	users      map[string]User
	history    []canvas.Operation
	undone     []canvas.Operation
	lastActive time.Time
	evicted    bool
}

func NewRoom(id string, now time.Time) *Room {
	return &Room{
		ID:         id,
		users:      make(map[string]User),
		lastActive: now,
	}
}

// AddUser returns false if the room was evicted concurrently; the caller
// must resolve the room again.
func (r *Room) AddUser(user User, now time.Time) bool {
	return r.Join(user, now, nil)
}

// Join adds user and, while still holding the room lock, hands the
// resulting snapshot to onJoined. Anything committed afterwards is ordered
// after whatever onJoined enqueued. onJoined must not block.
func (r *Room) Join(user User, now time.Time, onJoined func(Snapshot)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evicted {
		return false
	}
	r.users[user.ID] = user
	r.lastActive = now
	if onJoined != nil {
		onJoined(Snapshot{Users: r.copyUsers(), History: canvas.CloneAll(r.history)})
	}
	return true
}

// RemoveUser is a no-op for non-members.
func (r *Room) RemoveUser(userID string, now time.Time) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return User{}, false
	}
	delete(r.users, userID)
	r.lastActive = now
	return user, true
}

func (r *Room) User(userID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	return user, ok
}

// Users returns a copy of the membership map.
func (r *Room) Users() map[string]User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyUsers()
}

func (r *Room) copyUsers() map[string]User {
	users := make(map[string]User, len(r.users))
	for id, u := range r.users {
		users[id] = u
	}
	return users
}

// OpFunc observes a history mutation while the room lock is still held, so
// that whatever it enqueues is ordered like the mutations themselves. It
// gets the membership at that moment and must not call back into the room
// or block.
type OpFunc func(op canvas.Operation, members map[string]User)

// Commit appends op and invalidates the redo stack. Like AddUser it fails
// only on an evicted room.
func (r *Room) Commit(op canvas.Operation, now time.Time, onApplied OpFunc) bool {
	op = op.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evicted {
		return false
	}
	r.history = append(r.history, op)
	r.undone = nil
	r.lastActive = now
	if onApplied != nil {
		onApplied(op.Clone(), r.copyUsers())
	}
	return true
}

// UndoLast moves the most recent operation, whoever authored it, to the
// undo stack.
func (r *Room) UndoLast(now time.Time, onApplied OpFunc) (canvas.Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return canvas.Operation{}, false
	}
	last := r.history[len(r.history)-1]
	r.history = r.history[:len(r.history)-1]
	r.undone = append(r.undone, last)
	r.lastActive = now
	if onApplied != nil {
		onApplied(last.Clone(), r.copyUsers())
	}
	return last.Clone(), true
}

func (r *Room) RedoLast(now time.Time, onApplied OpFunc) (canvas.Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.undone) == 0 {
		return canvas.Operation{}, false
	}
	op := r.undone[len(r.undone)-1]
	r.undone = r.undone[:len(r.undone)-1]
	r.history = append(r.history, op)
	r.lastActive = now
	if onApplied != nil {
		onApplied(op.Clone(), r.copyUsers())
	}
	return op.Clone(), true
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Users:   r.copyUsers(),
		History: canvas.CloneAll(r.history),
	}
}

// Depth reports the sizes of both stacks.
func (r *Room) Depth() (history, undone int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history), len(r.undone)
}

// TryEvict marks the room evicted if it has no users and has been idle for
// at least ttl. An evicted room rejects new members.
func (r *Room) TryEvict(ttl time.Duration, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.users) > 0 || now.Sub(r.lastActive) < ttl {
		return false
	}
	r.evicted = true
	return true
}
