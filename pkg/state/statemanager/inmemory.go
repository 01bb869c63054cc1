package statemanager

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/state"
	"github.com/a-essam23/go-canvas/pkg/transport"
	"github.com/google/uuid"
)

// InMemoryManager keeps all state for the lifetime of the process.
//
// Lock order: indexMu, then roomMu, then a room's own mutex. connMu and
// modMu are leaves and never held together with the others.
type InMemoryManager struct {
	conns     map[uuid.UUID]*state.Connection
	rooms     map[string]*state.Room
	connRoom  map[string]string
	modifiers map[string]*state.ModifierState

	connMu  sync.RWMutex
	roomMu  sync.RWMutex
	indexMu sync.RWMutex
	modMu   sync.Mutex

	now    func() time.Time
	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:     make(map[uuid.UUID]*state.Connection),
		rooms:     make(map[string]*state.Room),
		connRoom:  make(map[string]string),
		modifiers: make(map[string]*state.ModifierState),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

// --- Connection Lifecycle ---

func (m *InMemoryManager) RegisterConnection(conn transport.Sender, ipAddr string) (*state.Connection, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	connID := conn.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	newConn := &state.Connection{
		ID:        connID,
		IPAddress: ipAddr,
		Transport: conn,
		CreatedAt: m.now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return newConn, nil
}

// DeregisterConnection forgets the transport. Room membership is cleaned up
// separately by the caller so that it can notify the room.
func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if _, ok := m.conns[connID]; !ok {
		// connection is already deregistered
		return nil
	}
	delete(m.conns, connID)
	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) GetAllConnections() []*state.Connection {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

func (m *InMemoryManager) GetIPConnectionCount(ip string) int {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	count := 0
	for _, c := range m.conns {
		if c.IPAddress == ip {
			count++
		}
	}
	return count
}

func (m *InMemoryManager) FindOldestIPConnection(ip string) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	var oldest *state.Connection
	for _, conn := range m.conns {
		if conn.IPAddress != ip {
			continue
		}
		if oldest == nil || conn.CreatedAt.Before(oldest.CreatedAt) {
			oldest = conn
		}
	}
	return oldest, oldest != nil
}

// --- Room & Membership Management ---

func (m *InMemoryManager) EnsureRoom(roomID string) *state.Room {
	m.roomMu.RLock()
	room, ok := m.rooms[roomID]
	m.roomMu.RUnlock()
	if ok {
		return room
	}

	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	if room, ok := m.rooms[roomID]; ok {
		return room
	}
	room = state.NewRoom(roomID, m.now())
	m.rooms[roomID] = room
	m.logger.Debug("Room created", slog.String("roomID", roomID))
	return room
}

func (m *InMemoryManager) FindRoom(roomID string) (*state.Room, bool) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}

func (m *InMemoryManager) RoomIDs() []string {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *InMemoryManager) AddUser(roomID string, user state.User) {
	m.JoinRoom(roomID, user, nil)
}

func (m *InMemoryManager) JoinRoom(roomID string, user state.User, onJoined func(state.Snapshot)) {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	for !m.EnsureRoom(roomID).Join(user, m.now(), onJoined) {
		// lost a race with eviction; the next EnsureRoom creates a fresh room
	}
	m.connRoom[user.ID] = roomID
	m.logger.Debug("User joined room", slog.String("userID", user.ID), slog.String("roomID", roomID))
}

func (m *InMemoryManager) RemoveUser(roomID, userID string) (state.User, bool) {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	room, ok := m.FindRoom(roomID)
	if !ok {
		return state.User{}, false
	}
	user, removed := room.RemoveUser(userID, m.now())
	if m.connRoom[userID] == roomID {
		delete(m.connRoom, userID)
	}
	if removed {
		m.logger.Debug("User left room", slog.String("userID", userID), slog.String("roomID", roomID))
	}
	return user, removed
}

func (m *InMemoryManager) RoomOf(userID string) (string, bool) {
	m.indexMu.RLock()
	defer m.indexMu.RUnlock()
	roomID, ok := m.connRoom[userID]
	return roomID, ok
}

func (m *InMemoryManager) RoomConnections(roomID string) []transport.Sender {
	room, ok := m.FindRoom(roomID)
	if !ok {
		return nil
	}
	return m.sendersFor(room.Users())
}

func (m *InMemoryManager) sendersFor(users map[string]state.User) []transport.Sender {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	senders := make([]transport.Sender, 0, len(users))
	for userID := range users {
		id, err := uuid.Parse(userID)
		if err != nil {
			continue
		}
		if conn, ok := m.conns[id]; ok {
			senders = append(senders, conn.Transport)
		}
	}
	return senders
}

func (m *InMemoryManager) EvictIdle(ttl time.Duration, now time.Time) []string {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	var evicted []string
	for id, room := range m.rooms {
		if room.TryEvict(ttl, now) {
			delete(m.rooms, id)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		sort.Strings(evicted)
		m.logger.Info("Evicted idle rooms", slog.Any("rooms", evicted))
	}
	return evicted
}

// --- Operation History ---

func (m *InMemoryManager) CommitOperation(roomID string, op canvas.Operation) {
	m.CommitOperationWith(roomID, op, nil)
}

func (m *InMemoryManager) CommitOperationWith(roomID string, op canvas.Operation, deliver state.DeliverFunc) {
	for !m.EnsureRoom(roomID).Commit(op, m.now(), m.resolve(deliver)) {
		// lost a race with eviction; the next EnsureRoom creates a fresh room
	}
	m.logger.Debug("Operation committed", slog.String("roomID", roomID), slog.String("opID", op.ID))
}

func (m *InMemoryManager) UndoLast(roomID string) (canvas.Operation, bool) {
	return m.UndoLastWith(roomID, nil)
}

func (m *InMemoryManager) UndoLastWith(roomID string, deliver state.DeliverFunc) (canvas.Operation, bool) {
	return m.EnsureRoom(roomID).UndoLast(m.now(), m.resolve(deliver))
}

func (m *InMemoryManager) RedoLast(roomID string) (canvas.Operation, bool) {
	return m.RedoLastWith(roomID, nil)
}

func (m *InMemoryManager) RedoLastWith(roomID string, deliver state.DeliverFunc) (canvas.Operation, bool) {
	return m.EnsureRoom(roomID).RedoLast(m.now(), m.resolve(deliver))
}

// resolve turns room members into transports. It runs under the room lock
// and only takes connMu, which is a leaf.
func (m *InMemoryManager) resolve(deliver state.DeliverFunc) state.OpFunc {
	if deliver == nil {
		return nil
	}
	return func(op canvas.Operation, members map[string]state.User) {
		deliver(op, m.sendersFor(members))
	}
}

func (m *InMemoryManager) Snapshot(roomID string) state.Snapshot {
	return m.EnsureRoom(roomID).Snapshot()
}

// --- Modifier store Management ---

func modifierKey(modifierName, key, eventName string) string {
	return modifierName + "|" + key + "|" + eventName
}

func (m *InMemoryManager) GetModifierState(modifierName, key, eventName string) (*state.ModifierState, bool) {
	m.modMu.Lock()
	defer m.modMu.Unlock()
	s, ok := m.modifiers[modifierKey(modifierName, key, eventName)]
	return s, ok
}

func (m *InMemoryManager) SetModifierState(modifierName, key, eventName string, s *state.ModifierState) {
	m.modMu.Lock()
	defer m.modMu.Unlock()
	k := modifierKey(modifierName, key, eventName)
	if prev, ok := m.modifiers[k]; ok && prev.Timer != nil && prev != s {
		prev.Timer.Stop()
	}
	m.modifiers[k] = s
}

func (m *InMemoryManager) DeleteModifierState(modifierName, key, eventName string) {
	m.modMu.Lock()
	defer m.modMu.Unlock()
	k := modifierKey(modifierName, key, eventName)
	if prev, ok := m.modifiers[k]; ok {
		if prev.Timer != nil {
			prev.Timer.Stop()
		}
		delete(m.modifiers, k)
	}
}
