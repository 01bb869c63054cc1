package statemanager_test

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/state"
	"github.com/a-essam23/go-canvas/pkg/state/statemanager"
	"github.com/a-essam23/go-canvas/pkg/transport"
	"github.com/google/uuid"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger())
}

type fakeSender struct {
	id uuid.UUID
}

func (f *fakeSender) ID() uuid.UUID    { return f.id }
func (f *fakeSender) Send([]byte) bool { return true }
func (f *fakeSender) Close(error)      {}
func newFakeSender() *fakeSender       { return &fakeSender{id: uuid.New()} }

func op(id, author string) canvas.Operation {
	return canvas.Operation{
		ID:       id,
		AuthorID: author,
		Kind:     canvas.KindStroke,
		Stroke: &canvas.StrokePayload{
			Points: []canvas.Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
			Color:  "#000",
			Width:  2,
		},
	}
}

func historyIDs(s state.Snapshot) []string {
	ids := make([]string, len(s.History))
	for i, o := range s.History {
		ids[i] = o.ID
	}
	return ids
}

// --- Connection Tests ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager()
	conn := newFakeSender()

	// 1. Register
	stateConn, err := m.RegisterConnection(conn, "127.0.0.1")
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if stateConn.ID != conn.ID() {
		t.Errorf("Registered connection ID mismatch")
	}
	if _, err := m.RegisterConnection(conn, "127.0.0.1"); err == nil {
		t.Error("Registering the same connection twice should fail")
	}

	// 2. Get
	retrievedConn, found := m.GetConnection(conn.ID())
	if !found {
		t.Fatal("GetConnection failed to find registered connection")
	}
	if retrievedConn.ID != conn.ID() {
		t.Errorf("Retrieved connection ID mismatch")
	}

	// 3. Deregister
	if err := m.DeregisterConnection(conn.ID()); err != nil {
		t.Fatalf("DeregisterConnection failed: %v", err)
	}
	if _, found = m.GetConnection(conn.ID()); found {
		t.Error("Found connection after it should have been deregistered")
	}
}

func TestIPConnectionCountAndOldest(t *testing.T) {
	m := newTestManager()
	conn1 := newFakeSender()
	m.RegisterConnection(conn1, "10.0.0.1")
	time.Sleep(5 * time.Millisecond) // Ensure timestamps are different
	conn2 := newFakeSender()
	m.RegisterConnection(conn2, "10.0.0.1")
	m.RegisterConnection(newFakeSender(), "10.0.0.2")

	if count := m.GetIPConnectionCount("10.0.0.1"); count != 2 {
		t.Errorf("Expected 2 connections for ip, got %d", count)
	}
	oldest, found := m.FindOldestIPConnection("10.0.0.1")
	if !found {
		t.Fatal("Expected to find oldest connection, but did not")
	}
	if oldest.ID != conn1.ID() {
		t.Errorf("Expected oldest connection ID to be %s, got %s", conn1.ID(), oldest.ID)
	}
	if _, found := m.FindOldestIPConnection("10.9.9.9"); found {
		t.Error("Did not expect a connection for an unknown ip")
	}
}

// --- Room Management Tests ---

func TestEnsureRoomIsIdempotent(t *testing.T) {
	m := newTestManager()
	a := m.EnsureRoom("art")
	b := m.EnsureRoom("art")
	if a != b {
		t.Error("EnsureRoom returned different rooms for the same id")
	}
	if ids := m.RoomIDs(); !reflect.DeepEqual(ids, []string{"art"}) {
		t.Errorf("Expected exactly one room, got %v", ids)
	}
}

func TestRoomMembership(t *testing.T) {
	m := newTestManager()
	conn1, conn2 := newFakeSender(), newFakeSender()
	m.RegisterConnection(conn1, "1.1.1.1")
	m.RegisterConnection(conn2, "2.2.2.2")

	m.AddUser("art", state.User{ID: conn1.ID().String(), Name: "A", Color: "#e6194b"})
	m.AddUser("art", state.User{ID: conn2.ID().String(), Name: "B", Color: "#3cb44b"})

	snap := m.Snapshot("art")
	if len(snap.Users) != 2 {
		t.Fatalf("Expected 2 members in room, got %d", len(snap.Users))
	}
	if got := len(m.RoomConnections("art")); got != 2 {
		t.Errorf("Expected 2 room connections, got %d", got)
	}

	roomID, ok := m.RoomOf(conn1.ID().String())
	if !ok || roomID != "art" {
		t.Errorf("RoomOf returned %q %v", roomID, ok)
	}

	if _, removed := m.RemoveUser("art", conn1.ID().String()); !removed {
		t.Error("Expected user to be removed")
	}
	if _, ok := m.RoomOf(conn1.ID().String()); ok {
		t.Error("RoomOf still resolves a removed user")
	}
	if len(m.Snapshot("art").Users) != 1 {
		t.Errorf("Expected 1 member after leave")
	}

	// removing a non-member is a no-op
	if _, removed := m.RemoveUser("art", "stranger"); removed {
		t.Error("Removing a non-member must be a no-op")
	}
	if _, removed := m.RemoveUser("nowhere", "stranger"); removed {
		t.Error("Removing from an unknown room must be a no-op")
	}
}

// --- History Tests ---

func TestCommitUndoRedo(t *testing.T) {
	m := newTestManager()
	m.CommitOperation("art", op("1", "a"))
	m.CommitOperation("art", op("2", "a"))

	undone, ok := m.UndoLast("art")
	if !ok || undone.ID != "2" {
		t.Fatalf("Expected to undo op 2, got %v %v", undone.ID, ok)
	}
	if ids := historyIDs(m.Snapshot("art")); !reflect.DeepEqual(ids, []string{"1"}) {
		t.Errorf("Unexpected history after undo: %v", ids)
	}

	redone, ok := m.RedoLast("art")
	if !ok || redone.ID != "2" {
		t.Fatalf("Expected to redo op 2, got %v %v", redone.ID, ok)
	}
	if ids := historyIDs(m.Snapshot("art")); !reflect.DeepEqual(ids, []string{"1", "2"}) {
		t.Errorf("Unexpected history after redo: %v", ids)
	}
}

func TestUndoRedoOnEmptyStacks(t *testing.T) {
	m := newTestManager()
	if _, ok := m.UndoLast("empty"); ok {
		t.Error("UndoLast on empty history must report nothing to do")
	}
	if _, ok := m.RedoLast("empty"); ok {
		t.Error("RedoLast on empty undo stack must report nothing to do")
	}
}

// Replays a mixed sequence against a plain two-stack model. History grows
// only by commit or redo, shrinks only by undo, and every live id sits in
// exactly one stack. Ops discarded by redo invalidation are the only ones
// that leave both.
func TestStacksPartitionCommittedOperations(t *testing.T) {
	m := newTestManager()
	room := m.EnsureRoom("p1")
	var history, undone []string
	discarded := 0

	for i, step := range "ccucuurcrruuccuu" {
		switch step {
		case 'c':
			id := fmt.Sprintf("op-%d", i)
			m.CommitOperation("p1", op(id, "a"))
			history = append(history, id)
			discarded += len(undone)
			undone = nil
		case 'u':
			got, ok := m.UndoLast("p1")
			if ok != (len(history) > 0) {
				t.Fatalf("step %d: undo ok=%v with %d ops in history", i, ok, len(history))
			}
			if ok {
				want := history[len(history)-1]
				if got.ID != want {
					t.Fatalf("step %d: undo returned %s, want %s", i, got.ID, want)
				}
				history = history[:len(history)-1]
				undone = append(undone, want)
			}
		case 'r':
			got, ok := m.RedoLast("p1")
			if ok != (len(undone) > 0) {
				t.Fatalf("step %d: redo ok=%v with %d ops undone", i, ok, len(undone))
			}
			if ok {
				want := undone[len(undone)-1]
				if got.ID != want {
					t.Fatalf("step %d: redo returned %s, want %s", i, got.ID, want)
				}
				undone = undone[:len(undone)-1]
				history = append(history, want)
			}
		}

		h, u := room.Depth()
		if h != len(history) || u != len(undone) {
			t.Fatalf("step %d: depth (%d,%d), model (%d,%d)", i, h, u, len(history), len(undone))
		}
		if !reflect.DeepEqual(historyIDs(m.Snapshot("p1")), append([]string{}, history...)) {
			t.Fatalf("step %d: history diverged from model", i)
		}
	}
	if discarded == 0 {
		t.Fatal("sequence should exercise redo invalidation")
	}
}

func TestUndoThenRedoRestoresHistory(t *testing.T) {
	m := newTestManager()
	for i := 0; i < 5; i++ {
		m.CommitOperation("p2", op(strconv.Itoa(i), "a"))
	}
	before := m.Snapshot("p2").History
	m.UndoLast("p2")
	m.RedoLast("p2")
	after := m.Snapshot("p2").History
	if !reflect.DeepEqual(before, after) {
		t.Errorf("redo after undo did not restore history element for element")
	}
}

func TestCommitAfterUndoClearsRedo(t *testing.T) {
	m := newTestManager()
	m.CommitOperation("p3", op("1", "a"))
	m.UndoLast("p3")
	m.CommitOperation("p3", op("2", "a"))
	if _, ok := m.RedoLast("p3"); ok {
		t.Error("RedoLast must report nothing after a new commit")
	}
	if ids := historyIDs(m.Snapshot("p3")); !reflect.DeepEqual(ids, []string{"2"}) {
		t.Errorf("unexpected history %v", ids)
	}
}

func TestUndoIsGlobalPerRoom(t *testing.T) {
	m := newTestManager()
	m.CommitOperation("p4", op("from-a", "A"))
	m.CommitOperation("p4", op("from-b", "B"))

	// A asks for undo; the room's last op belongs to B and is the one removed.
	undone, ok := m.UndoLast("p4")
	if !ok || undone.ID != "from-b" || undone.AuthorID != "B" {
		t.Errorf("expected B's op to be undone, got %+v", undone)
	}
}

func TestSnapshotExcludesRedoState(t *testing.T) {
	m := newTestManager()
	for i := 0; i < 4; i++ {
		m.CommitOperation("p6", op(strconv.Itoa(i), "a"))
	}
	m.UndoLast("p6")

	snap := m.Snapshot("p6")
	if ids := historyIDs(snap); !reflect.DeepEqual(ids, []string{"0", "1", "2"}) {
		t.Errorf("late joiner should see the post-undo history, got %v", ids)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := newTestManager()
	m.CommitOperation("copy", op("1", "a"))
	snap := m.Snapshot("copy")
	snap.History[0].Stroke.Points[0].X = 500
	if m.Snapshot("copy").History[0].Stroke.Points[0].X != 1 {
		t.Error("mutating a snapshot changed the room history")
	}
}

func TestCommitDoesNotAliasCallerOperation(t *testing.T) {
	m := newTestManager()
	o := op("1", "a")
	m.CommitOperation("alias", o)
	o.Stroke.Points[0].X = 500
	if m.Snapshot("alias").History[0].Stroke.Points[0].X != 1 {
		t.Error("committed operation aliases the caller's slice")
	}
}

func TestConcurrentCommitsInOneRoom(t *testing.T) {
	m := newTestManager()
	var wg sync.WaitGroup
	writers, perWriter := 8, 50
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				m.CommitOperation("busy", op(fmt.Sprintf("%d-%d", w, i), strconv.Itoa(w)))
				if i%10 == 0 {
					m.UndoLast("busy")
					m.RedoLast("busy")
				}
			}
		}(w)
	}
	wg.Wait()

	h, u := m.EnsureRoom("busy").Depth()
	if h+u > writers*perWriter {
		t.Errorf("stacks hold %d ops, more than the %d committed", h+u, writers*perWriter)
	}
	seen := make(map[string]bool)
	for _, o := range m.Snapshot("busy").History {
		if seen[o.ID] {
			t.Fatalf("duplicate op %s in history", o.ID)
		}
		seen[o.ID] = true
	}
}

func TestRoomsAreIndependent(t *testing.T) {
	m := newTestManager()
	m.CommitOperation("one", op("1", "a"))
	m.CommitOperation("two", op("2", "a"))
	m.UndoLast("one")
	if len(m.Snapshot("two").History) != 1 {
		t.Error("undo in one room affected another")
	}
}

func TestEvictIdle(t *testing.T) {
	m := newTestManager()
	m.CommitOperation("idle", op("1", "a"))
	m.AddUser("busy", state.User{ID: "u1"})

	if evicted := m.EvictIdle(time.Hour, time.Now()); len(evicted) != 0 {
		t.Errorf("nothing should be evicted before the ttl, got %v", evicted)
	}

	evicted := m.EvictIdle(time.Minute, time.Now().Add(2*time.Minute))
	if !reflect.DeepEqual(evicted, []string{"idle"}) {
		t.Errorf("expected only the empty room to be evicted, got %v", evicted)
	}
	if _, ok := m.FindRoom("idle"); ok {
		t.Error("evicted room still registered")
	}
	if _, ok := m.FindRoom("busy"); !ok {
		t.Error("room with users must never be evicted")
	}

	// an evicted room id starts over when referenced again
	if len(m.Snapshot("idle").History) != 0 {
		t.Error("recreated room should start empty")
	}
}

// --- Modifier State Tests ---

func TestModifierState_SetAndGet(t *testing.T) {
	m := newTestManager()
	stateToSet := &state.ModifierState{Value: "hello world"}
	m.SetModifierState("test_mod", "user1", "event1", stateToSet)

	retrievedState, found := m.GetModifierState("test_mod", "user1", "event1")
	if !found {
		t.Fatalf("GetModifierState: expected to find state, but did not")
	}
	if retrievedState.Value != "hello world" {
		t.Errorf("GetModifierState: expected value 'hello world', got '%v'", retrievedState.Value)
	}
	if _, found := m.GetModifierState("test_mod", "user2", "event1"); found {
		t.Error("GetModifierState: state leaked across keys")
	}
}

func TestModifierState_DeleteStopsTimer(t *testing.T) {
	m := newTestManager()
	fired := make(chan struct{}, 1)
	timer := time.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })

	m.SetModifierState("test_timer_mod", "user1", "event1", &state.ModifierState{Value: "v", Timer: timer})
	m.DeleteModifierState("test_timer_mod", "user1", "event1")

	select {
	case <-fired:
		t.Error("DeleteModifierState did not stop the timer")
	case <-time.After(40 * time.Millisecond):
	}
	if _, found := m.GetModifierState("test_timer_mod", "user1", "event1"); found {
		t.Error("state still present after delete")
	}
}

func TestModifierState_SetStopsPreviousTimer(t *testing.T) {
	m := newTestManager()
	fired := make(chan struct{}, 1)
	timer1 := time.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })

	m.SetModifierState("test_timer_mod", "user1", "event1", &state.ModifierState{Value: "value1", Timer: timer1})
	m.SetModifierState("test_timer_mod", "user1", "event1", &state.ModifierState{Value: "value2"})

	select {
	case <-fired:
		t.Error("SetModifierState did not stop the previous state's timer upon overwrite")
	case <-time.After(40 * time.Millisecond):
	}
}

func TestModifierState_Concurrency(t *testing.T) {
	m := newTestManager()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			key := "user" + strconv.Itoa(i%10)
			m.SetModifierState("concurrent_mod", key, "event"+strconv.Itoa(i%5), &state.ModifierState{Value: i})
		}(i)
		go func(i int) {
			defer wg.Done()
			m.GetModifierState("concurrent_mod", "user"+strconv.Itoa(i%10), "event"+strconv.Itoa(i%5))
		}(i)
	}
	wg.Wait()
}

func TestJoinRoomSnapshotIncludesJoiner(t *testing.T) {
	m := newTestManager()
	m.CommitOperation("r", op("a", "x"))

	var got state.Snapshot
	calls := 0
	m.JoinRoom("r", state.User{ID: "u1", Name: "Ann"}, func(s state.Snapshot) {
		calls++
		got = s
	})
	if calls != 1 {
		t.Fatalf("onJoined called %d times, want 1", calls)
	}
	if _, ok := got.Users["u1"]; !ok {
		t.Errorf("snapshot should contain the joiner, got %v", got.Users)
	}
	if ids := historyIDs(got); !reflect.DeepEqual(ids, []string{"a"}) {
		t.Errorf("snapshot history = %v, want [a]", ids)
	}
	if roomID, ok := m.RoomOf("u1"); !ok || roomID != "r" {
		t.Errorf("RoomOf(u1) = %q, %v", roomID, ok)
	}
}

func TestDeliverSkipsNoOps(t *testing.T) {
	m := newTestManager()
	calls := 0
	count := func(canvas.Operation, []transport.Sender) { calls++ }
	m.UndoLastWith("r", count)
	m.RedoLastWith("r", count)
	if calls != 0 {
		t.Fatalf("deliver called %d times on empty stacks", calls)
	}

	var got []string
	record := func(o canvas.Operation, _ []transport.Sender) { got = append(got, o.ID) }
	m.CommitOperationWith("r", op("a", "x"), record)
	m.UndoLastWith("r", record)
	m.RedoLastWith("r", record)
	if !reflect.DeepEqual(got, []string{"a", "a", "a"}) {
		t.Errorf("deliver saw %v, want [a a a]", got)
	}
}

// Notifications collected from concurrent writers, replayed in the order
// they were observed, must rebuild the room's final history.
func TestDeliverOrderMatchesHistory(t *testing.T) {
	m := newTestManager()
	var (
		mu  sync.Mutex
		log []string
		wg  sync.WaitGroup
	)
	note := func(kind string) state.DeliverFunc {
		return func(o canvas.Operation, _ []transport.Sender) {
			mu.Lock()
			log = append(log, kind+o.ID)
			mu.Unlock()
		}
	}
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				m.CommitOperationWith("busy", op(fmt.Sprintf("%d-%d", w, i), "x"), note("+"))
				if i%3 == 0 {
					m.UndoLastWith("busy", note("-"))
				}
				if i%7 == 0 {
					m.RedoLastWith("busy", note("+"))
				}
			}
		}(w)
	}
	wg.Wait()

	var replay []string
	for _, entry := range log {
		id := entry[1:]
		if entry[0] == '+' {
			replay = append(replay, id)
			continue
		}
		if len(replay) == 0 || replay[len(replay)-1] != id {
			t.Fatalf("undo of %s observed out of order, replay tail %v", id, replay)
		}
		replay = replay[:len(replay)-1]
	}
	if got := historyIDs(m.Snapshot("busy")); fmt.Sprint(replay) != fmt.Sprint(got) {
		t.Errorf("replayed notifications %v do not match history %v", replay, got)
	}
}

func TestDeliverGetsRoomTransports(t *testing.T) {
	m := newTestManager()
	a, b := newFakeSender(), newFakeSender()
	for _, s := range []*fakeSender{a, b} {
		if _, err := m.RegisterConnection(s, "10.0.0.1"); err != nil {
			t.Fatalf("RegisterConnection failed: %v", err)
		}
		m.AddUser("r", state.User{ID: s.id.String()})
	}
	var targets []transport.Sender
	m.CommitOperationWith("r", op("a", "x"), func(_ canvas.Operation, ts []transport.Sender) {
		targets = ts
	})
	if len(targets) != 2 {
		t.Fatalf("deliver got %d targets, want 2", len(targets))
	}
}
