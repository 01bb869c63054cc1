package engine

import (
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/a-essam23/go-canvas/pkg/pipeline"
	"github.com/a-essam23/go-canvas/pkg/protocol"
)

// Palette is the set of colors handed out to joining users.
var Palette = []string{"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4"}

/*
* The central registry for all executable components.
* It holds the core action of every client event and the named modifiers
* that configuration may place in front of them.
 */
type Registry struct {
	logger   *slog.Logger
	actions  map[protocol.Event]pipeline.ActionFunc
	actionMu sync.RWMutex

	modifiers  map[string]pipeline.ModifierFunc
	modifierMu sync.RWMutex

	pickColor func() string
}

type Option func(*Registry)

// WithColorPicker replaces the random palette pick used on join.
func WithColorPicker(pick func() string) Option {
	return func(r *Registry) { r.pickColor = pick }
}

// New creates and initializes a new Registry instance.
func New(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		actions:   make(map[protocol.Event]pipeline.ActionFunc),
		modifiers: make(map[string]pipeline.ModifierFunc),
		logger:    logger.With(slog.String("component", "engine")),
		pickColor: func() string { return Palette[rand.IntN(len(Palette))] },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (e *Registry) RegisterCore() {
	e.registerCoreActions()
	e.registerCoreModifiers()
}

func (e *Registry) registerCoreActions() {
	e.RegisterAction(protocol.EventJoin, newJoinAction(e.pickColor))
	e.RegisterAction(protocol.EventLeave, actionLeave)
	e.RegisterAction(protocol.EventStrokeChunk, actionStrokeChunk)
	e.RegisterAction(protocol.EventStrokeEnd, actionStrokeEnd)
	e.RegisterAction(protocol.EventUndo, actionUndo)
	e.RegisterAction(protocol.EventRedo, actionRedo)
	e.RegisterAction(protocol.EventCursor, actionCursor)
	e.logger.Info("Registered core actions", slog.Any("count", len(e.actions)))
}

func (e *Registry) registerCoreModifiers() {
	e.RegisterModifier("rate_limit", newRateLimitModifier(e.logger))
	e.RegisterModifier("require_room", modifierRequireRoom)
	e.logger.Info("Registered core modifiers", slog.Any("count", len(e.modifiers)))
}

// --- Action Methods ---
func (e *Registry) RegisterAction(event protocol.Event, fn pipeline.ActionFunc) {
	e.actionMu.Lock()
	defer e.actionMu.Unlock()
	if _, exists := e.actions[event]; exists {
		panic("action function already registered: " + string(event))
	}
	e.actions[event] = fn
}

func (e *Registry) GetActionFunc(event protocol.Event) (pipeline.ActionFunc, bool) {
	e.actionMu.RLock()
	defer e.actionMu.RUnlock()
	fn, ok := e.actions[event]
	return fn, ok
}

// --- Modifier Methods ---

func (e *Registry) RegisterModifier(name string, fn pipeline.ModifierFunc) {
	e.modifierMu.Lock()
	defer e.modifierMu.Unlock()
	if _, exists := e.modifiers[name]; exists {
		panic("modifier function already registered: " + name)
	}
	e.modifiers[name] = fn
}

func (e *Registry) GetModifierFunc(name string) (pipeline.ModifierFunc, bool) {
	e.modifierMu.RLock()
	defer e.modifierMu.RUnlock()
	fn, ok := e.modifiers[name]
	return fn, ok
}
