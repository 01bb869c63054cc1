package router

import (
	"context"
	"errors"
	"log/slog"

	"github.com/a-essam23/go-canvas/internal/engine"
	"github.com/a-essam23/go-canvas/pkg/pipeline"
	"github.com/a-essam23/go-canvas/pkg/protocol"
	"github.com/a-essam23/go-canvas/pkg/state"
	"github.com/google/uuid"
)

// EventRouter decodes inbound frames and runs the compiled pipeline of
// their event. It is the transport's MessageHandler.
type EventRouter struct {
	logger       *slog.Logger
	stateManager state.Manager
	publisher    pipeline.Publisher
	pipelines    map[protocol.Event][]pipeline.Step
}

func NewEventRouter(logger *slog.Logger, stateManager state.Manager, publisher pipeline.Publisher, pipelines map[protocol.Event][]pipeline.Step) *EventRouter {
	return &EventRouter{
		logger:       logger.With(slog.String("component", "event_router")),
		stateManager: stateManager,
		publisher:    publisher,
		pipelines:    pipelines,
	}
}

func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	clientMsg, err := protocol.DecodeClient(msg)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownEvent) {
			r.logger.Warn("Received unknown event", slog.Any("connID", connID), slog.Any("error", err))
		} else {
			r.logger.Warn("Dropping malformed client message", slog.Any("connID", connID), slog.Any("error", err))
		}
		return
	}

	steps, ok := r.pipelines[clientMsg.Event]
	if !ok {
		r.logger.Warn("No pipeline for event", slog.Any("event", clientMsg.Event), slog.Any("connID", connID))
		return
	}

	pctx, ok := r.cargo(ctx, connID)
	if !ok {
		return
	}
	pctx.Message = clientMsg

	r.logger.Debug("Executing event pipeline", slog.Any("event", clientMsg.Event), slog.Any("connID", connID))
	for _, step := range steps {
		if err := step.Function(pctx, step.Params...); err != nil {
			if step.Modifier {
				r.logger.Info("Modifier rejected event", slog.String("modifier", step.Name), slog.Any("event", clientMsg.Event), slog.Any("error", err))
				r.notifyError(connID, clientMsg.Event, err)
			} else {
				r.logger.Warn("Action failed, halting pipeline", slog.String("action", step.Name), slog.Any("error", err))
			}
			return
		}
	}
}

// HandleClose removes a closed connection from its room and from the
// connection registry.
//
// Deregistering comes first: a join racing with the close either completes
// before it, and is undone by Disconnect, or observes the missing
// connection and undoes itself.
func (r *EventRouter) HandleClose(connID uuid.UUID, err error) {
	pctx, ok := r.cargo(context.Background(), connID)
	if dErr := r.stateManager.DeregisterConnection(connID); dErr != nil {
		r.logger.Error("Failed to deregister connection from state", slog.Any("connID", connID), slog.Any("error", dErr))
	}
	if ok {
		engine.Disconnect(pctx)
	}
}

func (r *EventRouter) cargo(ctx context.Context, connID uuid.UUID) (*pipeline.Cargo, bool) {
	connProfile, ok := r.stateManager.GetConnection(connID)
	if !ok {
		r.logger.Error("could not find connection profile for active connection", slog.Any("connID", connID))
		return nil, false
	}
	roomID, _ := r.stateManager.RoomOf(connID.String())
	return &pipeline.Cargo{
		Logger:       r.logger.With(slog.String("connID", connID.String())),
		Ctx:          ctx,
		Connection:   connProfile,
		StateManager: r.stateManager,
		Publisher:    r.publisher,
		RoomID:       roomID,
	}, true
}

func (r *EventRouter) notifyError(connID uuid.UUID, event protocol.Event, cause error) {
	msg, err := protocol.Encode(protocol.EventError, protocol.ErrorNotice{Event: event, Message: cause.Error()})
	if err != nil {
		r.logger.Error("Failed to encode error notice", slog.Any("error", err))
		return
	}
	r.publisher.Unicast(connID, msg)
}
