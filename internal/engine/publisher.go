package engine

import (
	"log/slog"

	"github.com/a-essam23/go-canvas/pkg/pipeline"
	"github.com/a-essam23/go-canvas/pkg/state"
	"github.com/a-essam23/go-canvas/pkg/transport"
	"github.com/google/uuid"
)

// Broker resolves rooms to live transports through the state manager and
// fans messages out to them.
type Broker struct {
	stateManager state.Manager
	logger       *slog.Logger
}

var _ pipeline.Publisher = (*Broker)(nil)

func NewBroker(stateManager state.Manager, logger *slog.Logger) *Broker {
	return &Broker{
		stateManager: stateManager,
		logger:       logger.With(slog.String("component", "broker")),
	}
}

func (b *Broker) Publish(roomID string, exclude uuid.UUID, msg []byte) int {
	return b.Fanout(roomID, b.stateManager.RoomConnections(roomID), exclude, msg)
}

func (b *Broker) Fanout(roomID string, targets []transport.Sender, exclude uuid.UUID, msg []byte) int {
	delivered := 0
	for _, conn := range targets {
		if conn.ID() == exclude {
			continue
		}
		if conn.Send(msg) {
			delivered++
		} else {
			b.logger.Warn("Dropped message for peer", slog.String("roomID", roomID), slog.String("connID", conn.ID().String()))
		}
	}
	b.logger.Debug("Published to room", slog.String("roomID", roomID), slog.Int("delivered", delivered))
	return delivered
}

func (b *Broker) Unicast(connID uuid.UUID, msg []byte) bool {
	conn, ok := b.stateManager.GetConnection(connID)
	if !ok {
		return false
	}
	return conn.Transport.Send(msg)
}
