// Package client is a headless participant: it keeps a mirror of one room
// in sync over a websocket and emits local drawing as chunks and commits.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/a-essam23/go-canvas/pkg/archive"
	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/chunk"
	"github.com/a-essam23/go-canvas/pkg/mirror"
	"github.com/a-essam23/go-canvas/pkg/protocol"
	"github.com/coder/websocket"
)

var ErrNotDrawing = errors.New("no operation in progress")

const maxMessageSize = 64 << 20

type Options struct {
	// ChunkSize is the number of samples per stroke_chunk; 0 means chunk.DefaultSize.
	ChunkSize int
	Logger    *slog.Logger
	// OnError receives error notices the server sends back, e.g. rate limits.
	OnError func(protocol.ErrorNotice)
}

type Client struct {
	conn   *websocket.Conn
	mirror *mirror.Store
	logger *slog.Logger
	now    func() time.Time

	// guards builder and room; pointer events are serialized through it
	mu      sync.Mutex
	builder *chunk.Builder
	room    string

	seeded  chan struct{}
	onError func(protocol.ErrorNotice)

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	readErr error
}

// Dial connects to a server websocket endpoint, e.g. ws://localhost:8080/ws.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	// room_state carries the whole history
	conn.SetReadLimit(maxMessageSize)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		mirror:  mirror.New(logger),
		logger:  logger.With(slog.String("component", "client")),
		now:     time.Now,
		builder: chunk.NewBuilder(opts.ChunkSize),
		seeded:  make(chan struct{}, 1),
		onError: opts.OnError,
		ctx:     readCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Mirror() *mirror.Store {
	return c.mirror
}

// Room is the room last joined, or empty.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.readErr = err
			return
		}
		msg, err := protocol.DecodeServer(data)
		if err != nil {
			c.logger.Warn("Dropping undecodable server message", slog.Any("error", err))
			continue
		}
		if msg.Event == protocol.EventError {
			c.logger.Warn("Server rejected event", slog.Any("event", msg.Error.Event), slog.String("message", msg.Error.Message))
			if c.onError != nil {
				c.onError(*msg.Error)
			}
			continue
		}
		c.mirror.Apply(msg)
		if msg.Event == protocol.EventRoomState {
			select {
			case c.seeded <- struct{}{}:
			default:
			}
		}
	}
}

// Done is closed when the connection is gone; Err then reports why.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

func (c *Client) send(ctx context.Context, event protocol.Event, payload any) error {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// Join enters a room and waits until the mirror has been seeded with it.
func (c *Client) Join(ctx context.Context, room, name string) error {
	select {
	case <-c.seeded:
	default:
	}
	if err := c.send(ctx, protocol.EventJoin, protocol.JoinRequest{Room: room, Name: name}); err != nil {
		return err
	}
	select {
	case <-c.seeded:
		c.mu.Lock()
		c.room = room
		c.mu.Unlock()
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed before room state arrived: %w", c.readErr)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	c.room = ""
	c.mu.Unlock()
	return c.send(ctx, protocol.EventLeave, nil)
}

// BeginStroke starts a freehand stroke locally. Nothing is sent until the
// first chunk fills up.
func (c *Client) BeginStroke(style chunk.Style, p canvas.Point) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builder.BeginStroke(style, p, c.now())
}

func (c *Client) BeginShape(kind canvas.ShapeKind, style chunk.Style, p canvas.Point) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builder.BeginShape(kind, style, p, c.now())
}

// Move adds a pointer sample and streams a chunk when one is due.
func (c *Client) Move(ctx context.Context, p canvas.Point) error {
	c.mu.Lock()
	if !c.builder.Active() {
		c.mu.Unlock()
		return ErrNotDrawing
	}
	ch, emit := c.builder.Add(p)
	c.mu.Unlock()
	if !emit {
		return nil
	}
	return c.send(ctx, protocol.EventStrokeChunk, ch)
}

// Preview is the in-progress operation, if any.
func (c *Client) Preview() (canvas.Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builder.Preview()
}

// End commits the in-progress operation. The server does not echo the
// commit to its sender, so it is added to the local mirror here.
func (c *Client) End(ctx context.Context) (canvas.Operation, error) {
	c.mu.Lock()
	op, ok := c.builder.Finish()
	c.mu.Unlock()
	if !ok {
		return canvas.Operation{}, ErrNotDrawing
	}
	op.AuthorID = c.mirror.Self()
	// recorded before sending so an undo broadcast racing the send finds it
	c.mirror.AddLocal(op)
	if err := c.send(ctx, protocol.EventStrokeEnd, op); err != nil {
		c.mirror.Remove(op.ID)
		return op, err
	}
	return op, nil
}

func (c *Client) Undo(ctx context.Context) error {
	return c.send(ctx, protocol.EventUndo, nil)
}

func (c *Client) Redo(ctx context.Context) error {
	return c.send(ctx, protocol.EventRedo, nil)
}

func (c *Client) Cursor(ctx context.Context, x, y float64) error {
	return c.send(ctx, protocol.EventCursor, protocol.CursorUpdate{X: x, Y: y})
}

// Export writes the committed operations in receipt order. Remote strokes
// still streaming in are not part of the room's history yet.
func (c *Client) Export(w io.Writer) error {
	return archive.Export(w, c.Room(), c.mirror.CommittedOps(), c.now())
}

// Import replaces the mirror with the operations of an archive and then
// commits each of them to the room. A document that fails to parse leaves
// the mirror untouched.
func (c *Client) Import(ctx context.Context, r io.Reader) error {
	doc, err := archive.Import(r)
	if err != nil {
		return err
	}
	c.mirror.Replace(doc.Operations)
	for _, op := range doc.Operations {
		if err := c.send(ctx, protocol.EventStrokeEnd, op); err != nil {
			return fmt.Errorf("import stopped at operation %s: %w", op.ID, err)
		}
	}
	c.logger.Info("Imported operations", slog.Int("count", len(doc.Operations)), slog.String("room", c.Room()))
	return nil
}

func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.cancel()
	<-c.done
	return err
}
