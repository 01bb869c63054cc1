package chunk

import (
	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/protocol"
)

// Apply merges a remote chunk into ops. The first chunk seen for an id
// creates the operation from the chunk's style; later chunks append their
// points in receipt order. Chunks are never discarded. The returned bool is
// true when a new operation was created.
func Apply(ops []canvas.Operation, c protocol.StrokeChunk) ([]canvas.Operation, bool) {
	for i := range ops {
		if ops[i].ID == c.OpID {
			extend(&ops[i], c)
			return ops, false
		}
	}
	return append(ops, fromChunk(c)), true
}

func fromChunk(c protocol.StrokeChunk) canvas.Operation {
	op := canvas.Operation{
		ID:        c.OpID,
		AuthorID:  c.UserID,
		Kind:      c.ChunkKind(),
		Timestamp: c.Timestamp,
	}
	switch op.Kind {
	case canvas.KindShape:
		op.Shape = &canvas.ShapePayload{Shape: c.Shape, Color: c.Color, Width: c.Width}
		if c.Start != nil {
			op.Shape.Start = *c.Start
			op.Shape.End = *c.Start
		}
	default:
		op.Stroke = &canvas.StrokePayload{Color: c.Color, Width: c.Width, IsEraser: c.IsEraser}
	}
	extend(&op, c)
	return op
}

func extend(op *canvas.Operation, c protocol.StrokeChunk) {
	switch {
	case op.Stroke != nil:
		op.Stroke.Points = append(op.Stroke.Points, c.Points...)
	case op.Shape != nil:
		if c.End != nil {
			op.Shape.End = *c.End
		}
	}
}
