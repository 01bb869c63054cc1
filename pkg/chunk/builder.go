// Package chunk assembles in-progress operations from incremental point
// streams, on the sending side as a builder and on receivers as a merge.
package chunk

import (
	"time"

	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/protocol"
)

// DefaultSize is the number of samples between two emitted chunks.
const DefaultSize = 6

type Style struct {
	Color    string
	Width    float64
	IsEraser bool
}

// Builder accumulates pointer samples for the local in-progress operation.
// It is not safe for concurrent use; the owner serializes pointer events.
type Builder struct {
	size    int
	op      *canvas.Operation
	samples int
}

func NewBuilder(size int) *Builder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Builder{size: size}
}

// Active reports whether an operation is being built.
func (b *Builder) Active() bool {
	return b.op != nil
}

// BeginStroke starts a freehand stroke at p. Any unfinished op is discarded.
func (b *Builder) BeginStroke(style Style, p canvas.Point, now time.Time) string {
	b.op = &canvas.Operation{
		ID:   canvas.NewID(),
		Kind: canvas.KindStroke,
		Stroke: &canvas.StrokePayload{
			Points:   []canvas.Point{p},
			Color:    style.Color,
			Width:    style.Width,
			IsEraser: style.IsEraser,
		},
		Timestamp: now.UnixMilli(),
	}
	b.samples = 1
	return b.op.ID
}

// BeginShape starts a rectangle or circle anchored at p.
func (b *Builder) BeginShape(kind canvas.ShapeKind, style Style, p canvas.Point, now time.Time) string {
	b.op = &canvas.Operation{
		ID:   canvas.NewID(),
		Kind: canvas.KindShape,
		Shape: &canvas.ShapePayload{
			Shape: kind,
			Start: p,
			End:   p,
			Color: style.Color,
			Width: style.Width,
		},
		Timestamp: now.UnixMilli(),
	}
	b.samples = 1
	return b.op.ID
}

// Add records a new sample. Every size-th sample it returns a chunk holding
// only the samples added since the previous chunk (for strokes) or the
// current anchors (for shapes).
func (b *Builder) Add(p canvas.Point) (protocol.StrokeChunk, bool) {
	if b.op == nil {
		return protocol.StrokeChunk{}, false
	}
	b.samples++
	switch b.op.Kind {
	case canvas.KindStroke:
		b.op.Stroke.Points = append(b.op.Stroke.Points, p)
	case canvas.KindShape:
		b.op.Shape.End = p
	}
	if b.samples%b.size != 0 {
		return protocol.StrokeChunk{}, false
	}
	return b.chunk(), true
}

func (b *Builder) chunk() protocol.StrokeChunk {
	op := b.op
	c := protocol.StrokeChunk{
		OpID:      op.ID,
		Kind:      op.Kind,
		Timestamp: op.Timestamp,
	}
	switch op.Kind {
	case canvas.KindStroke:
		pts := op.Stroke.Points[len(op.Stroke.Points)-b.size:]
		c.Points = append([]canvas.Point(nil), pts...)
		c.Color = op.Stroke.Color
		c.Width = op.Stroke.Width
		c.IsEraser = op.Stroke.IsEraser
	case canvas.KindShape:
		start, end := op.Shape.Start, op.Shape.End
		c.Shape = op.Shape.Shape
		c.Start = &start
		c.End = &end
		c.Color = op.Shape.Color
		c.Width = op.Shape.Width
	}
	return c
}

// Preview returns a copy of the growing operation for local rendering.
func (b *Builder) Preview() (canvas.Operation, bool) {
	if b.op == nil {
		return canvas.Operation{}, false
	}
	return b.op.Clone(), true
}

// Finish returns the complete operation and resets the builder.
func (b *Builder) Finish() (canvas.Operation, bool) {
	if b.op == nil {
		return canvas.Operation{}, false
	}
	op := *b.op
	b.op = nil
	b.samples = 0
	return op, true
}
