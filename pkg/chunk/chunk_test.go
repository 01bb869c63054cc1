package chunk_test

import (
	"testing"
	"time"

	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/chunk"
	"github.com/a-essam23/go-canvas/pkg/protocol"
)

func pt(i int) canvas.Point {
	return canvas.Point{X: float64(i), Y: float64(i * 2)}
}

func TestBuilderEmitsEverySixthSample(t *testing.T) {
	b := chunk.NewBuilder(0)
	id := b.BeginStroke(chunk.Style{Color: "#f00", Width: 4}, pt(0), time.UnixMilli(1000))

	var chunks []protocol.StrokeChunk
	for i := 1; i < 14; i++ {
		if c, ok := b.Add(pt(i)); ok {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks for 14 samples, got %d", len(chunks))
	}
	for n, c := range chunks {
		if c.OpID != id {
			t.Errorf("chunk %d: wrong op id %s", n, c.OpID)
		}
		if len(c.Points) != chunk.DefaultSize {
			t.Fatalf("chunk %d: expected %d points, got %d", n, chunk.DefaultSize, len(c.Points))
		}
		// each chunk only carries the new samples
		if c.Points[0] != pt(n*6) || c.Points[5] != pt(n*6+5) {
			t.Errorf("chunk %d: unexpected point range %v", n, c.Points)
		}
		if c.Color != "#f00" || c.Width != 4 || c.Timestamp != 1000 {
			t.Errorf("chunk %d: style not carried: %+v", n, c)
		}
	}

	op, ok := b.Finish()
	if !ok {
		t.Fatal("Finish returned nothing")
	}
	if len(op.Stroke.Points) != 14 {
		t.Errorf("expected 14 points in finished op, got %d", len(op.Stroke.Points))
	}
	if b.Active() {
		t.Error("builder should be idle after Finish")
	}
	if _, ok := b.Add(pt(99)); ok {
		t.Error("Add on an idle builder must not emit")
	}
}

func TestBuilderChunkDoesNotAliasBuffer(t *testing.T) {
	b := chunk.NewBuilder(2)
	b.BeginStroke(chunk.Style{}, pt(0), time.Now())
	c, ok := b.Add(pt(1))
	if !ok {
		t.Fatal("expected a chunk at the second sample")
	}
	c.Points[0] = pt(50)
	preview, _ := b.Preview()
	if preview.Stroke.Points[0] != pt(0) {
		t.Error("mutating an emitted chunk changed the builder buffer")
	}
}

func TestBuilderShapeChunksCarryAnchors(t *testing.T) {
	b := chunk.NewBuilder(3)
	b.BeginShape(canvas.ShapeCircle, chunk.Style{Color: "#00f", Width: 2}, pt(1), time.Now())
	b.Add(pt(2))
	c, ok := b.Add(pt(3))
	if !ok {
		t.Fatal("expected a shape chunk at the third sample")
	}
	if c.Kind != canvas.KindShape || c.Shape != canvas.ShapeCircle {
		t.Fatalf("unexpected chunk kind %+v", c)
	}
	if *c.Start != pt(1) || *c.End != pt(3) {
		t.Errorf("unexpected anchors %v %v", *c.Start, *c.End)
	}
	op, _ := b.Finish()
	if op.Shape.End != pt(3) {
		t.Errorf("finished shape end mismatch: %v", op.Shape.End)
	}
}

func TestApplyCreatesThenAppends(t *testing.T) {
	var ops []canvas.Operation
	first := protocol.StrokeChunk{OpID: "op-1", UserID: "u1", Points: []canvas.Point{pt(0), pt(1)}, Color: "#f00", Width: 3, Timestamp: 7}
	ops, created := chunk.Apply(ops, first)
	if !created || len(ops) != 1 {
		t.Fatalf("first chunk must create the op, created=%v len=%d", created, len(ops))
	}
	if ops[0].AuthorID != "u1" || ops[0].Stroke.Color != "#f00" || ops[0].Timestamp != 7 {
		t.Errorf("op not seeded from chunk style: %+v", ops[0])
	}

	second := protocol.StrokeChunk{OpID: "op-1", Points: []canvas.Point{pt(2)}}
	ops, created = chunk.Apply(ops, second)
	if created {
		t.Error("second chunk must not create a new op")
	}
	if got := len(ops[0].Stroke.Points); got != 3 {
		t.Fatalf("expected 3 points after append, got %d", got)
	}
	if ops[0].Stroke.Points[2] != pt(2) {
		t.Error("points must be appended in receipt order")
	}
}

func TestApplyKeepsOperationsIndependent(t *testing.T) {
	var ops []canvas.Operation
	ops, _ = chunk.Apply(ops, protocol.StrokeChunk{OpID: "a", Points: []canvas.Point{pt(0)}})
	ops, _ = chunk.Apply(ops, protocol.StrokeChunk{OpID: "b", Points: []canvas.Point{pt(5)}})
	ops, _ = chunk.Apply(ops, protocol.StrokeChunk{OpID: "a", Points: []canvas.Point{pt(1)}})
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(ops))
	}
	if len(ops[0].Stroke.Points) != 2 || len(ops[1].Stroke.Points) != 1 {
		t.Errorf("chunks leaked between ops: %+v", ops)
	}
}

func TestApplyShapeUpdatesEnd(t *testing.T) {
	start, mid, end := pt(1), pt(4), pt(9)
	var ops []canvas.Operation
	ops, _ = chunk.Apply(ops, protocol.StrokeChunk{OpID: "s", Kind: canvas.KindShape, Shape: canvas.ShapeRectangle, Start: &start, End: &mid})
	ops, _ = chunk.Apply(ops, protocol.StrokeChunk{OpID: "s", Kind: canvas.KindShape, Shape: canvas.ShapeRectangle, Start: &start, End: &end})
	if ops[0].Shape.Start != start || ops[0].Shape.End != end {
		t.Errorf("unexpected shape anchors %+v", ops[0].Shape)
	}
}
