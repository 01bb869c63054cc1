package canvas

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type Kind string

const (
	KindStroke Kind = "stroke"
	KindShape  Kind = "shape"
)

type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokePayload is a freehand path. Point order defines the path.
type StrokePayload struct {
	Points   []Point `json:"points"`
	Color    string  `json:"color"`
	Width    float64 `json:"width"`
	IsEraser bool    `json:"isEraser"`
}

// ShapePayload only stores the two anchor points; geometry is derived on demand.
type ShapePayload struct {
	Shape ShapeKind `json:"shape"`
	Start Point     `json:"start"`
	End   Point     `json:"end"`
	Color string    `json:"color"`
	Width float64   `json:"width"`
}

// Operation is a single drawing action. Once committed it is never mutated.
//
// Timestamp is the originating client's wall clock in unix milliseconds. It
// only drives display ordering; the authoritative order is the server's
// receipt order of commits.
type Operation struct {
	ID        string         `json:"id"`
	AuthorID  string         `json:"authorId,omitempty"`
	Kind      Kind           `json:"kind"`
	Stroke    *StrokePayload `json:"stroke,omitempty"`
	Shape     *ShapePayload  `json:"shape,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// NewID returns a short random operation id. Collisions are possible but
// vanishingly rare and are not guarded against.
func NewID() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "op-" + token[:12]
}

// Valid reports whether the operation has the shape of a committable op.
// Coordinates are never range-checked.
func (op *Operation) Valid() bool {
	if op == nil || op.ID == "" {
		return false
	}
	switch op.Kind {
	case KindStroke:
		return op.Stroke != nil
	case KindShape:
		if op.Shape == nil {
			return false
		}
		return op.Shape.Shape == ShapeRectangle || op.Shape.Shape == ShapeCircle
	default:
		return false
	}
}

// Renderable is false for strokes with fewer than two points. Consumers
// treat those as no-ops.
func (op *Operation) Renderable() bool {
	switch op.Kind {
	case KindStroke:
		return op.Stroke != nil && len(op.Stroke.Points) >= 2
	case KindShape:
		return op.Shape != nil
	}
	return false
}

// Color returns the style color regardless of the variant.
func (op *Operation) Color() string {
	switch {
	case op.Stroke != nil:
		return op.Stroke.Color
	case op.Shape != nil:
		return op.Shape.Color
	}
	return ""
}

// Clone returns a deep copy so that holders never alias each other's slices.
func (op Operation) Clone() Operation {
	if op.Stroke != nil {
		s := *op.Stroke
		s.Points = append([]Point(nil), op.Stroke.Points...)
		op.Stroke = &s
	}
	if op.Shape != nil {
		s := *op.Shape
		op.Shape = &s
	}
	return op
}

// Center is the midpoint of the shape's bounding box.
func (s *ShapePayload) Center() Point {
	return Point{X: (s.Start.X + s.End.X) / 2, Y: (s.Start.Y + s.End.Y) / 2}
}

// Radius is half the length of the bounding box diagonal.
func (s *ShapePayload) Radius() float64 {
	return math.Hypot(s.End.X-s.Start.X, s.End.Y-s.Start.Y) / 2
}

// Bounds returns the normalized top-left corner and size of the box spanned
// by Start and End.
func (s *ShapePayload) Bounds() (x, y, w, h float64) {
	x = math.Min(s.Start.X, s.End.X)
	y = math.Min(s.Start.Y, s.End.Y)
	w = math.Abs(s.End.X - s.Start.X)
	h = math.Abs(s.End.Y - s.Start.Y)
	return x, y, w, h
}

// SortForDisplay returns a copy of ops stable-sorted by client timestamp.
// Clock skew between clients can make this differ from receipt order.
func SortForDisplay(ops []Operation) []Operation {
	sorted := make([]Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return sorted
}

// CloneAll deep copies a slice of operations.
func CloneAll(ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i := range ops {
		out[i] = ops[i].Clone()
	}
	return out
}
