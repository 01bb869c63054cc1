// Package render rasterizes a room's operations and cursors.
package render

import (
	"image"
	"io"

	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/protocol"
	"github.com/fogleman/gg"
)

const (
	Background   = "#ffffff"
	cursorRadius = 4
	defaultColor = "#000000"
)

type Renderer struct {
	Width  int
	Height int
}

func New(width, height int) *Renderer {
	return &Renderer{Width: width, Height: height}
}

// Render draws ops in the given order, then cursors on top. Callers pass
// display order; non-renderable strokes are skipped.
func (r *Renderer) Render(ops []canvas.Operation, cursors map[string]protocol.Cursor) image.Image {
	dc := gg.NewContext(r.Width, r.Height)
	dc.SetHexColor(Background)
	dc.Clear()

	for i := range ops {
		op := &ops[i]
		if !op.Renderable() {
			continue
		}
		switch op.Kind {
		case canvas.KindStroke:
			drawStroke(dc, op.Stroke)
		case canvas.KindShape:
			drawShape(dc, op.Shape)
		}
	}
	for _, c := range cursors {
		drawCursor(dc, c)
	}
	return dc.Image()
}

// RenderPNG is Render followed by PNG encoding.
func (r *Renderer) RenderPNG(w io.Writer, ops []canvas.Operation, cursors map[string]protocol.Cursor) error {
	dc := gg.NewContextForImage(r.Render(ops, cursors))
	return dc.EncodePNG(w)
}

// drawStroke smooths the path with quadratic segments through the
// midpoints of consecutive samples.
func drawStroke(dc *gg.Context, s *canvas.StrokePayload) {
	if s.IsEraser {
		dc.SetHexColor(Background)
	} else {
		dc.SetHexColor(colorOr(s.Color))
	}
	dc.SetLineWidth(s.Width)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	pts := s.Points
	dc.MoveTo(pts[0].X, pts[0].Y)
	for i := 1; i < len(pts); i++ {
		prev, cur := pts[i-1], pts[i]
		dc.QuadraticTo(prev.X, prev.Y, (prev.X+cur.X)/2, (prev.Y+cur.Y)/2)
	}
	dc.Stroke()
}

func drawShape(dc *gg.Context, s *canvas.ShapePayload) {
	dc.SetHexColor(colorOr(s.Color))
	dc.SetLineWidth(s.Width)
	switch s.Shape {
	case canvas.ShapeRectangle:
		x, y, w, h := s.Bounds()
		dc.DrawRectangle(x, y, w, h)
	case canvas.ShapeCircle:
		c := s.Center()
		dc.DrawCircle(c.X, c.Y, s.Radius())
	}
	dc.Stroke()
}

func drawCursor(dc *gg.Context, c protocol.Cursor) {
	dc.SetHexColor(colorOr(c.Color))
	dc.DrawCircle(c.X, c.Y, cursorRadius)
	dc.Fill()
	name := c.Name
	if name == "" {
		name = "User"
	}
	dc.DrawString(name, c.X+8, c.Y)
}

func colorOr(c string) string {
	if c == "" {
		return defaultColor
	}
	return c
}
