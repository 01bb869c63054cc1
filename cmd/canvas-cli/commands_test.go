package main

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/a-essam23/go-canvas/pkg/archive"
	"github.com/a-essam23/go-canvas/pkg/canvas"
)

func TestRenderArchive(t *testing.T) {
	var doc bytes.Buffer
	ops := []canvas.Operation{{
		ID: "op-1", Kind: canvas.KindStroke, Timestamp: 2,
		Stroke: &canvas.StrokePayload{Points: demoSpiral(20, 20, 6), Color: "#000", Width: 2},
	}}
	if err := archive.Export(&doc, "art", ops, time.Unix(0, 0)); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var out bytes.Buffer
	if err := renderArchive(&doc, &out, 40, 30); err != nil {
		t.Fatalf("renderArchive failed: %v", err)
	}
	img, err := png.Decode(&out)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("bounds = %v, want 40x30", b)
	}
}

func TestRenderArchiveRejectsForeignFormat(t *testing.T) {
	err := renderArchive(strings.NewReader(`{"format":"other","operations":[]}`), &bytes.Buffer{}, 10, 10)
	if err == nil {
		t.Fatal("a foreign format should be rejected")
	}
}

func TestDemoSpiralStartsAtCenter(t *testing.T) {
	pts := demoSpiral(100, 50, 10)
	if len(pts) != 10 || pts[0] != (canvas.Point{X: 100, Y: 50}) {
		t.Errorf("unexpected spiral %v", pts[:1])
	}
}
