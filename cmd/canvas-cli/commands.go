package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/a-essam23/go-canvas/internal/render"
	"github.com/a-essam23/go-canvas/pkg/archive"
	"github.com/a-essam23/go-canvas/pkg/canvas"
	"github.com/a-essam23/go-canvas/pkg/chunk"
	"github.com/a-essam23/go-canvas/pkg/client"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func connectionFlags(fs *pflag.FlagSet) {
	fs.String("server", "ws://localhost:8080/ws", "server websocket endpoint")
	fs.String("room", "", "room to join")
	fs.String("name", "canvas-cli", "display name")
	fs.Duration("timeout", 10*time.Second, "time allowed to connect and join")
}

func exportFlags(fs *pflag.FlagSet) {
	connectionFlags(fs)
	fs.String("out", "-", "output file, - for stdout")
}

func importFlags(fs *pflag.FlagSet) {
	connectionFlags(fs)
	fs.String("in", "", "export file to import")
}

func renderFlags(fs *pflag.FlagSet) {
	fs.String("in", "", "export file to render")
	fs.String("out", "canvas.png", "output PNG file")
	fs.Int("width", 1280, "image width")
	fs.Int("height", 720, "image height")
}

func drawFlags(fs *pflag.FlagSet) {
	connectionFlags(fs)
	fs.String("color", "#4363d8", "stroke color")
	fs.Float64("width", 4, "stroke width")
	fs.Int("chunk-size", chunk.DefaultSize, "samples per stroke_chunk")
}

func connect(ctx context.Context, v *viper.Viper, logger *slog.Logger) (*client.Client, error) {
	room := v.GetString("room")
	if room == "" {
		return nil, fmt.Errorf("--room is required")
	}
	ctx, cancel := context.WithTimeout(ctx, v.GetDuration("timeout"))
	defer cancel()

	c, err := client.Dial(ctx, v.GetString("server"), client.Options{
		ChunkSize: v.GetInt("chunk-size"),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Join(ctx, room, v.GetString("name")); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func runExport(ctx context.Context, v *viper.Viper, logger *slog.Logger) error {
	c, err := connect(ctx, v, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	out, closeOut, err := openOutput(v.GetString("out"))
	if err != nil {
		return err
	}
	defer closeOut()
	return c.Export(out)
}

func runImport(ctx context.Context, v *viper.Viper, logger *slog.Logger) error {
	f, err := os.Open(v.GetString("in"))
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := connect(ctx, v, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Import(ctx, f)
}

func runRender(ctx context.Context, v *viper.Viper, logger *slog.Logger) error {
	in, err := os.Open(v.GetString("in"))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(v.GetString("out"))
	if err != nil {
		return err
	}
	defer out.Close()
	return renderArchive(in, out, v.GetInt("width"), v.GetInt("height"))
}

// renderArchive draws an export document in display order.
func renderArchive(r io.Reader, w io.Writer, width, height int) error {
	doc, err := archive.Import(r)
	if err != nil {
		return err
	}
	return render.New(width, height).RenderPNG(w, canvas.SortForDisplay(doc.Operations), nil)
}

func runDraw(ctx context.Context, v *viper.Viper, logger *slog.Logger) error {
	c, err := connect(ctx, v, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	style := chunk.Style{Color: v.GetString("color"), Width: v.GetFloat64("width")}
	spiral := demoSpiral(400, 300, 48)
	c.BeginStroke(style, spiral[0])
	for _, p := range spiral[1:] {
		if err := c.Move(ctx, p); err != nil {
			return err
		}
		if err := c.Cursor(ctx, p.X, p.Y); err != nil {
			return err
		}
	}
	op, err := c.End(ctx)
	if err != nil {
		return err
	}
	logger.Info("Committed stroke", slog.String("opID", op.ID), slog.Int("points", len(op.Stroke.Points)))

	c.BeginShape(canvas.ShapeRectangle, style, canvas.Point{X: 300, Y: 200})
	for i := 1; i <= chunk.DefaultSize; i++ {
		if err := c.Move(ctx, canvas.Point{X: 300 + float64(i)*30, Y: 200 + float64(i)*20}); err != nil {
			return err
		}
	}
	shape, err := c.End(ctx)
	if err != nil {
		return err
	}
	logger.Info("Committed shape", slog.String("opID", shape.ID))
	return nil
}

func demoSpiral(cx, cy float64, n int) []canvas.Point {
	pts := make([]canvas.Point, n)
	for i := range pts {
		a := float64(i) * 0.35
		r := 4 * float64(i)
		pts[i] = canvas.Point{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)}
	}
	return pts
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
