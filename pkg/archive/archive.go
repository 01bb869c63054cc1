// Package archive reads and writes the canvas export format: the committed
// history verbatim, tagged with a format identifier.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/a-essam23/go-canvas/pkg/canvas"
)

const FormatV1 = "go-canvas/v1"

var ErrUnsupportedFormat = errors.New("unsupported export format")

type Document struct {
	Format     string             `json:"format"`
	Room       string             `json:"room,omitempty"`
	ExportedAt time.Time          `json:"exportedAt"`
	Operations []canvas.Operation `json:"operations"`
}

// Export writes ops as a v1 document.
func Export(w io.Writer, room string, ops []canvas.Operation, now time.Time) error {
	if ops == nil {
		ops = []canvas.Operation{}
	}
	doc := Document{
		Format:     FormatV1,
		Room:       room,
		ExportedAt: now.UTC(),
		Operations: ops,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// Import parses a document. Nothing is returned unless every operation is
// well-formed, so a failed import never leaves partial state behind.
func Import(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse export: %w", err)
	}
	if doc.Format != FormatV1 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.Format)
	}
	seen := make(map[string]bool, len(doc.Operations))
	for i := range doc.Operations {
		op := &doc.Operations[i]
		if !op.Valid() {
			return nil, fmt.Errorf("invalid operation at index %d", i)
		}
		if seen[op.ID] {
			return nil, fmt.Errorf("duplicate operation id %q at index %d", op.ID, i)
		}
		seen[op.ID] = true
	}
	return &doc, nil
}
