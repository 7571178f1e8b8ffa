// Package onefile models the output of the external binary notebook-file
// decoder as a flat stream of typed content nodes. The decoder itself is an
// opaque capability: the shipped implementation shells out to an external
// converter, and tests substitute a DecoderFunc.
package onefile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

// Node kinds emitted by a decoder. The indexing core only consumes page
// boundaries, text runs, and embedded image blobs; decoders may omit
// anything else.
const (
	KindPage  = "page"
	KindText  = "text"
	KindImage = "image"
)

// Node is one typed content node in authoring order.
type Node struct {
	Kind  string `json:"kind"`
	Title string `json:"title,omitempty"` // KindPage
	Text  string `json:"text,omitempty"`  // KindText
	Image []byte `json:"image,omitempty"` // KindImage, raw bytes (base64 on the wire)
	Ext   string `json:"ext,omitempty"`   // KindImage, e.g. ".png"
}

// Document is the decoded content of one section file.
type Document struct {
	Nodes []Node `json:"nodes"`
}

// Decoder turns raw section-file bytes into a node stream.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Document, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, data []byte) (*Document, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, data []byte) (*Document, error) {
	return f(ctx, data)
}

// ErrNoDecoder is returned when no decoder command is configured.
var ErrNoDecoder = errors.New("onefile: no decoder configured")

// Unavailable is the Decoder wired when decoding is not configured. Every
// call fails with ErrNoDecoder, which enumeration-level callers treat as a
// per-unit warning.
type Unavailable struct{}

// Decode always fails.
func (Unavailable) Decode(_ context.Context, _ []byte) (*Document, error) {
	return nil, ErrNoDecoder
}

// ExecDecoder invokes an external converter command. The raw file bytes go
// to the command's stdin; stdout must be a JSON Document with image bytes
// base64-encoded.
type ExecDecoder struct {
	command string
	args    []string
}

// NewExecDecoder creates a decoder around the given command and arguments.
func NewExecDecoder(command string, args ...string) *ExecDecoder {
	return &ExecDecoder{command: command, args: args}
}

// Decode runs the converter and parses its output.
func (d *ExecDecoder) Decode(ctx context.Context, data []byte) (*Document, error) {
	cmd := exec.CommandContext(ctx, d.command, d.args...)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return nil, fmt.Errorf("onefile: decoder %s: %w: %s", d.command, err, msg)
		}
		return nil, fmt.Errorf("onefile: decoder %s: %w", d.command, err)
	}

	var doc Document
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("onefile: decoder output: %w", err)
	}
	return &doc, nil
}
