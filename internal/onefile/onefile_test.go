package onefile

import (
	"context"
	"errors"
	"testing"
)

func TestUnavailableDecoder(t *testing.T) {
	_, err := Unavailable{}.Decode(context.Background(), []byte("raw"))
	if !errors.Is(err, ErrNoDecoder) {
		t.Errorf("err = %v, want ErrNoDecoder", err)
	}
}

func TestExecDecoder(t *testing.T) {
	// cat echoes stdin, so feeding a valid Document round-trips it.
	d := NewExecDecoder("cat")
	input := []byte(`{"nodes":[{"kind":"page","title":"P1"},{"kind":"text","text":"hello"},{"kind":"image","image":"aGk=","ext":".png"}]}`)

	doc, err := d.Decode(context.Background(), input)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(doc.Nodes) != 3 {
		t.Fatalf("len(Nodes) = %d, want 3", len(doc.Nodes))
	}
	if doc.Nodes[0].Kind != KindPage || doc.Nodes[0].Title != "P1" {
		t.Errorf("node 0 = %+v", doc.Nodes[0])
	}
	if doc.Nodes[1].Text != "hello" {
		t.Errorf("node 1 text = %q", doc.Nodes[1].Text)
	}
	if string(doc.Nodes[2].Image) != "hi" {
		t.Errorf("image bytes = %q, want %q", doc.Nodes[2].Image, "hi")
	}
}

func TestExecDecoderCommandFailure(t *testing.T) {
	d := NewExecDecoder("false")
	if _, err := d.Decode(context.Background(), nil); err == nil {
		t.Error("expected error for failing command")
	}
}

func TestExecDecoderBadOutput(t *testing.T) {
	d := NewExecDecoder("echo", "not json")
	if _, err := d.Decode(context.Background(), nil); err == nil {
		t.Error("expected error for invalid decoder output")
	}
}
