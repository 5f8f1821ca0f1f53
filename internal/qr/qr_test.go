package qr

import (
	"bytes"
	"testing"

	"github.com/disintegration/imaging"
)

func TestRender(t *testing.T) {
	png, err := Render("2@AbCdEfGh1234,example-qr-payload")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(png) == 0 {
		t.Fatalf("empty image")
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("output is not a PNG")
	}

	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w := img.Bounds().Dx(); w != Size {
		t.Errorf("width = %d, want %d", w, Size)
	}
}

func TestRenderEmptyPayload(t *testing.T) {
	if _, err := Render(""); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}
