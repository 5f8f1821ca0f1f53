// Package qr renders pairing QR payloads as PNG images suitable for chat
// attachments.
package qr

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	// baseSize is the edge length the code is generated at.
	baseSize = 256
	// scale upscales with nearest-neighbor so chat clients' recompression
	// keeps the modules crisp enough to scan from a screen.
	scale = 3
)

// Size is the edge length of rendered images in pixels.
const Size = baseSize * scale

// Render encodes payload as a PNG QR image.
func Render(payload string) ([]byte, error) {
	raw, err := qrcode.Encode(payload, qrcode.Medium, baseSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode qr png: %w", err)
	}
	big := imaging.Resize(img, Size, Size, imaging.NearestNeighbor)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, big, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
