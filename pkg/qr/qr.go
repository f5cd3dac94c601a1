// Package qr renders pairing codes into images the web UI can display.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered image edge length in pixels.
const DefaultSize = 256

// DataURL encodes the pairing code as a PNG data URL suitable for an <img>
// src attribute.
func DataURL(code string) (string, error) {
	return DataURLSize(code, DefaultSize)
}

// DataURLSize renders the pairing code at the given pixel size.
func DataURLSize(code string, size int) (string, error) {
	if code == "" {
		return "", fmt.Errorf("pairing code cannot be empty")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("encode pairing code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
