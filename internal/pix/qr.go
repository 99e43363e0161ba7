package pix

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// PlaceholderQR подставляется, если QR-код построить не удалось.
const PlaceholderQR = "placeholder:qr-unavailable"

// QRRenderer рисует PNG с QR-кодом и возвращает его как data URI.
type QRRenderer struct {
	size int
}

// NewQRRenderer создаёт генератор QR-кодов со стороной size пикселей.
func NewQRRenderer(size int) *QRRenderer {
	if size <= 0 {
		size = 256
	}
	return &QRRenderer{size: size}
}

// Render кодирует payload в QR-код.
func (r *QRRenderer) Render(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, r.size)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
