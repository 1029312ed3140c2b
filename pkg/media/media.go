// Package media inspects uploaded files and derives thumbnails for images.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// ErrTypeNotAllowed is returned when the sniffed MIME type is not in the allow list.
var ErrTypeNotAllowed = errors.New("file type not allowed")

// Inspector validates uploads by content rather than by client supplied headers.
type Inspector struct {
	allowed  []string
	maxBytes int64
}

// NewInspector builds an inspector; an empty allow list accepts every type.
func NewInspector(allowed []string, maxBytes int64) *Inspector {
	return &Inspector{allowed: allowed, maxBytes: maxBytes}
}

// Detect returns the MIME type of data, enforcing size and allow list.
func (i *Inspector) Detect(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty file")
	}
	if i.maxBytes > 0 && int64(len(data)) > i.maxBytes {
		return "", fmt.Errorf("file exceeds %d bytes", i.maxBytes)
	}
	mt := mimetype.Detect(data)
	if len(i.allowed) == 0 {
		return mt.String(), nil
	}
	for _, allowed := range i.allowed {
		if mt.Is(allowed) {
			return baseType(mt.String()), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrTypeNotAllowed, mt.String())
}

// IsImage reports whether a MIME type can be thumbnailed.
func IsImage(mime string) bool {
	switch baseType(mime) {
	case "image/jpeg", "image/png", "image/gif", "image/bmp", "image/tiff":
		return true
	}
	return false
}

// Thumbnail decodes an image, fits it into width x width keeping the aspect
// ratio and re-encodes it as JPEG.
func Thumbnail(data []byte, width int) ([]byte, error) {
	if width <= 0 {
		width = 320
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Fit(img, width, width, imaging.Lanczos)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func baseType(mime string) string {
	if idx := strings.Index(mime, ";"); idx >= 0 {
		return strings.TrimSpace(mime[:idx])
	}
	return mime
}
