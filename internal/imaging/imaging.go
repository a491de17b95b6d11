// Package imaging inspects and resizes generated images.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultPreviewMaxDimension bounds the longer side of a preview.
const DefaultPreviewMaxDimension = 512

// ErrEmpty is returned for zero-length image payloads.
var ErrEmpty = errors.New("empty image data")

// Dimensions decodes only the image header and returns its pixel size and
// format name ("png", "jpeg", "gif" or "webp").
func Dimensions(data []byte) (width, height int, format string, err error) {
	if len(data) == 0 {
		return 0, 0, "", ErrEmpty
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// MIMEType maps a decoded format name to its MIME type.
func MIMEType(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// Extension returns the file extension for a MIME type, including the dot.
func Extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// Preview renders a JPEG no larger than maxDimension on either side.
// Images already inside the bound are re-encoded without resizing.
func Preview(data []byte, maxDimension int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if maxDimension <= 0 {
		maxDimension = DefaultPreviewMaxDimension
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := ScaleToFit(bounds.Dx(), bounds.Dy(), maxDimension)

	out := img
	if w != bounds.Dx() || h != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	log.Debug().
		Int("orig_width", bounds.Dx()).
		Int("orig_height", bounds.Dy()).
		Int("new_width", w).
		Int("new_height", h).
		Int("output_size", buf.Len()).
		Msg("Preview generated")

	return buf.Bytes(), nil
}

// ScaleToFit shrinks width and height proportionally so the longer side is
// at most maxDimension. Sizes already inside the bound are returned as-is.
func ScaleToFit(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}
	if width >= height {
		h := height * maxDimension / width
		return maxDimension, max(h, 1)
	}
	w := width * maxDimension / height
	return max(w, 1), maxDimension
}
