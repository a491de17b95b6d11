package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDimensions(t *testing.T) {
	w, h, format, err := Dimensions(encodePNG(t, 64, 36))
	require.NoError(t, err)
	assert.Equal(t, 64, w)
	assert.Equal(t, 36, h)
	assert.Equal(t, "png", format)
	assert.Equal(t, "image/png", MIMEType(format))
}

func TestDimensions_Errors(t *testing.T) {
	_, _, _, err := Dimensions(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, _, _, err = Dimensions([]byte("not an image"))
	assert.Error(t, err)
}

func TestScaleToFit(t *testing.T) {
	tests := []struct {
		w, h, limit  int
		wantW, wantH int
	}{
		{100, 50, 200, 100, 50},
		{1344, 768, 512, 512, 292},
		{768, 1344, 512, 292, 512},
		{1024, 1024, 512, 512, 512},
		{5000, 1, 100, 100, 1},
	}
	for _, tt := range tests {
		w, h := ScaleToFit(tt.w, tt.h, tt.limit)
		assert.Equal(t, tt.wantW, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "%dx%d", tt.w, tt.h)
	}
}

func TestPreview(t *testing.T) {
	out, err := Preview(encodePNG(t, 160, 90), 80)
	require.NoError(t, err)

	w, h, format, err := Dimensions(out)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 80, w)
	assert.Equal(t, 45, h)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpg", Extension("image/jpeg"))
	assert.Equal(t, ".webp", Extension("image/webp"))
	assert.Equal(t, ".png", Extension("application/octet-stream"))
}
