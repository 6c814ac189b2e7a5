package imageenc

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/gen2brain/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	return img
}

func TestResize(t *testing.T) {
	tests := []struct {
		name         string
		w, h, target int
		wantW, wantH int
	}{
		{"downscale landscape", 1200, 800, 300, 300, 200},
		{"downscale portrait", 600, 900, 300, 300, 450},
		{"upscale small", 100, 50, 300, 300, 150},
		{"rounds height", 7, 3, 300, 300, 129},
		{"never zero height", 3000, 1, 300, 300, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dst, err := Resize(solid(tc.w, tc.h), tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.wantW, dst.Bounds().Dx())
			assert.Equal(t, tc.wantH, dst.Bounds().Dy())
		})
	}
}

func TestResizeRejectsBadInput(t *testing.T) {
	_, err := Resize(nil, 300)
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = Resize(image.NewRGBA(image.Rect(0, 0, 0, 0)), 300)
	assert.Error(t, err)

	_, err = Resize(solid(10, 10), 0)
	assert.Error(t, err)
}

func TestJPEGEncode(t *testing.T) {
	data, err := JPEG{}.Encode(solid(640, 480), DefaultMaxWidth)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 225, cfg.Height)

	assert.Equal(t, "image/jpeg", JPEG{}.MimeType())
	assert.Equal(t, ".jpg", JPEG{}.Extension())
}

func TestWebPEncode(t *testing.T) {
	data, err := WebP{}.Encode(solid(120, 60), 240)
	require.NoError(t, err)

	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 240, cfg.Width)
	assert.Equal(t, 120, cfg.Height)

	assert.Equal(t, "image/webp", WebP{}.MimeType())
	assert.Equal(t, ".webp", WebP{}.Extension())
}

func TestEncodeIsDeterministic(t *testing.T) {
	img := solid(500, 250)
	a, err := JPEG{}.Encode(img, 300)
	require.NoError(t, err)
	b, err := JPEG{}.Encode(img, 300)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeAllSkipsFailures(t *testing.T) {
	images := []image.Image{solid(40, 40), nil, solid(80, 20)}

	payloads := EncodeAll(JPEG{}, images, 50)
	require.Len(t, payloads, 2)

	first, err := jpeg.DecodeConfig(bytes.NewReader(payloads[0]))
	require.NoError(t, err)
	assert.Equal(t, 50, first.Height)

	second, err := jpeg.DecodeConfig(bytes.NewReader(payloads[1]))
	require.NoError(t, err)
	assert.Equal(t, 13, second.Height)
}

func TestNew(t *testing.T) {
	for format, want := range map[string]Encoder{"": JPEG{}, "jpeg": JPEG{}, "JPG": JPEG{}, "webp": WebP{}} {
		enc, err := New(format)
		require.NoError(t, err)
		assert.Equal(t, want, enc)
	}

	_, err := New("gif")
	assert.Error(t, err)
}
