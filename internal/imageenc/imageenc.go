// SPDX-License-Identifier: AGPL-3.0-only
package imageenc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"math"
	"strings"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
)

// DefaultMaxWidth matches the width the upload screen has always resized to.
const DefaultMaxWidth = 300

var ErrNoImage = errors.New("no image")

// Encoder turns an image into an upload payload of a fixed format.
type Encoder interface {
	Encode(img image.Image, maxWidth int) ([]byte, error)
	MimeType() string
	Extension() string
}

// New returns the encoder for a format name: "jpeg" (or "jpg") or "webp".
func New(format string) (Encoder, error) {
	switch strings.ToLower(format) {
	case "", "jpeg", "jpg":
		return JPEG{}, nil
	case "webp":
		return WebP{}, nil
	default:
		return nil, fmt.Errorf("image format %v not recognized", format)
	}
}

// Resize scales img so its width is exactly width and the height keeps the
// aspect ratio. Upscaling is allowed.
func Resize(img image.Image, width int) (*image.RGBA, error) {
	if img == nil {
		return nil, ErrNoImage
	}
	if width <= 0 {
		return nil, fmt.Errorf("target width must be positive, got %d", width)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("image has empty bounds %v", bounds)
	}

	scale := float64(width) / float64(bounds.Dx())
	height := int(math.Round(float64(bounds.Dy()) * scale))
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	return dst, nil
}

type JPEG struct{}

func (JPEG) Encode(img image.Image, maxWidth int) ([]byte, error) {
	dst, err := Resize(img, maxWidth)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 100}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (JPEG) MimeType() string  { return "image/jpeg" }
func (JPEG) Extension() string { return ".jpg" }

type WebP struct{}

func (WebP) Encode(img image.Image, maxWidth int) ([]byte, error) {
	dst, err := Resize(img, maxWidth)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, dst, webp.Options{Lossless: false, Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

func (WebP) MimeType() string  { return "image/webp" }
func (WebP) Extension() string { return ".webp" }

// EncodeAll encodes every image it can. An image that fails is logged and
// left out; the order of the remaining payloads follows the input.
func EncodeAll(enc Encoder, images []image.Image, maxWidth int) [][]byte {
	payloads := make([][]byte, 0, len(images))
	for i, img := range images {
		data, err := enc.Encode(img, maxWidth)
		if err != nil {
			log.Printf("Image encoder: skipping image %d: %v", i, err)
			continue
		}
		payloads = append(payloads, data)
	}
	return payloads
}
