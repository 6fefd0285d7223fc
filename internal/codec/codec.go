// Package codec implements the image decoding capability used by the
// pipeline: metadata extraction and thumbnail resizing for JPEG and
// PNG uploads.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"pictor/internal/model"
)

// Bounding box (in pixels) per variant. Thumbnails fit inside the box
// preserving aspect ratio and are never upscaled.
const (
	smallBound  = 256
	mediumBound = 512

	defaultSmallQuality  = 85
	defaultMediumQuality = 90
)

// ImageCodec is the capability the pipeline depends on for decoding
// and resizing. The production implementation is Codec; tests inject
// fakes.
type ImageCodec interface {
	ExtractMetadata(data []byte) (model.ImageMetadata, error)
	Resize(data []byte, variant model.Variant) ([]byte, error)
}

// Codec decodes with the standard image package and scales with
// x/image/draw. Thumbnails are always encoded as JPEG, matching the
// fixed thumbs/ layout.
type Codec struct {
	smallQuality  int
	mediumQuality int
}

// New returns a Codec with the given JPEG qualities per variant.
// Non-positive values fall back to the defaults (85 small, 90 medium).
func New(smallQuality, mediumQuality int) *Codec {
	if smallQuality <= 0 {
		smallQuality = defaultSmallQuality
	}
	if mediumQuality <= 0 {
		mediumQuality = defaultMediumQuality
	}
	return &Codec{smallQuality: smallQuality, mediumQuality: mediumQuality}
}

// ExtractMetadata decodes only the image header and returns its
// dimensions and format name ("jpeg" or "png").
func (c *Codec) ExtractMetadata(data []byte) (model.ImageMetadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.ImageMetadata{}, fmt.Errorf("decode image header: %w", err)
	}
	return model.ImageMetadata{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Resize produces the JPEG thumbnail bytes for the given variant.
func (c *Codec) Resize(data []byte, variant model.Variant) ([]byte, error) {
	bound, quality, err := c.variantSpec(variant)
	if err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), bound)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Codec) variantSpec(variant model.Variant) (bound, quality int, err error) {
	switch variant {
	case model.VariantSmall:
		return smallBound, c.smallQuality, nil
	case model.VariantMedium:
		return mediumBound, c.mediumQuality, nil
	default:
		return 0, 0, fmt.Errorf("unknown size variant %q", variant)
	}
}

// fit shrinks (w, h) to fit inside a bound x bound box, keeping the
// aspect ratio. Images already inside the box keep their size.
func fit(w, h, bound int) (int, int) {
	if w <= bound && h <= bound {
		return w, h
	}
	if w >= h {
		scaled := h * bound / w
		if scaled < 1 {
			scaled = 1
		}
		return bound, scaled
	}
	scaled := w * bound / h
	if scaled < 1 {
		scaled = 1
	}
	return scaled, bound
}
