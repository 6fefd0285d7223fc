package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"pictor/internal/model"
)

// encodePNG renders a w x h test image as PNG bytes.
func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestExtractMetadata(t *testing.T) {
	c := New(0, 0)

	md, err := c.ExtractMetadata(encodePNG(t, 640, 480))
	if err != nil {
		t.Fatalf("ExtractMetadata returned error: %v", err)
	}
	if md.Width != 640 || md.Height != 480 {
		t.Fatalf("expected 640x480, got %dx%d", md.Width, md.Height)
	}
	if md.Format != "png" {
		t.Fatalf("expected format png, got %q", md.Format)
	}
}

func TestExtractMetadataRejectsGarbage(t *testing.T) {
	c := New(0, 0)
	if _, err := c.ExtractMetadata([]byte("not an image")); err == nil {
		t.Fatalf("expected error for non-image bytes")
	}
}

func TestResizeFitsBoundsAndKeepsAspect(t *testing.T) {
	c := New(0, 0)

	out, err := c.Resize(encodePNG(t, 1024, 512), model.VariantSmall)
	if err != nil {
		t.Fatalf("Resize returned error: %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("thumbnails must be jpeg, got %q", format)
	}
	if cfg.Width != 256 || cfg.Height != 128 {
		t.Fatalf("expected 256x128, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestResizeMediumBound(t *testing.T) {
	c := New(0, 0)

	out, err := c.Resize(encodePNG(t, 600, 900), model.VariantMedium)
	if err != nil {
		t.Fatalf("Resize returned error: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if cfg.Height != 512 {
		t.Fatalf("expected height 512, got %d", cfg.Height)
	}
	if cfg.Width != 341 {
		t.Fatalf("expected width 341, got %d", cfg.Width)
	}
}

func TestResizeNeverUpscales(t *testing.T) {
	c := New(0, 0)

	out, err := c.Resize(encodePNG(t, 100, 60), model.VariantSmall)
	if err != nil {
		t.Fatalf("Resize returned error: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 60 {
		t.Fatalf("small image must keep its size, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestResizeUnknownVariant(t *testing.T) {
	c := New(0, 0)
	if _, err := c.Resize(encodePNG(t, 10, 10), model.Variant("huge")); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}
