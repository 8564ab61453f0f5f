package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// Register decoders for the formats screenshots arrive in.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// maxImageSize is the maximum image size accepted for synchronous
	// recognition (20MB, matching the Vision API limit).
	maxImageSize = 20 * 1024 * 1024

	// maxDimension is the longest side allowed before an image is
	// downscaled. Screenshots above this size slow the local engine
	// without improving recognition.
	maxDimension = 2048
)

// Prepare validates and normalizes image bytes for recognition. Oversized
// images are downscaled preserving aspect ratio, and formats the local engine
// cannot ingest (WebP, GIF) are re-encoded as PNG. Images that already fit
// are returned unchanged.
func Prepare(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, NewOCRError("Prepare", "", ErrUnsupportedImage, "empty image data")
	}
	if len(data) > maxImageSize {
		return nil, NewOCRError("Prepare", "", ErrImageTooLarge,
			fmt.Sprintf("image size %d bytes exceeds limit", len(data)))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, NewOCRError("Prepare", "", ErrUnsupportedImage, err.Error())
	}

	needsResize := cfg.Width > maxDimension || cfg.Height > maxDimension
	needsReencode := format == "webp" || format == "gif"
	if !needsResize && !needsReencode {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, NewOCRError("Prepare", "", ErrUnsupportedImage, err.Error())
	}

	if needsResize {
		img = downscale(img, maxDimension)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, WrapOCRError("Prepare", "", err, "re-encoding image")
	}
	return buf.Bytes(), nil
}

// downscale resizes img so its longest side equals limit, preserving aspect
// ratio. CatmullRom keeps glyph edges sharp enough for recognition.
func downscale(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}

	var tw, th int
	if w >= h {
		tw = limit
		th = h * limit / w
	} else {
		th = limit
		tw = w * limit / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
