package classify

import (
	"bytes"
	"image"

	"golang.org/x/image/draw"
)

const (
	edgeSampleSize = 256 // longest side after downscale
	edgeThreshold  = 30  // gray-level delta that counts as an edge
)

// edgeDensity estimates the fraction of edge pixels in the image. Dense edges
// are typical of map tiles and UI chrome. The image is downscaled first so the
// estimate stays cheap on large photos.
func edgeDensity(imageData []byte) (float64, bool) {
	src, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return 0, false
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0, false
	}
	if w > h {
		h = h * edgeSampleSize / w
		w = edgeSampleSize
	} else {
		w = w * edgeSampleSize / h
		h = edgeSampleSize
	}
	if w < 2 || h < 2 {
		return 0, false
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), src, b, draw.Src, nil)

	edges := 0
	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			v := int(gray.GrayAt(x, y).Y)
			dx := v - int(gray.GrayAt(x+1, y).Y)
			dy := v - int(gray.GrayAt(x, y+1).Y)
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			if dx > edgeThreshold || dy > edgeThreshold {
				edges++
			}
		}
	}

	return float64(edges) / float64((w-1)*(h-1)), true
}
