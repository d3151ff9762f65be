// Package raster turns rendered documents into tightly cropped pixel buffers
// and computes how they map onto fixed-size pages.
package raster

import (
	"image"
	"image/color"
	"image/draw"
)

const (
	// Content width band: never render narrower than a readable floor nor
	// wider than a printable ceiling.
	MinContentWidth = 480
	MaxContentWidth = 1600

	// DevicePixelRatio is the resolution multiplier for off-screen rendering.
	DevicePixelRatio = 2

	// A pixel counts as content when its alpha exceeds AlphaThreshold and at
	// least one channel differs from the background by more than Tolerance.
	AlphaThreshold = 16
	Tolerance      = 12

	// CropPadding expands the detected content box on all sides.
	CropPadding = 16
)

// ClampWidth forces a natural content width into the allowed band.
func ClampWidth(w int) int {
	if w < MinContentWidth {
		return MinContentWidth
	}
	if w > MaxContentWidth {
		return MaxContentWidth
	}
	return w
}

// CropOptions tunes the content scan. Zero values fall back to the package
// constants.
type CropOptions struct {
	Background color.RGBA
	Alpha      uint8
	Tolerance  uint8
	Padding    int
}

func (o CropOptions) normalized() CropOptions {
	if o.Alpha == 0 {
		o.Alpha = AlphaThreshold
	}
	if o.Tolerance == 0 {
		o.Tolerance = Tolerance
	}
	if o.Padding == 0 {
		o.Padding = CropPadding
	}
	return o
}

// ContentBounds scans every pixel and returns the minimal rectangle holding
// content, already padded and clamped to the buffer. ok is false when the
// buffer is entirely background.
func ContentBounds(img *image.RGBA, opts CropOptions) (image.Rectangle, bool) {
	opts = opts.normalized()
	bounds := img.Bounds()

	minX, minY := bounds.Max.X, bounds.Max.Y
	maxX, maxY := bounds.Min.X-1, bounds.Min.Y-1

	bg := opts.Background
	tol := int(opts.Tolerance)
	alpha := opts.Alpha

	// Tight loop over the raw buffer; this runs on every export.
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[(y-bounds.Min.Y)*img.Stride : (y-bounds.Min.Y)*img.Stride+(bounds.Dx())*4]
		for x := 0; x < len(row); x += 4 {
			if row[x+3] <= alpha {
				continue
			}
			if absDiff(row[x], bg.R) <= tol && absDiff(row[x+1], bg.G) <= tol && absDiff(row[x+2], bg.B) <= tol {
				continue
			}
			px := bounds.Min.X + x/4
			if px < minX {
				minX = px
			}
			if px > maxX {
				maxX = px
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < minX || maxY < minY {
		return image.Rectangle{}, false
	}

	rect := image.Rect(minX-opts.Padding, minY-opts.Padding, maxX+1+opts.Padding, maxY+1+opts.Padding)
	return rect.Intersect(bounds), true
}

// AutoCrop redraws only the content region into a fresh buffer. A buffer with
// no content pixels is returned unchanged rather than collapsed to zero size.
func AutoCrop(img *image.RGBA, opts CropOptions) *image.RGBA {
	rect, ok := ContentBounds(img, opts)
	if !ok {
		return img
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
