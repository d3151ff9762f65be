package raster

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderOptions controls the off-screen text renderer.
type RenderOptions struct {
	Width      int // natural content width in CSS pixels, clamped to the band
	Scale      int // device-pixel-ratio multiplier; <=0 means DevicePixelRatio
	Background color.RGBA
	Foreground color.RGBA
}

const (
	renderMargin = 24
	lineHeight   = 18
	glyphWidth   = 7 // basicfont.Face7x13 advance
)

// RenderLines draws pre-extracted text lines into an RGBA buffer at the
// requested device-pixel-ratio. Drawing happens at 1x and is upscaled with
// nearest-neighbour so pixel counts stay exact multiples of the CSS layout.
func RenderLines(lines []string, opts RenderOptions) *image.RGBA {
	width := ClampWidth(opts.Width)
	scale := opts.Scale
	if scale <= 0 {
		scale = DevicePixelRatio
	}
	bg := opts.Background
	if bg == (color.RGBA{}) {
		bg = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	fg := opts.Foreground
	if fg == (color.RGBA{}) {
		fg = color.RGBA{R: 17, G: 17, B: 17, A: 255}
	}

	maxChars := (width - 2*renderMargin) / glyphWidth
	if maxChars < 8 {
		maxChars = 8
	}
	wrapped := wrapLines(lines, maxChars)

	height := 2*renderMargin + len(wrapped)*lineHeight
	if height < 2*renderMargin+lineHeight {
		height = 2*renderMargin + lineHeight
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: basicfont.Face7x13,
	}
	y := renderMargin + lineHeight/2 + basicfont.Face7x13.Ascent
	for _, line := range wrapped {
		drawer.Dot = fixed.P(renderMargin, y)
		drawer.DrawString(line)
		y += lineHeight
	}

	if scale == 1 {
		return img
	}
	return scaleNearest(img, scale)
}

func wrapLines(lines []string, maxChars int) []string {
	var out []string
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			out = append(out, "")
			continue
		}
		words := strings.Fields(line)
		current := ""
		for _, word := range words {
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if len(candidate) > maxChars && current != "" {
				out = append(out, current)
				current = word
				continue
			}
			current = candidate
		}
		if current != "" {
			out = append(out, current)
		}
	}
	return out
}

func scaleNearest(src *image.RGBA, factor int) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	for y := 0; y < dst.Bounds().Dy(); y++ {
		sy := y / factor
		for x := 0; x < dst.Bounds().Dx(); x++ {
			sx := x / factor
			si := sy*src.Stride + sx*4
			di := y*dst.Stride + x*4
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
