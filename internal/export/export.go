// Package export turns a generated HTML note into downloadable files. All of
// it runs locally on the exporting client; nothing here talks to the server.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/jung-kurt/gofpdf"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"github.com/noteforge/noteforge/internal/raster"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatPDF  Format = "pdf"
)

var background = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Render rasterizes a document at the given natural width and auto-crops the
// result to its content bounds.
func Render(doc string, naturalWidth int) *image.RGBA {
	lines := ExtractText(doc)
	img := raster.RenderLines(lines, raster.RenderOptions{
		Width:      naturalWidth,
		Background: background,
	})
	return raster.AutoCrop(img, raster.CropOptions{Background: background})
}

func EncodePNG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

func EncodeWebP(img image.Image) ([]byte, error) {
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, 85)
	if err != nil {
		return nil, fmt.Errorf("webp encoder options: %w", err)
	}
	var out bytes.Buffer
	if err := webp.Encode(&out, img, opts); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return out.Bytes(), nil
}

// EncodePDF lays the cropped raster onto fixed-size pages. A single-page note
// becomes one fitted page; a multi-page note is split into equal horizontal
// bands, one band per page. Orientation is chosen per band by whichever fits
// more efficiently.
func EncodePDF(img *image.RGBA, pageCount int, paper raster.PaperSize) ([]byte, error) {
	if pageCount < 1 {
		pageCount = 1
	}

	pdf := gofpdf.New(string(raster.Portrait), "pt", paper.Name, "")

	bounds := img.Bounds()
	bandHeight := bounds.Dy() / pageCount
	if bandHeight < 1 {
		bandHeight = bounds.Dy()
		pageCount = 1
	}

	for page := 0; page < pageCount; page++ {
		y0 := bounds.Min.Y + page*bandHeight
		y1 := y0 + bandHeight
		if page == pageCount-1 {
			y1 = bounds.Max.Y // last band absorbs the remainder
		}
		band := img.SubImage(image.Rect(bounds.Min.X, y0, bounds.Max.X, y1))

		bandBounds := band.Bounds()
		placement := raster.FitToPage(bandBounds.Dx(), bandBounds.Dy(), paper)

		pngBytes, err := EncodePNG(band)
		if err != nil {
			return nil, err
		}

		pdf.AddPageFormat(string(placement.Orientation), gofpdf.SizeType{Wd: paper.Width, Ht: paper.Height})
		name := fmt.Sprintf("band-%d", page)
		pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(pngBytes))
		pdf.ImageOptions(name, placement.X, placement.Y, placement.Width, placement.Height, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return out.Bytes(), nil
}
