package raster

// PaperSize is a fixed page format in points (1" = 72pt).
type PaperSize struct {
	Name   string
	Width  float64
	Height float64
}

var (
	PaperA4     = PaperSize{Name: "A4", Width: 595.28, Height: 841.89}
	PaperLetter = PaperSize{Name: "Letter", Width: 612, Height: 792}
)

// PageMargin is applied on all four sides of the printable area.
const PageMargin = 36.0

type Orientation string

const (
	Portrait  Orientation = "P"
	Landscape Orientation = "L"
)

// Placement describes where a raster lands on a page.
type Placement struct {
	Orientation Orientation
	X, Y        float64
	Width       float64
	Height      float64
}

// FitToPage scales a pixel buffer into the printable area of the paper,
// preserving aspect ratio and picking whichever orientation lets the content
// occupy more of the page. The placement is centered.
func FitToPage(imgW, imgH int, paper PaperSize) Placement {
	portrait := fitScale(imgW, imgH, paper.Width, paper.Height)
	landscape := fitScale(imgW, imgH, paper.Height, paper.Width)

	orientation := Portrait
	scale := portrait
	pageW, pageH := paper.Width, paper.Height
	if landscape > portrait {
		orientation = Landscape
		scale = landscape
		pageW, pageH = paper.Height, paper.Width
	}

	w := float64(imgW) * scale
	h := float64(imgH) * scale
	return Placement{
		Orientation: orientation,
		X:           (pageW - w) / 2,
		Y:           (pageH - h) / 2,
		Width:       w,
		Height:      h,
	}
}

func fitScale(imgW, imgH int, pageW, pageH float64) float64 {
	printableW := pageW - 2*PageMargin
	printableH := pageH - 2*PageMargin
	sw := printableW / float64(imgW)
	sh := printableH / float64(imgH)
	if sw < sh {
		return sw
	}
	return sh
}
