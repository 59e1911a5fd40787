package vision

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	colorOccupied = color.NRGBA{G: 255, A: 255}
	colorEmpty    = color.NRGBA{R: 255, A: 255}
)

// Annotate draws each region on a copy of img: green when occupied, red
// when empty, with its signals as a label above the box.
func Annotate(img image.Image, dets []Detection) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	for _, d := range dets {
		c := colorEmpty
		state := "VAZIO"
		if d.Result.Present {
			c = colorOccupied
			state = "OCUPADO"
		}
		strokeRect(out, d.Result.Rect.Bounds(), 2, c)

		label := fmt.Sprintf("%s: %s | s=%.2f | e=%.3f | ref=%.3f | d=%.3f | diff=%.3f | hc=%.3f",
			d.Name, state, d.Result.SSIM, d.Result.Edge, d.Result.RefEdge,
			d.Result.DeltaEdge, d.Result.DiffMean, d.Result.HistCorr)
		drawLabel(out, d.Result.Rect.X, d.Result.Rect.Y-8, label, c)
	}
	return out
}

func strokeRect(img *image.NRGBA, r image.Rectangle, thickness int, c color.Color) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), u, image.Point{}, draw.Src)
	}
}

func drawLabel(img *image.NRGBA, x, y int, text string, c color.Color) {
	if y < basicfont.Face7x13.Ascent {
		y = basicfont.Face7x13.Ascent
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
