package vision

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// RegionResult is the verdict and the raw signals of one region.
type RegionResult struct {
	Present   bool    `json:"presente"`
	Rect      Rect    `json:"rect"`
	SSIM      float64 `json:"ssim"`
	Edge      float64 `json:"edge"`
	RefEdge   float64 `json:"ref_edge"`
	DeltaEdge float64 `json:"delta_edge"`
	DiffMean  float64 `json:"diff_mean"`
	HistCorr  float64 `json:"hist_corr"`
}

func (r RegionResult) Signals() Signals {
	return Signals{SSIM: r.SSIM, Edge: r.Edge, RefEdge: r.RefEdge, DeltaEdge: r.DeltaEdge, DiffMean: r.DiffMean, HistCorr: r.HistCorr}
}

// Detection is one named region result.
type Detection struct {
	Name   string
	Result RegionResult
}

// Detector compares a live image against an empty reference.
type Detector struct {
	Thresholds Thresholds
}

func NewDetector() *Detector {
	return &Detector{Thresholds: DefaultThresholds}
}

// Detect evaluates every region independently. cur is resized to the
// reference size first; rectangles are clamped to the image.
func (d *Detector) Detect(ref, cur image.Image, regions []Region) ([]Detection, *image.NRGBA, error) {
	if ref == nil || cur == nil {
		return nil, nil, fmt.Errorf("reference and current images are required")
	}

	refN := imaging.Clone(ref)
	curN := matchSize(cur, refN.Bounds().Dx(), refN.Bounds().Dy())
	W, H := refN.Bounds().Dx(), refN.Bounds().Dy()

	out := make([]Detection, 0, len(regions))
	for _, region := range regions {
		rect := region.Rect.Clamp(W, H)
		s, err := measure(imaging.Crop(refN, rect.Bounds()), imaging.Crop(curN, rect.Bounds()))
		if err != nil {
			return nil, nil, fmt.Errorf("region %q: %w", region.Name, err)
		}
		present, _ := d.Thresholds.Decide(s)
		out = append(out, Detection{
			Name: region.Name,
			Result: RegionResult{
				Present:   present,
				Rect:      rect,
				SSIM:      s.SSIM,
				Edge:      s.Edge,
				RefEdge:   s.RefEdge,
				DeltaEdge: s.DeltaEdge,
				DiffMean:  s.DiffMean,
				HistCorr:  s.HistCorr,
			},
		})
	}
	return out, curN, nil
}

func matchSize(img image.Image, w, h int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Linear)
}

// Occupied returns the names of the regions found occupied, in order.
func Occupied(dets []Detection) []string {
	names := []string{}
	for _, d := range dets {
		if d.Result.Present {
			names = append(names, d.Name)
		}
	}
	return names
}
