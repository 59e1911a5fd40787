package vision

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	cannyLow  = 60
	cannyHigh = 140
	histBins  = 32
)

// 5x5 binomial kernel, the Gaussian used for a 5x5 window with sigma
// derived from the window size.
var gaussian5x5 = func() [25]float64 {
	row := [5]float64{1, 4, 6, 4, 1}
	var k [25]float64
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			k[y*5+x] = row[y] * row[x] / 256
		}
	}
	return k
}()

// measure computes the signals of one region. ref and cur are crops of the
// same size.
func measure(ref, cur *image.NRGBA) (Signals, error) {
	refG := preprocess(ref)
	curG := preprocess(cur)

	w, h := refG.Rect.Dx(), refG.Rect.Dy()
	win := ssimWindow(w, h)
	if win > w || win > h {
		return Signals{}, fmt.Errorf("region %dx%d is smaller than the %dx%d similarity window", w, h, win, win)
	}

	s := ssim(refG, curG, win)
	refEdge := edgeFraction(canny(refG, cannyLow, cannyHigh))
	curEdge := edgeFraction(canny(curG, cannyLow, cannyHigh))

	return Signals{
		SSIM:      s,
		Edge:      curEdge,
		RefEdge:   refEdge,
		DeltaEdge: math.Max(0, curEdge-refEdge),
		DiffMean:  meanAbsDiff(refG, curG) / 255,
		HistCorr:  histCorrelation(valueHistogram(ref), valueHistogram(cur)),
	}, nil
}

// preprocess converts to gray, blurs 5x5 and equalizes the histogram.
func preprocess(img *image.NRGBA) *image.Gray {
	blurred := imaging.Convolve5x5(imaging.Grayscale(img), gaussian5x5, nil)

	b := blurred.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g.Pix[y*g.Stride+x] = blurred.Pix[y*blurred.Stride+x*4]
		}
	}
	equalizeHist(g)
	return g
}

func equalizeHist(g *image.Gray) {
	var hist [256]int
	for _, v := range g.Pix {
		hist[v]++
	}

	total := len(g.Pix)
	first := 0
	for first < 256 && hist[first] == 0 {
		first++
	}
	if first == 256 {
		return
	}
	if hist[first] == total {
		for i := range g.Pix {
			g.Pix[i] = uint8(first)
		}
		return
	}

	var lut [256]uint8
	scale := 255.0 / float64(total-hist[first])
	sum := 0
	for i := first + 1; i < 256; i++ {
		sum += hist[i]
		lut[i] = clampByte(math.Round(float64(sum) * scale))
	}

	for i, v := range g.Pix {
		g.Pix[i] = lut[v]
	}
}

// ssimWindow picks the largest odd window in [3, 7] that fits min(w, h),
// never going below 3.
func ssimWindow(w, h int) int {
	m := min(w, h)
	if m%2 == 0 {
		m--
	}
	return max(3, min(7, m))
}

// ssim is the mean structural similarity over every fully contained
// win x win window, with uniform weights, sample covariance and a data
// range of 255.
func ssim(a, b *image.Gray, win int) float64 {
	w, h := a.Rect.Dx(), a.Rect.Dy()
	stride := w + 1
	n := stride * (h + 1)
	sa, sb := make([]float64, n), make([]float64, n)
	saa, sbb, sab := make([]float64, n), make([]float64, n), make([]float64, n)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			va := float64(a.Pix[y*a.Stride+x])
			vb := float64(b.Pix[y*b.Stride+x])
			i := (y+1)*stride + x + 1
			sa[i] = va + sa[i-1] + sa[i-stride] - sa[i-stride-1]
			sb[i] = vb + sb[i-1] + sb[i-stride] - sb[i-stride-1]
			saa[i] = va*va + saa[i-1] + saa[i-stride] - saa[i-stride-1]
			sbb[i] = vb*vb + sbb[i-1] + sbb[i-stride] - sbb[i-stride-1]
			sab[i] = va*vb + sab[i-1] + sab[i-stride] - sab[i-stride-1]
		}
	}

	np := float64(win * win)
	covNorm := np / (np - 1)
	c1 := math.Pow(0.01*255, 2)
	c2 := math.Pow(0.03*255, 2)

	var total float64
	var count int
	for y := 0; y+win <= h; y++ {
		for x := 0; x+win <= w; x++ {
			box := func(s []float64) float64 {
				return s[(y+win)*stride+x+win] - s[y*stride+x+win] - s[(y+win)*stride+x] + s[y*stride+x]
			}
			ux, uy := box(sa)/np, box(sb)/np
			vx := covNorm * (box(saa)/np - ux*ux)
			vy := covNorm * (box(sbb)/np - uy*uy)
			vxy := covNorm * (box(sab)/np - ux*uy)

			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			total += num / den
			count++
		}
	}
	return total / float64(count)
}

const (
	edgeNone uint8 = iota
	edgeWeak
	edgeStrong
)

// canny runs Sobel 3x3 (replicated borders), L1 magnitude, non-maximum
// suppression and hysteresis. Thresholds are exclusive.
func canny(g *image.Gray, low, high int) []uint8 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	px := func(x, y int) int {
		x = max(0, min(x, w-1))
		y = max(0, min(y, h-1))
		return int(g.Pix[y*g.Stride+x])
	}

	dx := make([]int, w*h)
	dy := make([]int, w*h)
	mag := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1) - px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1)
			gy := px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1) - px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1)
			i := y*w + x
			dx[i], dy[i] = gx, gy
			mag[i] = abs(gx) + abs(gy)
		}
	}
	magAt := func(x, y int) int {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	// tan(22.5deg) in Q15.
	const tg22 = 13573

	state := make([]uint8, w*h)
	var stack []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}

			ax := int64(abs(dx[i]))
			ay := int64(abs(dy[i])) << 15
			tg22x := ax * tg22

			var keep bool
			switch {
			case ay < tg22x:
				keep = m > magAt(x-1, y) && m >= magAt(x+1, y)
			case ay > tg22x+(ax<<16):
				keep = m > magAt(x, y-1) && m >= magAt(x, y+1)
			default:
				s := 1
				if dx[i]^dy[i] < 0 {
					s = -1
				}
				keep = m > magAt(x-s, y-1) && m > magAt(x+s, y+1)
			}
			if !keep {
				continue
			}

			if m > high {
				state[i] = edgeStrong
				stack = append(stack, i)
			} else {
				state[i] = edgeWeak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for ny := y - 1; ny <= y+1; ny++ {
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == edgeWeak {
					state[j] = edgeStrong
					stack = append(stack, j)
				}
			}
		}
	}

	return state
}

func edgeFraction(state []uint8) float64 {
	if len(state) == 0 {
		return 0
	}
	n := 0
	for _, s := range state {
		if s == edgeStrong {
			n++
		}
	}
	return float64(n) / float64(len(state))
}

func meanAbsDiff(a, b *image.Gray) float64 {
	if len(a.Pix) == 0 {
		return 0
	}
	var sum int
	for i := range a.Pix {
		sum += abs(int(a.Pix[i]) - int(b.Pix[i]))
	}
	return float64(sum) / float64(len(a.Pix))
}

// valueHistogram is the L2-normalized 32-bin histogram of the HSV value
// channel, max(R, G, B).
func valueHistogram(img *image.NRGBA) [histBins]float64 {
	var hist [histBins]float64
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			v := max(row[x], row[x+1], row[x+2])
			hist[int(v)*histBins/256]++
		}
	}

	var norm float64
	for _, v := range hist {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range hist {
			hist[i] /= norm
		}
	}
	return hist
}

// histCorrelation is the Pearson correlation of two histograms, 1 when
// the variance product vanishes.
func histCorrelation(a, b [histBins]float64) float64 {
	var s1, s2, s11, s22, s12 float64
	for i := range a {
		s1 += a[i]
		s2 += b[i]
		s11 += a[i] * a[i]
		s22 += b[i] * b[i]
		s12 += a[i] * b[i]
	}
	const n = histBins
	num := s12 - s1*s2/n
	den := (s11 - s1*s1/n) * (s22 - s2*s2/n)
	if math.Abs(den) > 2.220446049250313e-16 {
		return num / math.Sqrt(den)
	}
	return 1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
