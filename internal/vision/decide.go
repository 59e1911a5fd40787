// Package vision decides, region by region, whether a drawer slot differs
// from its known-empty reference image.
package vision

// Signals are the per-region measurements the decision is made on.
type Signals struct {
	SSIM      float64
	Edge      float64
	RefEdge   float64
	DeltaEdge float64
	DiffMean  float64
	HistCorr  float64
}

// Thresholds of the decision cascade.
type Thresholds struct {
	EdgeDeltaEmpty float64
	EdgeDeltaOcc   float64
	SSIMEmptyOK    float64
	SSIMOccBad     float64
	DiffMeanOcc    float64
	HistCorrEmpty  float64
}

var DefaultThresholds = Thresholds{
	EdgeDeltaEmpty: 0.02,
	EdgeDeltaOcc:   0.06,
	SSIMEmptyOK:    0.85,
	SSIMOccBad:     0.20,
	DiffMeanOcc:    0.18,
	HistCorrEmpty:  0.990,
}

// Rule identifies which step of the cascade produced a verdict.
type Rule int

const (
	RuleStableEdgesAndHistogram Rule = iota + 1
	RuleEdgeGain
	RuleStrongDifference
	RuleHighSimilarity
	RuleHistogramMatch
	RuleFallback
)

// Decide returns true when the region is occupied, i.e. differs from the
// empty baseline. The first matching rule wins.
func Decide(s Signals) bool {
	present, _ := DefaultThresholds.Decide(s)
	return present
}

func (t Thresholds) Decide(s Signals) (bool, Rule) {
	d, hc, df, ss := s.DeltaEdge, s.HistCorr, s.DiffMean, s.SSIM

	if d <= t.EdgeDeltaEmpty && hc >= t.HistCorrEmpty {
		return false, RuleStableEdgesAndHistogram
	}
	if d >= t.EdgeDeltaOcc {
		return true, RuleEdgeGain
	}
	if df >= t.DiffMeanOcc && ss <= t.SSIMOccBad {
		return true, RuleStrongDifference
	}
	if ss >= t.SSIMEmptyOK && d <= t.EdgeDeltaEmpty {
		return false, RuleHighSimilarity
	}
	if hc >= t.HistCorrEmpty-0.01 && df < t.DiffMeanOcc*0.5 {
		return false, RuleHistogramMatch
	}
	return df >= t.DiffMeanOcc*0.7 && ss <= 0.5, RuleFallback
}
