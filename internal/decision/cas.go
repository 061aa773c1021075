package decision

import (
	"fmt"
	"math"

	"counterfact/domain/verdict"
	"counterfact/internal/referee"
)

// CAS grade cut points
const (
	GreenScore  = 0.7
	YellowScore = 0.6
)

// DefaultWeights weighs the five axes equally
func DefaultWeights() verdict.Axes {
	return verdict.Axes{Internal: 1, External: 1, Transport: 1, Robustness: 1, Stability: 1}
}

// Score computes the Composite Assurance Score from gate outcomes. A zero
// weights value means equal weights.
func Score(res verdict.QualityGatesResult, weights verdict.Axes) (verdict.CASResult, error) {
	if weights == (verdict.Axes{}) {
		weights = DefaultWeights()
	}
	ws := []float64{weights.Internal, weights.External, weights.Transport, weights.Robustness, weights.Stability}
	var total float64
	for _, w := range ws {
		if w < 0 || math.IsNaN(w) {
			return verdict.CASResult{}, fmt.Errorf("CAS weights must be non-negative")
		}
		total += w
	}
	if total == 0 {
		return verdict.CASResult{}, fmt.Errorf("CAS weights must not all be zero")
	}

	essPass := passIndicator(res, referee.GateESS)
	balance := normalizedScore(res, referee.GateBalance)
	overlap := normalizedScore(res, referee.GateOverlap)
	monotonicity := passIndicator(res, referee.GateMonotonicity)
	sensitivity := normalizedScore(res, referee.GateSensitivity)
	weakIV := normalizedScore(res, referee.GateWeakInstrument)
	placebo := passIndicator(res, referee.GatePlacebo)

	axes := verdict.Axes{
		Internal:   0.6*essPass + 0.4*balance,
		External:   overlap,
		Transport:  0.7*overlap + 0.3*monotonicity,
		Robustness: 0.5*sensitivity + 0.3*weakIV + 0.2*placebo,
		Stability:  0.6*placebo + 0.4*balance,
	}
	vals := []float64{axes.Internal, axes.External, axes.Transport, axes.Robustness, axes.Stability}
	var overall float64
	for i, v := range vals {
		overall += ws[i] * v
	}
	overall = clamp01(overall / total)

	return verdict.CASResult{Axes: axes, Overall: overall, Grade: GradeFor(overall)}, nil
}

// GradeFor maps an overall score to its traffic light
func GradeFor(score float64) verdict.Grade {
	switch {
	case score >= GreenScore:
		return verdict.GradeGreen
	case score >= YellowScore:
		return verdict.GradeYellow
	default:
		return verdict.GradeRed
	}
}

// passIndicator is 1 for PASS or NA, 0 otherwise
func passIndicator(res verdict.QualityGatesResult, name string) float64 {
	g, ok := res.Gate(name)
	if !ok || g.Status == verdict.StatusPass || g.Status == verdict.StatusNA {
		return 1
	}
	return 0
}

// normalizedScore maps a gate value into [0,1]: min(1, v/t) for lower bounds,
// t/v above an upper bound. A failing gate never scores 1.
func normalizedScore(res verdict.QualityGatesResult, name string) float64 {
	g, ok := res.Gate(name)
	if !ok || g.Status == verdict.StatusNA {
		return 1
	}
	score := Normalize(g.Scenario, g.Threshold)
	if g.Status == verdict.StatusFail && score >= 1 {
		return 0
	}
	return score
}

// Normalize scores v against threshold t in [0,1]
func Normalize(v float64, t verdict.Threshold) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if t.LowerBound() {
		if t.Value <= 0 {
			if v > t.Value {
				return 1
			}
			return 0
		}
		return clamp01(v / t.Value)
	}
	if v <= t.Value {
		return 1
	}
	if v <= 0 {
		return 0
	}
	return clamp01(t.Value / v)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
