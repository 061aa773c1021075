package referee

import (
	"fmt"
	"math"

	"counterfact/domain/dataset"
	"counterfact/domain/evaluation"

	"gonum.org/v1/gonum/stat"
)

func precision(r evaluation.Result) float64 {
	return safeRatio(r.HalfWidth(), math.Abs(r.Value))
}

func (b *Battery) ciPrecisionGate(in *Inputs) measurement {
	if in.Scenario.Degenerate {
		return failClosed("scenario estimate is degenerate")
	}
	base := 0.0
	if !in.Baseline.Degenerate {
		base = precision(in.Baseline)
	}
	return measured(base, precision(in.Scenario))
}

// SensitivityZ is |V_s - V_b| / sqrt(SE_s² + SE_b²)
func SensitivityZ(scenario, baseline evaluation.Result) float64 {
	return safeRatio(math.Abs(scenario.Value-baseline.Value), math.Hypot(scenario.StdErr, baseline.StdErr))
}

func (b *Battery) sensitivityGate(in *Inputs) measurement {
	if in.Scenario.Degenerate || in.Baseline.Degenerate {
		return failClosed("scenario or baseline estimate is degenerate")
	}
	return measured(0, SensitivityZ(in.Scenario, in.Baseline))
}

// PlaceboGap splits rows at the median period, compares pre-period treated
// and control outcome means and scales the gap by the post-period outcome SD.
// ok is false when either pre-period arm has fewer than minRows rows.
func PlaceboGap(period, outcome []float64, arms []int, minRows int) (gap float64, ok bool, reason string) {
	cutoff := median(period)
	var preT, preC, post []float64
	for i, p := range period {
		switch {
		case p >= cutoff:
			post = append(post, outcome[i])
		case arms[i] == 1:
			preT = append(preT, outcome[i])
		default:
			preC = append(preC, outcome[i])
		}
	}
	if len(preT) < minRows || len(preC) < minRows {
		return 0, false, fmt.Sprintf("pre-period rows below %d per arm (treated=%d control=%d)", minRows, len(preT), len(preC))
	}
	if len(post) < 2 {
		return 0, false, "fewer than 2 post-period rows"
	}
	diff := math.Abs(stat.Mean(preT, nil) - stat.Mean(preC, nil))
	return safeRatio(diff, stat.StdDev(post, nil)), true, ""
}

func (b *Battery) placeboGate(in *Inputs) measurement {
	ds := in.Dataset
	if !ds.Columns.Period {
		return notApplicable("no period column mapped")
	}
	period, err := ds.NumericColumn(dataset.RolePeriod)
	if err != nil {
		return notApplicable(err.Error())
	}
	gap, ok, reason := PlaceboGap(period, ds.Outcomes(), ds.Treatments(), b.cfg.PlaceboMinRows)
	if !ok {
		return notApplicable(reason)
	}
	return measured(gap, gap)
}

func (b *Battery) agreementGate(in *Inputs) measurement {
	if in.GCompScenario == nil {
		return notApplicable("no g-computation estimate")
	}
	if in.Scenario.Degenerate || in.GCompScenario.Degenerate {
		return failClosed("an estimate is degenerate, agreement cannot be measured")
	}
	base := 0.0
	if in.GCompBaseline != nil {
		base = evaluation.RelativeDiff(in.Baseline.Value, in.GCompBaseline.Value)
	}
	return measured(base, evaluation.RelativeDiff(in.Scenario.Value, in.GCompScenario.Value))
}
