package referee

import (
	"fmt"
	"math"

	"counterfact/domain/dataset"

	"gonum.org/v1/gonum/stat"
)

func (b *Battery) essGate(in *Inputs) measurement {
	treated, control := in.Dataset.ArmCounts()
	v := float64(min(treated, control))
	m := measured(v, v)
	m.reason = fmt.Sprintf("n_treated=%d n_control=%d", treated, control)
	return m
}

// HistogramIntersection is Σ min(h_t, h_c) over normalized histograms of
// values in [0,1]. Empty arms intersect nothing.
func HistogramIntersection(values []float64, arms []int, bins int) float64 {
	ht := make([]float64, bins)
	hc := make([]float64, bins)
	var nt, nc float64
	for i, v := range values {
		k := int(v * float64(bins))
		if k >= bins {
			k = bins - 1
		}
		if k < 0 {
			k = 0
		}
		if arms[i] == 1 {
			ht[k]++
			nt++
		} else {
			hc[k]++
			nc++
		}
	}
	if nt == 0 || nc == 0 {
		return 0
	}
	var out float64
	for k := 0; k < bins; k++ {
		out += math.Min(ht[k]/nt, hc[k]/nc)
	}
	return out
}

func (b *Battery) overlapGate(in *Inputs) measurement {
	v := HistogramIntersection(in.Dataset.TreatmentProbabilities(), in.Dataset.Treatments(), b.cfg.OverlapBins)
	return measured(v, v)
}

// StandardizedMeanDifference is (mean_t - mean_c) / sqrt((var_t + var_c)/2)
func StandardizedMeanDifference(x []float64, arms []int) (float64, bool) {
	var xt, xc []float64
	for i, v := range x {
		if arms[i] == 1 {
			xt = append(xt, v)
		} else {
			xc = append(xc, v)
		}
	}
	if len(xt) < 2 || len(xc) < 2 {
		return 0, false
	}
	mt, vt := stat.MeanVariance(xt, nil)
	mc, vc := stat.MeanVariance(xc, nil)
	pooled := math.Sqrt((vt + vc) / 2)
	diff := mt - mc
	if pooled < 1e-12 {
		if math.Abs(diff) < 1e-12 {
			return 0, true
		}
		return math.Copysign(1, diff), true
	}
	return diff / pooled, true
}

func (b *Battery) balanceGate(in *Inputs) measurement {
	ds := in.Dataset
	if len(ds.CovariateNames) == 0 {
		return notApplicable("no covariates mapped")
	}
	arms := ds.Treatments()
	var total float64
	for j := range ds.CovariateNames {
		smd, ok := StandardizedMeanDifference(ds.Covariate(j), arms)
		if !ok {
			return failClosed("each arm needs at least 2 rows to measure balance")
		}
		total += math.Abs(smd)
	}
	v := total / float64(len(ds.CovariateNames))
	return measured(v, v)
}

func instrumentAndTreatment(ds *dataset.Dataset) ([]float64, []float64, error) {
	z, err := ds.NumericColumn(dataset.RoleInstrument)
	if err != nil {
		return nil, nil, err
	}
	t, _ := ds.NumericColumn(dataset.RoleTreatment)
	return z, t, nil
}

// FirstStageF is the F-statistic of regressing treatment on the instrument:
// r²(n-2)/(1-r²).
func FirstStageF(z, t []float64) (float64, bool) {
	n := len(z)
	if n < 3 {
		return 0, false
	}
	r := stat.Correlation(z, t, nil)
	if math.IsNaN(r) {
		return 0, false
	}
	r2 := r * r
	return safeRatio(r2*float64(n-2), 1-r2), true
}

func (b *Battery) weakInstrumentGate(in *Inputs) measurement {
	if !in.Dataset.Columns.Instrument {
		return notApplicable("no instrument column mapped")
	}
	z, t, err := instrumentAndTreatment(in.Dataset)
	if err != nil {
		return failClosed(err.Error())
	}
	f, ok := FirstStageF(z, t)
	if !ok {
		return failClosed("instrument or treatment has no variance")
	}
	return measured(f, f)
}

func (b *Battery) monotonicityGate(in *Inputs) measurement {
	if !in.Dataset.Columns.Instrument {
		return notApplicable("no instrument column mapped")
	}
	z, t, err := instrumentAndTreatment(in.Dataset)
	if err != nil {
		return failClosed(err.Error())
	}
	r := stat.Correlation(z, t, nil)
	if math.IsNaN(r) {
		return failClosed("instrument or treatment has no variance")
	}
	return measured(r, r)
}
