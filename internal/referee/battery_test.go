package referee

import (
	"math"
	"testing"

	"counterfact/domain/dataset"
	"counterfact/domain/evaluation"
	"counterfact/domain/scenario"
	"counterfact/domain/verdict"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// balancedDataset has identical covariate and propensity distributions in
// both arms.
func balancedDataset(nTreated, nControl int) *dataset.Dataset {
	var recs []dataset.LoggedRecord
	add := func(n, t int) {
		for i := 0; i < n; i++ {
			recs = append(recs, dataset.LoggedRecord{
				UnitID:        "u",
				Treatment:     t,
				Outcome:       float64(i % 7),
				LogPropensity: math.Log(0.5),
				Covariates:    []float64{float64(i % 10)},
				Group:         []string{"a", "b"}[i%2],
				Period:        float64(i % 4),
			})
		}
	}
	add(nTreated, 1)
	add(nControl, 0)
	return &dataset.Dataset{Records: recs, CovariateNames: []string{"x"}, GroupColumn: "region"}
}

func result(v, se float64) evaluation.Result {
	return evaluation.Result{Estimator: "dr", Value: v, StdErr: se, CILower: v - 1.96*se, CIUpper: v + 1.96*se}
}

func newBattery(t *testing.T, cfg BatteryConfig) *Battery {
	t.Helper()
	b, err := NewBattery(cfg, nil)
	require.NoError(t, err)
	return b
}

func inputs(ds *dataset.Dataset) Inputs {
	return Inputs{
		Dataset:    ds,
		Spec:       &scenario.Spec{},
		Assignment: ds.Treatments(),
		Baseline:   result(10, 0.5),
		Scenario:   result(12, 0.5),
	}
}

func gate(t *testing.T, res verdict.QualityGatesResult, name string) verdict.Gate {
	t.Helper()
	g, ok := res.Gate(name)
	require.True(t, ok, "gate %s missing", name)
	return g
}

func TestESSGate(t *testing.T) {
	tests := []struct {
		name     string
		nTreated int
		nControl int
		want     verdict.Status
	}{
		{"small arms fail", 40, 40, verdict.StatusFail},
		{"large arms pass", 2000, 2000, verdict.StatusPass},
		{"one small arm fails", 2000, 999, verdict.StatusFail},
	}
	b := newBattery(t, DefaultBatteryConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := b.Run(inputs(balancedDataset(tt.nTreated, tt.nControl)))
			g := gate(t, res, GateESS)
			assert.Equal(t, tt.want, g.Status)
			assert.Equal(t, float64(min(tt.nTreated, tt.nControl)), g.Scenario)
		})
	}
}

func TestHardFailBlocksDataQuality(t *testing.T) {
	b := newBattery(t, DefaultBatteryConfig())

	res := b.Run(inputs(balancedDataset(40, 40)))
	assert.Equal(t, verdict.DataQualityBlocked, res.DataQuality)
	assert.Equal(t, []string{GateESS}, res.BlockingGates)

	res = b.Run(inputs(balancedDataset(1500, 1500)))
	assert.Equal(t, verdict.DataQualityOK, res.DataQuality)
	assert.Empty(t, res.BlockingGates)
	assert.Equal(t, verdict.StatusPass, gate(t, res, GateOverlap).Status)
	assert.Equal(t, verdict.StatusPass, gate(t, res, GateBalance).Status)
}

func TestBatteryReportsEveryGateInOrder(t *testing.T) {
	res := newBattery(t, DefaultBatteryConfig()).Run(inputs(balancedDataset(100, 100)))
	names := make([]string, len(res.Gates))
	for i, g := range res.Gates {
		names[i] = g.Name
	}
	assert.Equal(t, GateNames(), names)
}

func TestMissingPrerequisitesAreNA(t *testing.T) {
	ds := balancedDataset(100, 100)
	res := newBattery(t, DefaultBatteryConfig()).Run(inputs(ds))

	for _, name := range []string{GateWeakInstrument, GateMonotonicity, GatePlacebo, GateEstimatorAgreement, GateFairnessGap, GateBudgetUtilization} {
		g := gate(t, res, name)
		assert.Equal(t, verdict.StatusNA, g.Status, name)
		assert.NotEmpty(t, g.Reason, name)
	}
	// NA gates stay out of the pass rate
	assert.Equal(t, 9, res.PassCount+res.FailCount+res.WarningCount+res.NACount)
	assert.Equal(t, 4, res.NACount)

	cfg := DefaultBatteryConfig()
	cfg.AutoPassMissing = true
	res = newBattery(t, cfg).Run(inputs(ds))
	assert.Equal(t, verdict.StatusPass, gate(t, res, GateWeakInstrument).Status)
	assert.Equal(t, verdict.StatusPass, gate(t, res, GateMonotonicity).Status)
}

func TestInstrumentGates(t *testing.T) {
	ds := balancedDataset(300, 300)
	ds.Columns.Instrument = true
	for i := range ds.Records {
		// instrument tracks treatment with some noise
		ds.Records[i].Instrument = float64(ds.Records[i].Treatment) + float64(i%5)*0.1
	}
	res := newBattery(t, DefaultBatteryConfig()).Run(inputs(ds))
	weak := gate(t, res, GateWeakInstrument)
	assert.Equal(t, verdict.StatusPass, weak.Status)
	assert.Greater(t, weak.Scenario, 10.0)
	assert.Equal(t, verdict.StatusPass, gate(t, res, GateMonotonicity).Status)

	for i := range ds.Records {
		ds.Records[i].Instrument = -float64(ds.Records[i].Treatment) + float64(i%5)*0.1
	}
	res = newBattery(t, DefaultBatteryConfig()).Run(inputs(ds))
	assert.Equal(t, verdict.StatusFail, gate(t, res, GateMonotonicity).Status)
}

func TestDegenerateEstimatesFailInsteadOfCrashing(t *testing.T) {
	in := inputs(balancedDataset(100, 100))
	in.Scenario = evaluation.Degenerated("dr", 200, evaluation.DiagnosticESS)
	res := newBattery(t, DefaultBatteryConfig()).Run(in)

	for _, name := range []string{GateCIPrecision, GateSensitivity, GateDeltaProfit} {
		g := gate(t, res, name)
		assert.Equal(t, verdict.StatusFail, g.Status, name)
		assert.Contains(t, g.Reason, "degenerate", name)
	}
}

func TestPrecisionAndSensitivity(t *testing.T) {
	in := inputs(balancedDataset(100, 100))
	in.Baseline = result(10, 0.5)
	in.Scenario = result(12, 0.5)
	res := newBattery(t, DefaultBatteryConfig()).Run(in)

	prec := gate(t, res, GateCIPrecision)
	assert.InDelta(t, 1.96*0.5/12, prec.Scenario, 1e-9)
	assert.Equal(t, verdict.StatusPass, prec.Status)

	sens := gate(t, res, GateSensitivity)
	assert.InDelta(t, 2/math.Sqrt(0.5), sens.Scenario, 1e-9)
	assert.Equal(t, verdict.StatusPass, sens.Status)

	in.Scenario = result(10.2, 0.5)
	res = newBattery(t, DefaultBatteryConfig()).Run(in)
	assert.Equal(t, verdict.StatusFail, gate(t, res, GateSensitivity).Status)
}

func TestAgreementOnlyWarns(t *testing.T) {
	in := inputs(balancedDataset(100, 100))
	far := result(30, 1)
	near := result(12.5, 1)

	in.GCompScenario = &far
	res := newBattery(t, DefaultBatteryConfig()).Run(in)
	assert.Equal(t, verdict.StatusWarning, gate(t, res, GateEstimatorAgreement).Status)
	assert.Equal(t, 1, res.WarningCount)

	in.GCompScenario = &near
	res = newBattery(t, DefaultBatteryConfig()).Run(in)
	assert.Equal(t, verdict.StatusPass, gate(t, res, GateEstimatorAgreement).Status)
}

func TestPlaceboGate(t *testing.T) {
	ds := balancedDataset(400, 400)
	ds.Columns.Period = true
	res := newBattery(t, DefaultBatteryConfig()).Run(inputs(ds))
	g := gate(t, res, GatePlacebo)
	assert.Equal(t, verdict.StatusPass, g.Status)
	assert.Less(t, g.Scenario, 0.25)

	// treated rows were already better before rollout
	for i := range ds.Records {
		r := &ds.Records[i]
		if r.Treatment == 1 && r.Period < 2 {
			r.Outcome += 10
		}
	}
	res = newBattery(t, DefaultBatteryConfig()).Run(inputs(ds))
	assert.Equal(t, verdict.StatusFail, gate(t, res, GatePlacebo).Status)

	small := balancedDataset(60, 60)
	small.Columns.Period = true
	res = newBattery(t, DefaultBatteryConfig()).Run(inputs(small))
	assert.Equal(t, verdict.StatusNA, gate(t, res, GatePlacebo).Status)
}

func TestDecisionGates(t *testing.T) {
	ds := balancedDataset(100, 100)
	ds.Columns.Group = true
	ds.Extra = map[string][]float64{"unit_cost": make([]float64, ds.Len())}
	for i := range ds.Extra["unit_cost"] {
		ds.Extra["unit_cost"][i] = 1
	}

	in := inputs(ds)
	in.Spec = &scenario.Spec{Constraints: &scenario.Constraints{
		Budget:   &scenario.BudgetConstraint{Cap: 150, UnitCostColumn: "unit_cost"},
		Fairness: &scenario.FairnessConstraint{GroupColumn: "region", MaxGap: fptr(0.05)},
	}}
	// treat every "a" row: the gap between groups is 1
	in.Assignment = make([]int, ds.Len())
	for i, r := range ds.Records {
		if r.Group == "a" {
			in.Assignment[i] = 1
		}
	}
	res := newBattery(t, DefaultBatteryConfig()).Run(in)

	fair := gate(t, res, GateFairnessGap)
	assert.Equal(t, verdict.StatusFail, fair.Status)
	assert.InDelta(t, 1.0, fair.Scenario, 1e-12)
	assert.Equal(t, 0.05, fair.Threshold.Value)

	budget := gate(t, res, GateBudgetUtilization)
	assert.InDelta(t, 100.0/150.0, budget.Scenario, 1e-12)
	assert.Equal(t, verdict.StatusPass, budget.Status)

	profit := gate(t, res, GateDeltaProfit)
	assert.InDelta(t, 2.0, profit.Scenario, 1e-12)
	assert.Equal(t, verdict.StatusPass, profit.Status)

	// decision gates are excluded from the pass rate
	assert.Equal(t, 9, res.PassCount+res.FailCount+res.WarningCount+res.NACount)
}

func fptr(v float64) *float64 { return &v }

func TestFairnessZeroGapIsHonoured(t *testing.T) {
	ds := balancedDataset(100, 100)
	ds.Columns.Group = true
	in := inputs(ds)
	in.Spec = &scenario.Spec{Constraints: &scenario.Constraints{
		Fairness: &scenario.FairnessConstraint{GroupColumn: "region", MaxGap: fptr(0)},
	}}

	// same treated share in both groups
	in.Assignment = make([]int, ds.Len())
	res := newBattery(t, DefaultBatteryConfig()).Run(in)
	g := gate(t, res, GateFairnessGap)
	assert.Equal(t, 0.0, g.Threshold.Value)
	assert.Equal(t, verdict.StatusPass, g.Status)

	// one extra treated unit opens a gap no zero tolerance allows
	in.Assignment[0] = 1
	res = newBattery(t, DefaultBatteryConfig()).Run(in)
	g = gate(t, res, GateFairnessGap)
	assert.Greater(t, g.Scenario, 0.0)
	assert.Less(t, g.Scenario, FAIRNESS_MAX_GAP)
	assert.Equal(t, verdict.StatusFail, g.Status)
}

func TestFairnessWithUnmappedGroupFailsClosed(t *testing.T) {
	in := inputs(balancedDataset(50, 50))
	in.Spec = &scenario.Spec{Constraints: &scenario.Constraints{
		Fairness: &scenario.FairnessConstraint{GroupColumn: "region"},
	}}
	res := newBattery(t, DefaultBatteryConfig()).Run(in)
	g := gate(t, res, GateFairnessGap)
	assert.Equal(t, verdict.StatusFail, g.Status)
	assert.Equal(t, FAIRNESS_MAX_GAP, g.Threshold.Value)
}

func TestThresholdOverrides(t *testing.T) {
	cfg := DefaultBatteryConfig()
	cfg.Thresholds = map[string]verdict.Threshold{GateESS: verdict.MustThreshold("≥30")}
	res := newBattery(t, cfg).Run(inputs(balancedDataset(40, 40)))
	assert.Equal(t, verdict.StatusPass, gate(t, res, GateESS).Status)

	cfg.Thresholds = map[string]verdict.Threshold{"Vibes": verdict.MustThreshold(">0")}
	_, err := NewBattery(cfg, nil)
	assert.Error(t, err)
}

func TestHistogramIntersection(t *testing.T) {
	same := HistogramIntersection([]float64{0.1, 0.5, 0.1, 0.5}, []int{1, 1, 0, 0}, 10)
	assert.InDelta(t, 1.0, same, 1e-12)

	disjoint := HistogramIntersection([]float64{0.05, 0.95}, []int{1, 0}, 10)
	assert.Equal(t, 0.0, disjoint)

	assert.Equal(t, 0.0, HistogramIntersection([]float64{0.5}, []int{1}, 10))
	// 1.0 lands in the last bin
	assert.InDelta(t, 1.0, HistogramIntersection([]float64{1, 0.99}, []int{1, 0}, 20), 1e-12)
}

func TestStandardizedMeanDifference(t *testing.T) {
	smd, ok := StandardizedMeanDifference([]float64{1, 3, 0, 2}, []int{1, 1, 0, 0})
	require.True(t, ok)
	assert.InDelta(t, 1/math.Sqrt(2), smd, 1e-12)

	_, ok = StandardizedMeanDifference([]float64{1, 2}, []int{1, 0})
	assert.False(t, ok)
}

func TestTreatedShareGapAndBudgetUtilization(t *testing.T) {
	assert.InDelta(t, 0.5, TreatedShareGap([]string{"a", "a", "b", "b"}, []int{1, 1, 1, 0}), 1e-12)
	assert.Equal(t, 0.0, TreatedShareGap(nil, nil))
	assert.InDelta(t, 0.5, BudgetUtilization([]float64{2, 3, 5}, []int{1, 1, 0}, 10), 1e-12)
}

func TestGateCatalogLookups(t *testing.T) {
	cat, ok := GetGateCategory(GatePlacebo)
	assert.True(t, ok)
	assert.Equal(t, verdict.CategoryRobustness, cat)

	th, ok := DefaultThreshold(GateESS)
	assert.True(t, ok)
	assert.Equal(t, verdict.Threshold{Op: verdict.OpGreaterEqual, Value: 1000}, th)

	_, ok = DefaultThreshold("nope")
	assert.False(t, ok)
}
