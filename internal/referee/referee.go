package referee

import (
	"fmt"
	"math"
	"sort"

	"counterfact/domain/dataset"
	"counterfact/domain/evaluation"
	"counterfact/domain/scenario"
	"counterfact/domain/verdict"
	"counterfact/internal"
)

// Gate names, in battery order
const (
	GateESS                = "ESS"
	GateOverlap            = "Overlap"
	GateBalance            = "Balance"
	GateWeakInstrument     = "Weak_Instrument"
	GateMonotonicity       = "Monotonicity"
	GateCIPrecision        = "CI_Precision"
	GateSensitivity        = "Sensitivity"
	GatePlacebo            = "Placebo"
	GateEstimatorAgreement = "Estimator_Agreement"
	GateDeltaProfit        = "Delta_Profit"
	GateFairnessGap        = "Fairness_Gap"
	GateBudgetUtilization  = "Budget_Utilization"
)

// HardFailGates block the dataset itself when they fail
var HardFailGates = []string{GateESS, GateOverlap, GateBalance}

// Inputs is everything the battery reads for one scenario evaluation
type Inputs struct {
	Dataset    *dataset.Dataset
	Spec       *scenario.Spec
	Assignment []int

	// Primary OPE method results
	Baseline evaluation.Result
	Scenario evaluation.Result

	// Optional g-computation results for the agreement gate
	GCompBaseline *evaluation.Result
	GCompScenario *evaluation.Result
}

// measurement is what a gate function reports before status assignment
type measurement struct {
	baseline   float64
	scenario   float64
	applicable bool
	degenerate bool
	reason     string
}

func measured(baseline, scenario float64) measurement {
	return measurement{baseline: baseline, scenario: scenario, applicable: true}
}

func notApplicable(reason string) measurement {
	return measurement{reason: reason}
}

func failClosed(reason string) measurement {
	return measurement{applicable: true, degenerate: true, reason: reason}
}

type gateFunc func(b *Battery, in *Inputs) measurement

// gateSpec is one row of the fixed gate table
type gateSpec struct {
	name      string
	category  verdict.Category
	threshold string
	warnOnly  bool
	eval      gateFunc
}

// catalog is the fixed gate table. Order is the report order.
var catalog = []gateSpec{
	{GateESS, verdict.CategoryIdentification, ESS_MIN_ARM, false, (*Battery).essGate},
	{GateOverlap, verdict.CategoryIdentification, OVERLAP_MIN_INTERSECTION, false, (*Battery).overlapGate},
	{GateBalance, verdict.CategoryIdentification, BALANCE_MAX_SMD, false, (*Battery).balanceGate},
	{GateWeakInstrument, verdict.CategoryIdentification, WEAK_INSTRUMENT_MIN_F, false, (*Battery).weakInstrumentGate},
	{GateMonotonicity, verdict.CategoryIdentification, MONOTONICITY_MIN_CORR, false, (*Battery).monotonicityGate},
	{GateCIPrecision, verdict.CategoryPrecision, CI_PRECISION_MAX_RATIO, false, (*Battery).ciPrecisionGate},
	{GateSensitivity, verdict.CategoryRobustness, SENSITIVITY_MIN_Z, false, (*Battery).sensitivityGate},
	{GatePlacebo, verdict.CategoryRobustness, PLACEBO_MAX_GAP, false, (*Battery).placeboGate},
	{GateEstimatorAgreement, verdict.CategoryRobustness, AGREEMENT_MAX_REL_DIFF, true, (*Battery).agreementGate},
	{GateDeltaProfit, verdict.CategoryDecision, DELTA_PROFIT_MIN, false, (*Battery).deltaProfitGate},
	{GateFairnessGap, verdict.CategoryDecision, fmt.Sprintf("≤%g", FAIRNESS_MAX_GAP), false, (*Battery).fairnessGate},
	{GateBudgetUtilization, verdict.CategoryDecision, BUDGET_MAX_UTILIZATION, false, (*Battery).budgetGate},
}

// GateNames lists the catalog in report order
func GateNames() []string {
	names := make([]string, len(catalog))
	for i, g := range catalog {
		names[i] = g.name
	}
	return names
}

// GetGateCategory returns the category of a named gate
func GetGateCategory(name string) (verdict.Category, bool) {
	for _, g := range catalog {
		if g.name == name {
			return g.category, true
		}
	}
	return "", false
}

// DefaultThreshold returns the built-in threshold of a named gate
func DefaultThreshold(name string) (verdict.Threshold, bool) {
	for _, g := range catalog {
		if g.name == name {
			return verdict.MustThreshold(g.threshold), true
		}
	}
	return verdict.Threshold{}, false
}

// BatteryConfig tunes the battery
type BatteryConfig struct {
	// Thresholds overrides default thresholds by gate name
	Thresholds map[string]verdict.Threshold
	// AutoPassMissing marks gates with unmet prerequisites PASS instead of NA
	AutoPassMissing bool
	OverlapBins     int
	PlaceboMinRows  int
}

// DefaultBatteryConfig returns the built-in configuration
func DefaultBatteryConfig() BatteryConfig {
	return BatteryConfig{
		OverlapBins:    OVERLAP_BINS,
		PlaceboMinRows: PLACEBO_MIN_ROWS,
	}
}

// Battery runs the fixed gate table. It holds no per-run state.
type Battery struct {
	cfg BatteryConfig
	log *internal.Logger
}

// NewBattery validates threshold overrides and builds a battery
func NewBattery(cfg BatteryConfig, logger *internal.Logger) (*Battery, error) {
	for name := range cfg.Thresholds {
		if _, ok := GetGateCategory(name); !ok {
			return nil, fmt.Errorf("threshold override for unknown gate %q", name)
		}
	}
	if cfg.OverlapBins <= 0 {
		cfg.OverlapBins = OVERLAP_BINS
	}
	if cfg.PlaceboMinRows <= 0 {
		cfg.PlaceboMinRows = PLACEBO_MIN_ROWS
	}
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Battery{cfg: cfg, log: logger.With("referee")}, nil
}

func (b *Battery) threshold(g gateSpec, in *Inputs) verdict.Threshold {
	if t, ok := b.cfg.Thresholds[g.name]; ok {
		return t
	}
	if g.name == GateFairnessGap && in.Spec != nil {
		if gap, ok := in.Spec.Fairness().Gap(); ok {
			return verdict.Threshold{Op: verdict.OpLessEqual, Value: gap}
		}
	}
	return verdict.MustThreshold(g.threshold)
}

// Run evaluates every gate and fills counts, pass rate and data quality. The
// decision fields are left for the decision engine.
func (b *Battery) Run(in Inputs) verdict.QualityGatesResult {
	res := verdict.QualityGatesResult{
		Gates:       make([]verdict.Gate, 0, len(catalog)),
		DataQuality: verdict.DataQualityOK,
	}

	for _, g := range catalog {
		gate := b.evaluate(g, &in)
		res.Gates = append(res.Gates, gate)
		b.log.Debug("gate %s: %s (scenario=%.4g threshold=%s)", gate.Name, gate.Status, gate.Scenario, gate.Threshold)
	}

	for _, name := range HardFailGates {
		if g, ok := res.Gate(name); ok && g.Status == verdict.StatusFail {
			res.BlockingGates = append(res.BlockingGates, name)
		}
	}
	if len(res.BlockingGates) > 0 {
		res.DataQuality = verdict.DataQualityBlocked
		b.log.Warn("data quality blocked by %v", res.BlockingGates)
	}

	res.Tally()
	return res
}

func (b *Battery) evaluate(g gateSpec, in *Inputs) verdict.Gate {
	th := b.threshold(g, in)
	m := g.eval(b, in)
	gate := verdict.Gate{
		Name:      g.name,
		Category:  g.category,
		Threshold: th,
		Baseline:  finite(m.baseline),
		Scenario:  finite(m.scenario),
		Reason:    m.reason,
	}

	switch {
	case !m.applicable:
		gate.Status = verdict.StatusNA
		if b.cfg.AutoPassMissing {
			gate.Status = verdict.StatusPass
		}
	case m.degenerate:
		gate.Status = verdict.StatusFail
	case th.Satisfied(m.scenario):
		gate.Status = verdict.StatusPass
	default:
		gate.Status = verdict.StatusFail
		if gate.Reason == "" {
			gate.Reason = fmt.Sprintf("%s = %.4g does not satisfy %s", g.name, m.scenario, th)
		}
	}

	if g.warnOnly && gate.Status == verdict.StatusFail {
		gate.Status = verdict.StatusWarning
	}
	return gate
}

// finite keeps gate values JSON-encodable
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return statisticCap
	case math.IsInf(v, -1):
		return -statisticCap
	}
	return v
}

// safeRatio divides, capping the result when the denominator vanishes
func safeRatio(num, denom float64) float64 {
	if math.Abs(denom) < 1e-12 {
		if math.Abs(num) < 1e-12 {
			return 0
		}
		return math.Copysign(statisticCap, num)
	}
	return math.Min(num/denom, statisticCap)
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
