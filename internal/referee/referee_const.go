package referee

// referee_const.go
//
// Default thresholds for the quality gate battery. Every value can be
// overridden per run through BatteryConfig.Thresholds.

// ============================================================================
// 1. IDENTIFICATION - Is the logged dataset able to answer the question?
// ============================================================================

const (
	// ESS_MIN_ARM: Minimum rows in the smaller logged arm.
	ESS_MIN_ARM = "≥1000"

	// OVERLAP_MIN_INTERSECTION: Minimum histogram intersection of P(T=1)
	// between treated and control rows.
	OVERLAP_MIN_INTERSECTION = "≥0.15"

	// OVERLAP_BINS: Histogram bins on [0,1] for the overlap gate.
	OVERLAP_BINS = 20

	// BALANCE_MAX_SMD: Maximum mean absolute standardized mean difference of
	// covariates between arms.
	BALANCE_MAX_SMD = "≤0.1"

	// WEAK_INSTRUMENT_MIN_F: Minimum first-stage F-statistic.
	WEAK_INSTRUMENT_MIN_F = "≥10"

	// MONOTONICITY_MIN_CORR: Minimum correlation between instrument and treatment.
	MONOTONICITY_MIN_CORR = "≥-0.05"
)

// ============================================================================
// 2. PRECISION - Is the scenario estimate tight enough to act on?
// ============================================================================

const (
	// CI_PRECISION_MAX_RATIO: Maximum CI half-width relative to |value|.
	CI_PRECISION_MAX_RATIO = "≤0.5"
)

// ============================================================================
// 3. ROBUSTNESS - Does the effect survive simple stress tests?
// ============================================================================

const (
	// SENSITIVITY_MIN_Z: Minimum |V_s - V_b| / pooled standard error.
	SENSITIVITY_MIN_Z = "≥1.5"

	// PLACEBO_MAX_GAP: Maximum pre-period arm gap in post-period outcome SDs.
	PLACEBO_MAX_GAP = "≤0.25"

	// PLACEBO_MIN_ROWS: Minimum pre-period rows per arm before the placebo
	// gate applies.
	PLACEBO_MIN_ROWS = 50

	// AGREEMENT_MAX_REL_DIFF: Maximum relative difference between the OPE and
	// g-computation scenario estimates. Breaches warn, never fail.
	AGREEMENT_MAX_REL_DIFF = "≤0.2"
)

// ============================================================================
// 4. DECISION - Is the scenario worth doing and within its constraints?
// ============================================================================

const (
	// DELTA_PROFIT_MIN: Scenario value minus baseline value must be positive.
	DELTA_PROFIT_MIN = ">0"

	// FAIRNESS_MAX_GAP: Default maximum treated-share gap across groups when
	// the scenario constraint does not set one.
	FAIRNESS_MAX_GAP = 0.03

	// BUDGET_MAX_UTILIZATION: Maximum treated unit cost over the budget cap.
	BUDGET_MAX_UTILIZATION = "≤1.0"
)

// statisticCap bounds ratios whose denominator vanishes so results stay finite
const statisticCap = 1e6
