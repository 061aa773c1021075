package ope

import (
	"fmt"

	"counterfact/domain/core"
	"counterfact/domain/dataset"
	"counterfact/domain/evaluation"
	"counterfact/internal"
	"counterfact/internal/policy"

	"gonum.org/v1/gonum/stat/distuv"
)

// Options configures an Evaluator
type Options struct {
	// Alpha is the two-sided significance level of the reported interval
	Alpha float64
	// OnDegenerate is called with the estimator name whenever a degenerate
	// sentinel result is produced
	OnDegenerate func(estimator string)
	Logger       *internal.Logger
}

// DefaultOptions returns a 95% interval with logging disabled
func DefaultOptions() Options {
	return Options{Alpha: 0.05}
}

// Evaluator scores new treatment-assignment vectors against a logged dataset.
// It never mutates the dataset and is safe for concurrent use.
type Evaluator struct {
	ds         *dataset.Dataset
	logged     []int
	propensity []float64
	profit     []float64
	z          float64
	opts       Options
	log        *internal.Logger
}

// NewEvaluator precomputes propensity and profit for ds
func NewEvaluator(ds *dataset.Dataset, valuePerY float64, opts Options) (*Evaluator, error) {
	if ds == nil {
		return nil, core.NewDataContractError(dataset.RoleTreatment, "dataset is required")
	}
	if opts.Alpha <= 0 || opts.Alpha >= 1 {
		return nil, fmt.Errorf("alpha must lie in (0,1), got %g", opts.Alpha)
	}
	logger := opts.Logger
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Evaluator{
		ds:         ds,
		logged:     ds.Treatments(),
		propensity: ds.Propensities(),
		profit:     ds.Profit(valuePerY),
		z:          distuv.UnitNormal.Quantile(1 - opts.Alpha/2),
		opts:       opts,
		log:        logger.With("ope"),
	}, nil
}

// Z returns the normal quantile used for interval half-widths
func (e *Evaluator) Z() float64 {
	return e.z
}

// Evaluate estimates the value of newPolicy with the given method
func (e *Evaluator) Evaluate(newPolicy []int, m Method) (evaluation.Result, error) {
	est, err := ForMethod(m)
	if err != nil {
		return evaluation.Result{}, err
	}
	if err := e.checkAssignment(newPolicy); err != nil {
		return evaluation.Result{}, err
	}

	weights := ImportanceWeights(e.logged, newPolicy, e.propensity)
	raw := est.Estimate(Inputs{
		Logged:     e.logged,
		NewPolicy:  newPolicy,
		Propensity: e.propensity,
		Profit:     e.profit,
		Weights:    weights,
	})

	name := string(est.Method())
	if raw.Degenerate {
		e.log.Warn("%s estimate is degenerate (n=%d, weight sum is zero or an arm is empty)", name, len(newPolicy))
		if e.opts.OnDegenerate != nil {
			e.opts.OnDegenerate(name)
		}
		return evaluation.Degenerated(name, len(newPolicy), evaluation.DiagnosticESS), nil
	}

	ess := EffectiveSampleSize(weights)
	e.log.Trace("%s value=%.4f se=%.4f ess=%.1f", name, raw.Value, raw.StdErr, ess)
	return evaluation.Result{
		Estimator:      name,
		Value:          raw.Value,
		StdErr:         raw.StdErr,
		CILower:        raw.Value - e.z*raw.StdErr,
		CIUpper:        raw.Value + e.z*raw.StdErr,
		N:              len(newPolicy),
		DiagnosticName: evaluation.DiagnosticESS,
		Diagnostic:     ess,
	}, nil
}

// EvaluateBaseline evaluates the logged treatment vector as the new policy
func (e *Evaluator) EvaluateBaseline(m Method) (evaluation.Result, error) {
	return e.Evaluate(e.logged, m)
}

// EvaluateCoverage treats the top coverage fraction of units ranked by
// scoreColumn, highest first, ties in row order.
func (e *Evaluator) EvaluateCoverage(coverage float64, scoreColumn string, m Method) (evaluation.Result, error) {
	if coverage < 0 || coverage > 1 {
		return evaluation.Result{}, fmt.Errorf("%w: coverage must lie in [0,1], got %g", core.ErrSpecValidation, coverage)
	}
	scores, err := e.ds.NumericColumn(scoreColumn)
	if err != nil {
		return evaluation.Result{}, err
	}
	return e.Evaluate(policy.TopCoverage(scores, coverage), m)
}

// EvaluateAll runs every method on the same assignment
func (e *Evaluator) EvaluateAll(newPolicy []int) (map[Method]evaluation.Result, error) {
	out := make(map[Method]evaluation.Result, len(Methods))
	for _, m := range Methods {
		r, err := e.Evaluate(newPolicy, m)
		if err != nil {
			return nil, err
		}
		out[m] = r
	}
	return out, nil
}

func (e *Evaluator) checkAssignment(newPolicy []int) error {
	if len(newPolicy) != len(e.logged) {
		return core.NewDataContractError("assignment", fmt.Sprintf("assignment has %d entries, dataset has %d rows", len(newPolicy), len(e.logged)))
	}
	for i, a := range newPolicy {
		if a != 0 && a != 1 {
			return core.NewRowContractError(i, "assignment", fmt.Sprintf("assignment must be 0 or 1, got %d", a))
		}
	}
	return nil
}
