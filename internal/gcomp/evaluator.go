package gcomp

import (
	"context"
	"fmt"
	"sync"

	"counterfact/domain/core"
	"counterfact/domain/dataset"
	"counterfact/domain/evaluation"
	"counterfact/internal"
	"counterfact/internal/policy"

	"github.com/montanaflynn/stats"
)

// Options configures an Evaluator
type Options struct {
	Family    Family
	Model     ModelOptions
	Bootstrap int
	Alpha     float64
	Seed      int64
	CVFolds   int
	// Workers bounds bootstrap parallelism, GOMAXPROCS when zero
	Workers      int
	OnDegenerate func(estimator string)
	Logger       *internal.Logger
}

// DefaultOptions returns a linear model with 100 bootstrap resamples and
// 5-fold cross-validation.
func DefaultOptions() Options {
	return Options{
		Family:    FamilyLinear,
		Model:     DefaultModelOptions(),
		Bootstrap: 100,
		Alpha:     0.05,
		Seed:      42,
		CVFolds:   5,
	}
}

// Evaluator predicts per-unit profit under each treatment from one outcome
// model fitted on the logged data. The model is fitted once, on first use.
type Evaluator struct {
	ds     *dataset.Dataset
	profit []float64
	opts   Options
	log    *internal.Logger

	once   sync.Once
	fitErr error
	model  OutcomeModel
	mu0    []float64
	mu1    []float64
	r2     float64
}

// NewEvaluator validates opts and prepares an evaluator over ds
func NewEvaluator(ds *dataset.Dataset, valuePerY float64, opts Options) (*Evaluator, error) {
	if ds == nil {
		return nil, core.NewDataContractError(dataset.RoleTreatment, "dataset is required")
	}
	if _, err := ParseFamily(string(opts.Family)); err != nil {
		return nil, err
	}
	if opts.Alpha <= 0 || opts.Alpha >= 1 {
		return nil, fmt.Errorf("alpha must lie in (0,1), got %g", opts.Alpha)
	}
	if opts.Bootstrap < 2 {
		return nil, fmt.Errorf("bootstrap count must be at least 2, got %d", opts.Bootstrap)
	}
	if opts.CVFolds < 2 {
		opts.CVFolds = 2
	}
	opts.Model.Seed = opts.Seed
	logger := opts.Logger
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Evaluator{
		ds:     ds,
		profit: ds.Profit(valuePerY),
		opts:   opts,
		log:    logger.With("gcomp"),
	}, nil
}

// EstimatorName is the name reported on results
func (e *Evaluator) EstimatorName() string {
	return "gcomp_" + string(e.opts.Family)
}

// features lays out [treatment, covariates...] for row i under treatment a
func (e *Evaluator) features(i, a int) []float64 {
	cov := e.ds.Records[i].Covariates
	x := make([]float64, 1+len(cov))
	x[0] = float64(a)
	copy(x[1:], cov)
	return x
}

func (e *Evaluator) design() [][]float64 {
	X := make([][]float64, e.ds.Len())
	for i, r := range e.ds.Records {
		X[i] = e.features(i, r.Treatment)
	}
	return X
}

func (e *Evaluator) fit() error {
	e.once.Do(func() {
		if e.ds.Len() == 0 {
			e.fitErr = fmt.Errorf("%w: no records to fit", core.ErrInsufficientData)
			return
		}
		model, err := NewModel(e.opts.Family, e.opts.Model)
		if err != nil {
			e.fitErr = err
			return
		}
		X := e.design()
		if err := model.Fit(X, e.profit); err != nil {
			e.fitErr = fmt.Errorf("%w: %v", core.ErrEstimation, err)
			return
		}
		e.model = model

		n := e.ds.Len()
		e.mu0 = make([]float64, n)
		e.mu1 = make([]float64, n)
		for i := 0; i < n; i++ {
			e.mu0[i] = model.Predict(e.features(i, 0))
			e.mu1[i] = model.Predict(e.features(i, 1))
		}
		e.r2 = e.crossValidatedR2(X)
		e.log.Debug("fitted %s model on %d rows (cv r2=%.3f)", e.opts.Family, n, e.r2)
	})
	return e.fitErr
}

// crossValidatedR2 scores out-of-fold predictions with fold = row % K. It
// returns 0 when there are too few rows for K folds.
func (e *Evaluator) crossValidatedR2(X [][]float64) float64 {
	n := len(X)
	k := e.opts.CVFolds
	if n < 2*k {
		e.log.Debug("skipping cross-validation: %d rows for %d folds", n, k)
		return 0
	}
	oof := make([]float64, n)
	for fold := 0; fold < k; fold++ {
		var trainX [][]float64
		var trainY []float64
		for i := 0; i < n; i++ {
			if i%k != fold {
				trainX = append(trainX, X[i])
				trainY = append(trainY, e.profit[i])
			}
		}
		m, err := NewModel(e.opts.Family, e.opts.Model)
		if err != nil {
			return 0
		}
		if err := m.Fit(trainX, trainY); err != nil {
			e.log.Warn("cross-validation fold %d failed: %v", fold, err)
			return 0
		}
		for i := fold; i < n; i += k {
			oof[i] = m.Predict(X[i])
		}
	}
	return RSquared(e.profit, oof)
}

// RSquared is 1 - SSres/SStot, 0 when the target is constant
func RSquared(y, pred []float64) float64 {
	mean, err := stats.Mean(y)
	if err != nil {
		return 0
	}
	var ssRes, ssTot float64
	for i := range y {
		ssRes += (y[i] - pred[i]) * (y[i] - pred[i])
		ssTot += (y[i] - mean) * (y[i] - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// R2 returns the cross-validated R² of the fitted model
func (e *Evaluator) R2() (float64, error) {
	if err := e.fit(); err != nil {
		return 0, err
	}
	return e.r2, nil
}

// ITE returns the predicted per-unit effect μ̂(1) - μ̂(0)
func (e *Evaluator) ITE() ([]float64, error) {
	if err := e.fit(); err != nil {
		return nil, err
	}
	ite := make([]float64, len(e.mu0))
	for i := range ite {
		ite[i] = e.mu1[i] - e.mu0[i]
	}
	return ite, nil
}

// EvaluateAssignment predicts each unit under its own assignment and
// bootstraps the mean.
func (e *Evaluator) EvaluateAssignment(ctx context.Context, assign []int) (evaluation.Result, error) {
	if len(assign) != e.ds.Len() {
		return evaluation.Result{}, core.NewDataContractError("assignment", fmt.Sprintf("assignment has %d entries, dataset has %d rows", len(assign), e.ds.Len()))
	}
	if e.ds.Len() == 0 {
		return e.degenerate(), nil
	}
	if err := e.fit(); err != nil {
		return evaluation.Result{}, err
	}

	preds := make([]float64, len(assign))
	for i, a := range assign {
		switch a {
		case 0:
			preds[i] = e.mu0[i]
		case 1:
			preds[i] = e.mu1[i]
		default:
			return evaluation.Result{}, core.NewRowContractError(i, "assignment", fmt.Sprintf("assignment must be 0 or 1, got %d", a))
		}
	}

	value, _ := stats.Mean(preds)
	iv, err := BootstrapMean(ctx, preds, e.opts.Bootstrap, e.opts.Seed, e.opts.Alpha, e.opts.Workers)
	if err != nil {
		return evaluation.Result{}, err
	}
	return evaluation.Result{
		Estimator:      e.EstimatorName(),
		Value:          value,
		StdErr:         iv.StdErr,
		CILower:        iv.Lower,
		CIUpper:        iv.Upper,
		N:              len(preds),
		DiagnosticName: evaluation.DiagnosticR2,
		Diagnostic:     e.r2,
	}, nil
}

// EvaluateBaseline evaluates the logged assignment
func (e *Evaluator) EvaluateBaseline(ctx context.Context) (evaluation.Result, error) {
	return e.EvaluateAssignment(ctx, e.ds.Treatments())
}

// EvaluateCoverage treats the top coverage fraction ranked by predicted effect
func (e *Evaluator) EvaluateCoverage(ctx context.Context, coverage float64) (evaluation.Result, error) {
	if coverage < 0 || coverage > 1 {
		return evaluation.Result{}, fmt.Errorf("%w: coverage must lie in [0,1], got %g", core.ErrSpecValidation, coverage)
	}
	return e.EvaluateTop(ctx, policy.TopCount(e.ds.Len(), coverage), nil)
}

// EvaluateTop treats the k eligible units with the largest predicted effect.
// A nil mask makes every unit eligible.
func (e *Evaluator) EvaluateTop(ctx context.Context, k int, eligible []bool) (evaluation.Result, error) {
	n := e.ds.Len()
	if k < 0 || k > n {
		return evaluation.Result{}, fmt.Errorf("%w: treated count must lie in [0,%d], got %d", core.ErrSpecValidation, n, k)
	}
	if eligible != nil && len(eligible) != n {
		return evaluation.Result{}, fmt.Errorf("%w: eligibility mask has %d entries for %d rows", core.ErrEstimation, len(eligible), n)
	}
	if n == 0 {
		return e.degenerate(), nil
	}
	ite, err := e.ITE()
	if err != nil {
		return evaluation.Result{}, err
	}
	return e.EvaluateAssignment(ctx, policy.TopAmong(ite, k, eligible))
}

func (e *Evaluator) degenerate() evaluation.Result {
	name := e.EstimatorName()
	e.log.Warn("%s estimate is degenerate: dataset is empty", name)
	if e.opts.OnDegenerate != nil {
		e.opts.OnDegenerate(name)
	}
	return evaluation.Degenerated(name, 0, evaluation.DiagnosticR2)
}
