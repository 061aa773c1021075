package gcomp

import (
	"fmt"
	"strings"
)

// Family names an outcome model family
type Family string

const (
	FamilyLinear Family = "linear"
	FamilyForest Family = "rf"
	FamilyGBM    Family = "gbm"
)

// ParseFamily resolves a model family name, case-insensitively
func ParseFamily(s string) (Family, error) {
	switch f := Family(strings.ToLower(strings.TrimSpace(s))); f {
	case FamilyLinear, FamilyForest, FamilyGBM:
		return f, nil
	default:
		return "", fmt.Errorf("unknown outcome model %q (want linear, rf or gbm)", s)
	}
}

// OutcomeModel is a regression model over numeric features. Column 0 of every
// feature row is the treatment indicator.
type OutcomeModel interface {
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) float64
}

// ModelOptions tunes the model families. Zero values fall back to defaults.
type ModelOptions struct {
	Trees           int
	MaxDepth        int
	MinLeaf         int
	FeatureFraction float64
	LearningRate    float64
	Ridge           float64
	// TreatmentInteractions adds treatment x covariate terms to the linear model
	TreatmentInteractions bool
	Seed                  int64
}

// DefaultModelOptions returns the settings used when nothing is configured
func DefaultModelOptions() ModelOptions {
	return ModelOptions{
		Trees:                 50,
		MaxDepth:              6,
		MinLeaf:               5,
		FeatureFraction:       0.7,
		LearningRate:          0.1,
		Ridge:                 1e-3,
		TreatmentInteractions: true,
		Seed:                  42,
	}
}

func (o ModelOptions) withDefaults() ModelOptions {
	d := DefaultModelOptions()
	if o.Trees <= 0 {
		o.Trees = d.Trees
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MinLeaf <= 0 {
		o.MinLeaf = d.MinLeaf
	}
	if o.FeatureFraction <= 0 || o.FeatureFraction > 1 {
		o.FeatureFraction = d.FeatureFraction
	}
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	if o.Ridge <= 0 {
		o.Ridge = d.Ridge
	}
	return o
}

// NewModel is the single dispatch point from family to model
func NewModel(f Family, opts ModelOptions) (OutcomeModel, error) {
	opts = opts.withDefaults()
	switch f {
	case FamilyLinear:
		return &LinearModel{ridge: opts.Ridge, interactions: opts.TreatmentInteractions}, nil
	case FamilyForest:
		return &RandomForest{opts: opts}, nil
	case FamilyGBM:
		// boosting uses shallow trees
		depth := opts.MaxDepth
		if depth > 3 {
			depth = 3
		}
		opts.MaxDepth = depth
		return &GradientBoosting{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown outcome model %q", f)
	}
}

func checkTraining(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("no training rows")
	}
	if len(X) != len(y) {
		return fmt.Errorf("feature rows and targets differ in length: %d vs %d", len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
	}
	return nil
}
