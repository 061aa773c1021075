package gcomp

import (
	"math/rand"
)

// RandomForest averages CART trees grown on bootstrap samples with per-split
// feature subsampling. Fits are deterministic for a fixed seed.
type RandomForest struct {
	opts  ModelOptions
	trees []*regressionTree
}

// Fit grows opts.Trees trees
func (f *RandomForest) Fit(X [][]float64, y []float64) error {
	if err := checkTraining(X, y); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(f.opts.Seed))
	n := len(X)
	f.trees = make([]*regressionTree, f.opts.Trees)
	for k := range f.trees {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = rng.Intn(n)
		}
		tree := &regressionTree{
			maxDepth:        f.opts.MaxDepth,
			minLeaf:         f.opts.MinLeaf,
			featureFraction: f.opts.FeatureFraction,
			rng:             rand.New(rand.NewSource(rng.Int63())),
		}
		tree.fit(X, y, rows)
		f.trees[k] = tree
	}
	return nil
}

// Predict averages the trees
func (f *RandomForest) Predict(x []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	var s float64
	for _, t := range f.trees {
		s += t.predict(x)
	}
	return s / float64(len(f.trees))
}
