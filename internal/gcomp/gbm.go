package gcomp

// GradientBoosting fits shallow trees to squared-loss residuals
type GradientBoosting struct {
	opts  ModelOptions
	base  float64
	trees []*regressionTree
}

// Fit runs opts.Trees boosting rounds
func (g *GradientBoosting) Fit(X [][]float64, y []float64) error {
	if err := checkTraining(X, y); err != nil {
		return err
	}
	n := len(X)
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	g.base = meanOf(y, rows)

	current := make([]float64, n)
	for i := range current {
		current[i] = g.base
	}
	residual := make([]float64, n)

	g.trees = make([]*regressionTree, 0, g.opts.Trees)
	for round := 0; round < g.opts.Trees; round++ {
		for i := range residual {
			residual[i] = y[i] - current[i]
		}
		tree := &regressionTree{
			maxDepth:        g.opts.MaxDepth,
			minLeaf:         g.opts.MinLeaf,
			featureFraction: 1,
		}
		tree.fit(X, residual, rows)
		if tree.root.leaf && tree.root.value == 0 {
			break
		}
		for i := range current {
			current[i] += g.opts.LearningRate * tree.predict(X[i])
		}
		g.trees = append(g.trees, tree)
	}
	return nil
}

// Predict sums the shrunken tree outputs on top of the base rate
func (g *GradientBoosting) Predict(x []float64) float64 {
	out := g.base
	for _, t := range g.trees {
		out += g.opts.LearningRate * t.predict(x)
	}
	return out
}
