package gcomp

import (
	"math/rand"
	"sort"
)

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) predict(x []float64) float64 {
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// regressionTree is a CART tree minimising squared error
type regressionTree struct {
	maxDepth        int
	minLeaf         int
	featureFraction float64
	rng             *rand.Rand
	root            *treeNode
}

func (t *regressionTree) fit(X [][]float64, y []float64, rows []int) {
	t.root = t.grow(X, y, rows, 0)
}

func (t *regressionTree) predict(x []float64) float64 {
	if t.root == nil {
		return 0
	}
	return t.root.predict(x)
}

func meanOf(y []float64, rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	var s float64
	for _, i := range rows {
		s += y[i]
	}
	return s / float64(len(rows))
}

func (t *regressionTree) grow(X [][]float64, y []float64, rows []int, depth int) *treeNode {
	node := &treeNode{leaf: true, value: meanOf(y, rows)}
	if depth >= t.maxDepth || len(rows) < 2*t.minLeaf {
		return node
	}

	feature, threshold, ok := t.bestSplit(X, y, rows)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range rows {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	node.leaf = false
	node.feature = feature
	node.threshold = threshold
	node.left = t.grow(X, y, left, depth+1)
	node.right = t.grow(X, y, right, depth+1)
	return node
}

// candidateFeatures returns the sampled features for one node followed by
// the features left out of the sample.
func (t *regressionTree) candidateFeatures(width int) (picked, rest []int) {
	all := make([]int, width)
	for j := range all {
		all[j] = j
	}
	if t.featureFraction >= 1 || t.rng == nil {
		return all, nil
	}
	k := int(float64(width)*t.featureFraction + 0.5)
	if k < 1 {
		k = 1
	}
	if k > width {
		k = width
	}
	t.rng.Shuffle(width, func(a, b int) { all[a], all[b] = all[b], all[a] })
	picked, rest = all[:k], all[k:]
	sort.Ints(picked)
	sort.Ints(rest)
	return picked, rest
}

type split struct {
	gain      float64
	feature   int
	threshold float64
	found     bool
}

// bestSplit returns the split with the largest reduction in squared error
// among the sampled features. When none of them can split the node the
// remaining features are tried before giving up.
func (t *regressionTree) bestSplit(X [][]float64, y []float64, rows []int) (int, float64, bool) {
	var total float64
	for _, i := range rows {
		total += y[i]
	}

	picked, rest := t.candidateFeatures(len(X[rows[0]]))
	best := split{gain: 1e-12}
	sorted := make([]int, len(rows))
	for _, j := range picked {
		t.scanFeature(X, y, rows, sorted, j, total, &best)
	}
	for _, j := range rest {
		if best.found {
			break
		}
		t.scanFeature(X, y, rows, sorted, j, total, &best)
	}
	return best.feature, best.threshold, best.found
}

// scanFeature walks rows sorted by feature j with running sums
func (t *regressionTree) scanFeature(X [][]float64, y []float64, rows, sorted []int, j int, total float64, best *split) {
	n := len(rows)
	copy(sorted, rows)
	sort.SliceStable(sorted, func(a, b int) bool { return X[sorted[a]][j] < X[sorted[b]][j] })

	var leftSum float64
	for k := 0; k < n-1; k++ {
		leftSum += y[sorted[k]]
		nl := k + 1
		nr := n - nl
		if nl < t.minLeaf || nr < t.minLeaf {
			continue
		}
		cur, next := X[sorted[k]][j], X[sorted[k+1]][j]
		if cur == next {
			continue
		}
		rightSum := total - leftSum
		// SSE reduction up to a constant
		gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - total*total/float64(n)
		if gain > best.gain {
			*best = split{gain: gain, feature: j, threshold: (cur + next) / 2, found: true}
		}
	}
}
