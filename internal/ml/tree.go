package ml

import (
	"math"
	"math/rand"
	"sort"
)

// treeNode is one node of a regression tree. Leaf nodes have Left == -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Gain      float64 `json:"g"`
}

// regressionTree is a single CART tree fit to first and second order
// gradients, XGBoost style.
type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeParams struct {
	maxDepth       int
	minChildWeight float64
	lambda         float64
	gamma          float64
	colsample      float64
}

// fitTree grows a tree greedily on the given row subset. grad and hess are
// indexed by the original row order of X.
func fitTree(X [][]float64, grad, hess []float64, rows []int, p treeParams, rng *rand.Rand) regressionTree {
	tree := regressionTree{}
	tree.grow(X, grad, hess, rows, 0, p, rng)
	return tree
}

func (t *regressionTree) grow(X [][]float64, grad, hess []float64, rows []int, depth int, p treeParams, rng *rand.Rand) int {
	var sumG, sumH float64
	for _, r := range rows {
		sumG += grad[r]
		sumH += hess[r]
	}

	nodeIdx := len(t.Nodes)
	leafValue := -sumG / (sumH + p.lambda)
	t.Nodes = append(t.Nodes, treeNode{Feature: -1, Left: -1, Right: -1, Value: leafValue})

	if depth >= p.maxDepth || len(rows) < 2 {
		return nodeIdx
	}

	feature, threshold, gain := t.bestSplit(X, grad, hess, rows, sumG, sumH, p, rng)
	if feature < 0 || gain <= 0 {
		return nodeIdx
	}

	var left, right []int
	for _, r := range rows {
		if X[r][feature] < threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return nodeIdx
	}

	leftIdx := t.grow(X, grad, hess, left, depth+1, p, rng)
	rightIdx := t.grow(X, grad, hess, right, depth+1, p, rng)

	t.Nodes[nodeIdx].Feature = feature
	t.Nodes[nodeIdx].Threshold = threshold
	t.Nodes[nodeIdx].Left = leftIdx
	t.Nodes[nodeIdx].Right = rightIdx
	t.Nodes[nodeIdx].Gain = gain
	return nodeIdx
}

func (t *regressionTree) bestSplit(X [][]float64, grad, hess []float64, rows []int, sumG, sumH float64, p treeParams, rng *rand.Rand) (int, float64, float64) {
	numFeatures := len(X[rows[0]])
	features := make([]int, numFeatures)
	for i := range features {
		features[i] = i
	}
	if p.colsample < 1.0 {
		rng.Shuffle(numFeatures, func(i, j int) {
			features[i], features[j] = features[j], features[i]
		})
		keep := int(math.Ceil(p.colsample * float64(numFeatures)))
		if keep < 1 {
			keep = 1
		}
		features = features[:keep]
	}

	parentScore := sumG * sumG / (sumH + p.lambda)
	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0

	sorted := make([]int, len(rows))
	for _, f := range features {
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool {
			return X[sorted[i]][f] < X[sorted[j]][f]
		})

		var leftG, leftH float64
		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			leftG += grad[r]
			leftH += hess[r]

			// No valid threshold between equal values.
			if X[sorted[i]][f] == X[sorted[i+1]][f] {
				continue
			}

			rightG := sumG - leftG
			rightH := sumH - leftH
			if leftH < p.minChildWeight || rightH < p.minChildWeight {
				continue
			}

			gain := 0.5*(leftG*leftG/(leftH+p.lambda)+rightG*rightG/(rightH+p.lambda)-parentScore) - p.gamma
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (X[sorted[i]][f] + X[sorted[i+1]][f]) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

// predict walks a single sample down to a leaf.
func (t *regressionTree) predict(x []float64) float64 {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Left < 0 {
			return node.Value
		}
		if x[node.Feature] < node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// featureGains accumulates split gains per feature index.
func (t *regressionTree) featureGains(acc []float64) {
	for _, node := range t.Nodes {
		if node.Left >= 0 && node.Feature >= 0 && node.Feature < len(acc) {
			acc[node.Feature] += node.Gain
		}
	}
}
