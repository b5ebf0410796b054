package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// Objective names follow the convention of the gradient boosting ecosystem
// so stored hyperparameters read naturally.
const (
	ObjectiveBinary  = "binary:logistic"
	ObjectiveSoftmax = "multi:softmax"
)

// Params are the classifier hyperparameters. SieveSize is not a training
// parameter at all; it rides along so inference can apply the post hoc
// denoise filter the user configured with the model.
type Params struct {
	NumRounds           int     `json:"n_estimators"`
	MaxDepth            int     `json:"max_depth"`
	LearningRate        float64 `json:"learning_rate"`
	Subsample           float64 `json:"subsample"`
	ColsampleByTree     float64 `json:"colsample_bytree"`
	MinChildWeight      float64 `json:"min_child_weight"`
	Lambda              float64 `json:"reg_lambda"`
	Gamma               float64 `json:"gamma"`
	EarlyStoppingRounds int     `json:"early_stopping_rounds"`
	Seed                int64   `json:"random_state"`
	SieveSize           int     `json:"sieve_size"`
}

// DefaultParams mirror the hyperparameters the training UI exposes.
func DefaultParams() Params {
	return Params{
		NumRounds:           100,
		MaxDepth:            6,
		LearningRate:        0.3,
		Subsample:           1.0,
		ColsampleByTree:     1.0,
		MinChildWeight:      1.0,
		Lambda:              1.0,
		Gamma:               0.0,
		EarlyStoppingRounds: 10,
		Seed:                42,
		SieveSize:           0,
	}
}

// Classifier is a gradient boosted tree ensemble over dense 0..k-1 class
// ids. It serializes to plain JSON, no opaque object graphs.
type Classifier struct {
	Version     int                `json:"version"`
	Params      Params             `json:"params"`
	Objective   string             `json:"objective"`
	NumClass    int                `json:"num_class"`
	NumFeatures int                `json:"num_features"`
	BaseScore   float64            `json:"base_score"`
	Rounds      [][]regressionTree `json:"rounds"`
}

const classifierVersion = 1

// Train fits the ensemble. With exactly two classes the model is a single
// logistic score chain; with more it boosts one score chain per class under
// a softmax objective. An optional eval set enables early stopping.
func Train(X [][]float64, y []int, numClass int, evalX [][]float64, evalY []int, p Params) (*Classifier, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("empty training matrix")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("feature/label length mismatch: %d vs %d", len(X), len(y))
	}
	if numClass < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClass)
	}

	c := &Classifier{
		Version:     classifierVersion,
		Params:      p,
		NumClass:    numClass,
		NumFeatures: len(X[0]),
		BaseScore:   0.0,
	}
	if numClass == 2 {
		c.Objective = ObjectiveBinary
	} else {
		c.Objective = ObjectiveSoftmax
	}

	rng := rand.New(rand.NewSource(p.Seed))
	tp := treeParams{
		maxDepth:       p.MaxDepth,
		minChildWeight: p.MinChildWeight,
		lambda:         p.Lambda,
		gamma:          p.Gamma,
		colsample:      p.ColsampleByTree,
	}

	scoreChains := 1
	if c.Objective == ObjectiveSoftmax {
		scoreChains = numClass
	}

	// Raw scores per sample per chain, updated as rounds accumulate.
	scores := make([][]float64, scoreChains)
	for k := range scores {
		scores[k] = make([]float64, len(X))
	}
	var evalScores [][]float64
	if len(evalX) > 0 {
		evalScores = make([][]float64, scoreChains)
		for k := range evalScores {
			evalScores[k] = make([]float64, len(evalX))
		}
	}

	grad := make([]float64, len(X))
	hess := make([]float64, len(X))

	bestLoss := math.Inf(1)
	bestRound := 0
	sinceBest := 0

	for round := 0; round < p.NumRounds; round++ {
		rows := sampleRows(len(X), p.Subsample, rng)
		roundTrees := make([]regressionTree, scoreChains)

		if c.Objective == ObjectiveBinary {
			for i := range X {
				prob := sigmoid(scores[0][i])
				target := 0.0
				if y[i] == 1 {
					target = 1.0
				}
				grad[i] = prob - target
				hess[i] = prob * (1 - prob)
			}
			tree := fitTree(X, grad, hess, rows, tp, rng)
			roundTrees[0] = tree
			for i := range X {
				scores[0][i] += p.LearningRate * tree.predict(X[i])
			}
			if evalScores != nil {
				for i := range evalX {
					evalScores[0][i] += p.LearningRate * tree.predict(evalX[i])
				}
			}
		} else {
			probs := softmaxColumns(scores)
			for k := 0; k < scoreChains; k++ {
				for i := range X {
					target := 0.0
					if y[i] == k {
						target = 1.0
					}
					grad[i] = probs[k][i] - target
					hess[i] = probs[k][i] * (1 - probs[k][i])
				}
				tree := fitTree(X, grad, hess, rows, tp, rng)
				roundTrees[k] = tree
				for i := range X {
					scores[k][i] += p.LearningRate * tree.predict(X[i])
				}
				if evalScores != nil {
					for i := range evalX {
						evalScores[k][i] += p.LearningRate * tree.predict(evalX[i])
					}
				}
			}
		}

		c.Rounds = append(c.Rounds, roundTrees)

		if evalScores != nil && p.EarlyStoppingRounds > 0 {
			loss := c.logLoss(evalScores, evalY)
			if loss < bestLoss-1e-9 {
				bestLoss = loss
				bestRound = round
				sinceBest = 0
			} else {
				sinceBest++
				if sinceBest >= p.EarlyStoppingRounds {
					c.Rounds = c.Rounds[:bestRound+1]
					break
				}
			}
		}
	}
	return c, nil
}

func sampleRows(n int, subsample float64, rng *rand.Rand) []int {
	if subsample >= 1.0 {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	keep := int(math.Ceil(subsample * float64(n)))
	if keep < 1 {
		keep = 1
	}
	perm := rng.Perm(n)
	return perm[:keep]
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// softmaxColumns converts per-chain raw scores into per-chain
// probabilities, sample by sample.
func softmaxColumns(scores [][]float64) [][]float64 {
	k := len(scores)
	n := len(scores[0])
	probs := make([][]float64, k)
	for c := range probs {
		probs[c] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		maxScore := math.Inf(-1)
		for c := 0; c < k; c++ {
			if scores[c][i] > maxScore {
				maxScore = scores[c][i]
			}
		}
		sum := 0.0
		for c := 0; c < k; c++ {
			probs[c][i] = math.Exp(scores[c][i] - maxScore)
			sum += probs[c][i]
		}
		for c := 0; c < k; c++ {
			probs[c][i] /= sum
		}
	}
	return probs
}

func (c *Classifier) logLoss(scores [][]float64, y []int) float64 {
	const eps = 1e-15
	n := len(y)
	loss := 0.0
	if c.Objective == ObjectiveBinary {
		for i := 0; i < n; i++ {
			prob := sigmoid(scores[0][i])
			if y[i] == 1 {
				loss -= math.Log(math.Max(prob, eps))
			} else {
				loss -= math.Log(math.Max(1-prob, eps))
			}
		}
	} else {
		probs := softmaxColumns(scores)
		for i := 0; i < n; i++ {
			loss -= math.Log(math.Max(probs[y[i]][i], eps))
		}
	}
	return loss / float64(n)
}

// rawScores accumulates the ensemble output for one sample.
func (c *Classifier) rawScores(x []float64) []float64 {
	chains := 1
	if c.Objective == ObjectiveSoftmax {
		chains = c.NumClass
	}
	scores := make([]float64, chains)
	for i := range scores {
		scores[i] = c.BaseScore
	}
	for _, round := range c.Rounds {
		for k, tree := range round {
			scores[k] += c.Params.LearningRate * tree.predict(x)
		}
	}
	return scores
}

// Predict returns the dense 0..k-1 class id for one feature vector.
func (c *Classifier) Predict(x []float64) int {
	scores := c.rawScores(x)
	if c.Objective == ObjectiveBinary {
		if sigmoid(scores[0]) >= 0.5 {
			return 1
		}
		return 0
	}
	best, bestScore := 0, math.Inf(-1)
	for k, s := range scores {
		if s > bestScore {
			best, bestScore = k, s
		}
	}
	return best
}

// PredictBatch classifies a whole feature matrix.
func (c *Classifier) PredictBatch(X [][]float64) []int {
	out := make([]int, len(X))
	for i, x := range X {
		out[i] = c.Predict(x)
	}
	return out
}

// FeatureImportances returns normalized gain based importances, one entry
// per feature column.
func (c *Classifier) FeatureImportances() []float64 {
	gains := make([]float64, c.NumFeatures)
	for _, round := range c.Rounds {
		for _, tree := range round {
			tree.featureGains(gains)
		}
	}
	total := 0.0
	for _, g := range gains {
		total += g
	}
	if total > 0 {
		for i := range gains {
			gains[i] /= total
		}
	}
	return gains
}

// Marshal serializes the classifier to its versioned JSON artifact form.
func (c *Classifier) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalClassifier loads a serialized classifier artifact.
func UnmarshalClassifier(data []byte) (*Classifier, error) {
	var c Classifier
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode classifier artifact: %w", err)
	}
	if c.Version != classifierVersion {
		return nil, fmt.Errorf("unsupported classifier artifact version %d", c.Version)
	}
	return &c, nil
}
