package ml

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticClusters builds well separated gaussian-ish clusters, one per
// class, in a 2d feature space.
func syntheticClusters(n, numClass int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, 0, n)
	y := make([]int, 0, n)
	for i := 0; i < n; i++ {
		class := i % numClass
		cx := float64(class) * 10
		X = append(X, []float64{cx + rng.Float64(), cx + rng.Float64()})
		y = append(y, class)
	}
	return X, y
}

func TestTrainBinaryClassifier(t *testing.T) {
	t.Parallel()

	X, y := syntheticClusters(200, 2, 1)
	p := DefaultParams()
	p.NumRounds = 20

	c, err := Train(X, y, 2, nil, nil, p)
	require.NoError(t, err)
	assert.Equal(t, ObjectiveBinary, c.Objective)

	pred := c.PredictBatch(X)
	correct := 0
	for i := range y {
		if pred[i] == y[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, 195, "separable data should be almost perfectly learned")
}

func TestTrainMulticlassClassifier(t *testing.T) {
	t.Parallel()

	X, y := syntheticClusters(300, 3, 2)
	p := DefaultParams()
	p.NumRounds = 20

	c, err := Train(X, y, 3, nil, nil, p)
	require.NoError(t, err)
	assert.Equal(t, ObjectiveSoftmax, c.Objective)
	require.NotEmpty(t, c.Rounds)
	assert.Len(t, c.Rounds[0], 3, "one tree per class per round")

	pred := c.PredictBatch(X)
	correct := 0
	for i := range y {
		if pred[i] == y[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, 290)
}

func TestTrainEarlyStopping(t *testing.T) {
	t.Parallel()

	X, y := syntheticClusters(200, 2, 3)
	evalX, evalY := syntheticClusters(60, 2, 4)

	p := DefaultParams()
	p.NumRounds = 100
	p.EarlyStoppingRounds = 5

	c, err := Train(X, y, 2, evalX, evalY, p)
	require.NoError(t, err)
	// Trivially separable data converges long before 100 rounds.
	assert.Less(t, len(c.Rounds), 100)
}

func TestTrainInputValidation(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	_, err := Train(nil, nil, 2, nil, nil, p)
	assert.Error(t, err)

	_, err = Train([][]float64{{1}}, []int{0, 1}, 2, nil, nil, p)
	assert.Error(t, err)

	_, err = Train([][]float64{{1}}, []int{0}, 1, nil, nil, p)
	assert.Error(t, err)
}

func TestClassifierArtifactRoundTrip(t *testing.T) {
	t.Parallel()

	X, y := syntheticClusters(100, 3, 5)
	p := DefaultParams()
	p.NumRounds = 5

	c, err := Train(X, y, 3, nil, nil, p)
	require.NoError(t, err)

	data, err := c.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalClassifier(data)
	require.NoError(t, err)
	assert.Equal(t, c.PredictBatch(X), restored.PredictBatch(X))
}

func TestUnmarshalClassifierRejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	_, err := UnmarshalClassifier([]byte(`{"version": 99}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestFeatureImportancesNormalized(t *testing.T) {
	t.Parallel()

	X, y := syntheticClusters(100, 2, 6)
	// Add a constant column the model can never split on.
	for i := range X {
		X[i] = append(X[i], 1.0)
	}

	p := DefaultParams()
	p.NumRounds = 10
	c, err := Train(X, y, 2, nil, nil, p)
	require.NoError(t, err)

	importances := c.FeatureImportances()
	require.Len(t, importances, 3)

	sum := 0.0
	for _, v := range importances {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Zero(t, importances[2], "constant feature gains nothing")
}
