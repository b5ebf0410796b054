package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateFullSizeConfusionMatrix(t *testing.T) {
	t.Parallel()

	// Only Forest (0) and Water (4) appear, but the matrix must still
	// span the whole vocabulary.
	yTrue := []int{0, 0, 4, 4}
	yPred := []int{0, 4, 4, 4}
	eval := Evaluate(yTrue, yPred, vocabulary, []string{"Forest", "Water"})

	require.Len(t, eval.ConfusionMatrix, 5)
	for _, row := range eval.ConfusionMatrix {
		require.Len(t, row, 5)
	}

	assert.Equal(t, 1, eval.ConfusionMatrix[0][0])
	assert.Equal(t, 1, eval.ConfusionMatrix[0][4])
	assert.Equal(t, 2, eval.ConfusionMatrix[4][4])
	assert.Equal(t, 0, eval.ConfusionMatrix[2][2], "absent class row stays zero")
	assert.InDelta(t, 0.75, eval.Accuracy, 1e-9)
}

func TestEvaluateAbsentClassesGetNullMetrics(t *testing.T) {
	t.Parallel()

	eval := Evaluate([]int{0, 0}, []int{0, 0}, vocabulary, []string{"Forest"})

	require.Contains(t, eval.ClassMetrics, "Cloud")
	absent := eval.ClassMetrics["Cloud"]
	assert.Nil(t, absent.Precision)
	assert.Nil(t, absent.Recall)
	assert.Nil(t, absent.F1)

	present := eval.ClassMetrics["Forest"]
	require.NotNil(t, present.Precision)
	assert.Equal(t, 1.0, *present.Precision)
	assert.Equal(t, 1.0, *present.Recall)
	assert.Equal(t, 1.0, *present.F1)
}

func TestEvaluatePrecisionRecall(t *testing.T) {
	t.Parallel()

	// Forest: 2 true, 1 predicted correctly, 1 extra prediction.
	yTrue := []int{0, 0, 1, 1}
	yPred := []int{0, 1, 0, 1}
	eval := Evaluate(yTrue, yPred, vocabulary, []string{"Forest", "Non-Forest"})

	forest := eval.ClassMetrics["Forest"]
	require.NotNil(t, forest.Precision)
	assert.InDelta(t, 0.5, *forest.Precision, 1e-9)
	assert.InDelta(t, 0.5, *forest.Recall, 1e-9)
	assert.InDelta(t, 0.5, *forest.F1, 1e-9)

	assert.Equal(t, vocabulary, eval.ClassNames)
	assert.Equal(t, []string{"Forest", "Non-Forest"}, eval.ClassesInTraining)
}

func TestEvaluateEmptyInput(t *testing.T) {
	t.Parallel()

	eval := Evaluate(nil, nil, vocabulary, nil)
	assert.Zero(t, eval.Accuracy)
	require.Len(t, eval.ConfusionMatrix, 5)
}
