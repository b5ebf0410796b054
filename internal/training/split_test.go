package training

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesFromPairs(featureIDs, labels []string) *Samples {
	s := &Samples{}
	for i := range featureIDs {
		s.X = append(s.X, []float64{float64(i)})
		s.FeatureIDs = append(s.FeatureIDs, featureIDs[i])
		s.Labels = append(s.Labels, labels[i])
		s.Dates = append(s.Dates, "2023-01")
	}
	return s
}

func TestFeatureSplitKeepsPolygonsTogether(t *testing.T) {
	t.Parallel()

	// Four polygons per class, several pixels each.
	var featureIDs, labels []string
	for _, class := range []string{"Forest", "Non-Forest"} {
		for f := 0; f < 4; f++ {
			id := class + string(rune('a'+f))
			for px := 0; px < 5; px++ {
				featureIDs = append(featureIDs, id)
				labels = append(labels, class)
			}
		}
	}
	s := samplesFromPairs(featureIDs, labels)

	trainIdx, testIdx, err := Split(s, SplitByFeature, 0.25, 42)
	require.NoError(t, err)
	require.NotEmpty(t, trainIdx)
	require.NotEmpty(t, testIdx)
	assert.Equal(t, s.Len(), len(trainIdx)+len(testIdx))

	// No polygon may appear on both sides.
	trainFeatures := map[string]bool{}
	for _, i := range trainIdx {
		trainFeatures[s.FeatureIDs[i]] = true
	}
	for _, i := range testIdx {
		assert.False(t, trainFeatures[s.FeatureIDs[i]],
			"polygon %s appears in both train and test", s.FeatureIDs[i])
	}

	// Stratified: each class contributes exactly one of its four
	// polygons to the holdout at fraction 0.25.
	testFeatures := map[string]bool{}
	for _, i := range testIdx {
		testFeatures[s.FeatureIDs[i]] = true
	}
	assert.Len(t, testFeatures, 2)
}

func TestFeatureSplitSingletonClassFails(t *testing.T) {
	t.Parallel()

	s := samplesFromPairs(
		[]string{"f1", "f1", "f2", "f2", "f3", "f3"},
		[]string{"Forest", "Forest", "Forest", "Forest", "Water", "Water"},
	)

	_, _, err := Split(s, SplitByFeature, 0.2, 42)
	require.Error(t, err)

	var insufficient *InsufficientTrainingDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "Water", insufficient.Class)
	assert.Equal(t, 1, insufficient.Units)
}

func TestPixelSplitStratified(t *testing.T) {
	t.Parallel()

	var featureIDs, labels []string
	for i := 0; i < 50; i++ {
		featureIDs = append(featureIDs, "f1")
		labels = append(labels, "Forest")
	}
	for i := 0; i < 10; i++ {
		featureIDs = append(featureIDs, "f2")
		labels = append(labels, "Water")
	}
	s := samplesFromPairs(featureIDs, labels)

	trainIdx, testIdx, err := Split(s, SplitByPixel, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, s.Len(), len(trainIdx)+len(testIdx))

	waterTest := 0
	for _, i := range testIdx {
		if s.Labels[i] == "Water" {
			waterTest++
		}
	}
	assert.Equal(t, 2, waterTest, "every class is held out proportionally")
	assert.Len(t, testIdx, 12)
}

func TestPixelSplitSinglePixelClassFails(t *testing.T) {
	t.Parallel()

	s := samplesFromPairs(
		[]string{"f1", "f1", "f2"},
		[]string{"Forest", "Forest", "Cloud"},
	)

	_, _, err := Split(s, SplitByPixel, 0.2, 42)
	var insufficient *InsufficientTrainingDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "Cloud", insufficient.Class)
}

func TestSplitDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	s := samplesFromPairs(
		[]string{"f1", "f2", "f3", "f4"},
		[]string{"Forest", "Forest", "Forest", "Forest"},
	)

	// Empty method falls back to the polygon split; out of range
	// fractions fall back to the default.
	trainIdx, testIdx, err := Split(s, "", -1, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, trainIdx)
	assert.NotEmpty(t, testIdx)

	_, _, err = Split(s, "bogus", 0.2, 42)
	assert.Error(t, err)
}

func TestSplitDeterministicForSeed(t *testing.T) {
	t.Parallel()

	var featureIDs, labels []string
	for f := 0; f < 10; f++ {
		for px := 0; px < 3; px++ {
			featureIDs = append(featureIDs, string(rune('a'+f)))
			labels = append(labels, "Forest")
		}
	}
	s := samplesFromPairs(featureIDs, labels)

	_, test1, err := Split(s, SplitByFeature, 0.2, 42)
	require.NoError(t, err)
	_, test2, err := Split(s, SplitByFeature, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, test1, test2)
}
