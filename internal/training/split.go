package training

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// DefaultTestFraction is the share of data held out for evaluation when the
// caller does not pick one.
const DefaultTestFraction = 0.2

// SplitMethod selects how the holdout set is formed.
type SplitMethod string

const (
	// SplitByFeature holds out whole polygons, stratified by class. Pixels
	// from one polygon never land on both sides, so evaluation is not
	// inflated by near duplicate neighbors from the same polygon.
	SplitByFeature SplitMethod = "feature"
	// SplitByPixel is a plain stratified split over individual pixels.
	SplitByPixel SplitMethod = "pixel"
)

// InsufficientTrainingDataError reports a class that cannot be split because
// it has too few distinct units to put at least one on each side.
type InsufficientTrainingDataError struct {
	Class string
	Units int
}

func (e *InsufficientTrainingDataError) Error() string {
	return fmt.Sprintf("class %q has only %d training unit(s), need at least 2 to split train/test", e.Class, e.Units)
}

// Split partitions sample rows into train and test index sets.
func Split(s *Samples, method SplitMethod, testFraction float64, seed int64) (trainIdx, testIdx []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		testFraction = DefaultTestFraction
	}
	switch method {
	case SplitByPixel:
		return pixelSplit(s, testFraction, seed)
	case SplitByFeature, "":
		return featureSplit(s, testFraction, seed)
	default:
		return nil, nil, fmt.Errorf("unknown split method %q", method)
	}
}

func featureSplit(s *Samples, testFraction float64, seed int64) ([]int, []int, error) {
	// One entry per polygon, keyed by feature id, carrying its class.
	featureClass := map[string]string{}
	var featureOrder []string
	for i, id := range s.FeatureIDs {
		if _, seen := featureClass[id]; !seen {
			featureClass[id] = s.Labels[i]
			featureOrder = append(featureOrder, id)
		}
	}

	byClass := map[string][]string{}
	for _, id := range featureOrder {
		class := featureClass[id]
		byClass[class] = append(byClass[class], id)
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	rng := rand.New(rand.NewSource(seed))
	testFeatures := map[string]bool{}
	for _, class := range classes {
		ids := byClass[class]
		if len(ids) < 2 {
			return nil, nil, &InsufficientTrainingDataError{Class: class, Units: len(ids)}
		}
		n := holdoutCount(len(ids), testFraction)
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		for _, id := range ids[:n] {
			testFeatures[id] = true
		}
	}

	var train, test []int
	for i, id := range s.FeatureIDs {
		if testFeatures[id] {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test, nil
}

func pixelSplit(s *Samples, testFraction float64, seed int64) ([]int, []int, error) {
	byClass := map[string][]int{}
	var classOrder []string
	for i, label := range s.Labels {
		if _, seen := byClass[label]; !seen {
			classOrder = append(classOrder, label)
		}
		byClass[label] = append(byClass[label], i)
	}
	sort.Strings(classOrder)

	rng := rand.New(rand.NewSource(seed))
	var train, test []int
	for _, class := range classOrder {
		rows := byClass[class]
		if len(rows) < 2 {
			return nil, nil, &InsufficientTrainingDataError{Class: class, Units: len(rows)}
		}
		n := holdoutCount(len(rows), testFraction)
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		test = append(test, rows[:n]...)
		train = append(train, rows[n:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// holdoutCount keeps at least one unit on each side regardless of fraction.
func holdoutCount(n int, fraction float64) int {
	count := int(math.Round(fraction * float64(n)))
	if count < 1 {
		count = 1
	}
	if count > n-1 {
		count = n - 1
	}
	return count
}
