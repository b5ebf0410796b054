package ml

// ClassMetrics are per class evaluation scores. Nil means the class was
// absent from the training run, which is a different outcome than a zero
// score.
type ClassMetrics struct {
	Precision *float64 `json:"precision"`
	Recall    *float64 `json:"recall"`
	F1        *float64 `json:"f1"`
}

// Evaluation is the full metric bundle persisted with a trained model. The
// confusion matrix is always sized to the global vocabulary so matrices
// from different training runs of the same project stay comparable.
type Evaluation struct {
	Accuracy          float64                 `json:"accuracy"`
	ClassMetrics      map[string]ClassMetrics `json:"class_metrics"`
	ConfusionMatrix   [][]int                 `json:"confusion_matrix"`
	ClassNames        []string                `json:"class_names"`
	ClassesInTraining []string                `json:"classes_in_training"`
	FeatureImportance []float64               `json:"feature_importance"`
}

// Evaluate scores predictions against truth. Both slices hold global
// vocabulary indices.
func Evaluate(yTrue, yPred []int, vocabulary []string, present []string) Evaluation {
	n := len(vocabulary)
	matrix := make([][]int, n)
	for i := range matrix {
		matrix[i] = make([]int, n)
	}

	correct := 0
	for i := range yTrue {
		if yTrue[i] >= 0 && yTrue[i] < n && yPred[i] >= 0 && yPred[i] < n {
			matrix[yTrue[i]][yPred[i]]++
		}
		if yTrue[i] == yPred[i] {
			correct++
		}
	}

	accuracy := 0.0
	if len(yTrue) > 0 {
		accuracy = float64(correct) / float64(len(yTrue))
	}

	presentSet := map[string]bool{}
	for _, c := range present {
		presentSet[c] = true
	}

	classMetrics := make(map[string]ClassMetrics, n)
	for idx, class := range vocabulary {
		if !presentSet[class] {
			classMetrics[class] = ClassMetrics{}
			continue
		}

		truePos := matrix[idx][idx]
		predicted := 0
		actual := 0
		for j := 0; j < n; j++ {
			predicted += matrix[j][idx]
			actual += matrix[idx][j]
		}

		precision := 0.0
		if predicted > 0 {
			precision = float64(truePos) / float64(predicted)
		}
		recall := 0.0
		if actual > 0 {
			recall = float64(truePos) / float64(actual)
		}
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		p, r, f := precision, recall, f1
		classMetrics[class] = ClassMetrics{Precision: &p, Recall: &r, F1: &f}
	}

	return Evaluation{
		Accuracy:          accuracy,
		ClassMetrics:      classMetrics,
		ConfusionMatrix:   matrix,
		ClassNames:        vocabulary,
		ClassesInTraining: present,
	}
}
