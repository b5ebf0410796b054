package training

import (
	"fmt"
	"sort"

	"github.com/choco-forest-watch/forest-watch-api/internal/ml"
	"github.com/rs/zerolog/log"
)

// ModelTrainingError wraps an unexpected failure inside the training stage
// so callers can tell it apart from data quality errors.
type ModelTrainingError struct {
	Err error
}

func (e *ModelTrainingError) Error() string {
	return fmt.Sprintf("model training failed: %v", e.Err)
}

func (e *ModelTrainingError) Unwrap() error {
	return e.Err
}

// Request bundles everything one training run needs.
type Request struct {
	// Vocabulary is the project's fixed class list. Raster class indices
	// follow its order for the lifetime of the project.
	Vocabulary   []string
	Samples      *Samples
	Params       ml.Params
	SplitMethod  SplitMethod
	TestFraction float64
}

// Result is a fully trained model with everything inference needs to stay
// consistent with the project vocabulary.
type Result struct {
	Classifier   *ml.Classifier
	ClassMap     *ml.ClassMap
	DateEncoder  *ml.DateEncoder
	LabelEncoder *ml.LabelEncoder
	Evaluation   ml.Evaluation
	BasemapDates []string
	NumSamples   int
}

// TrainModel runs the full training stage: temporal feature encoding,
// train/test split, boosting and evaluation against the global vocabulary.
func TrainModel(req Request) (*Result, error) {
	if req.Samples == nil || req.Samples.Len() == 0 {
		return nil, ErrEmptyTrainingData
	}
	if len(req.Vocabulary) == 0 {
		return nil, &ModelTrainingError{Err: fmt.Errorf("project has no class vocabulary")}
	}

	dateEnc, err := ml.FitDateEncoder(req.Samples.Dates)
	if err != nil {
		return nil, &ModelTrainingError{Err: err}
	}

	classMap, err := ml.BuildClassMap(req.Samples.Labels, req.Vocabulary)
	if err != nil {
		return nil, &ModelTrainingError{Err: err}
	}

	X, err := buildFeatureMatrix(req.Samples, dateEnc)
	if err != nil {
		return nil, &ModelTrainingError{Err: err}
	}

	trainIdx, testIdx, err := Split(req.Samples, req.SplitMethod, req.TestFraction, req.Params.Seed)
	if err != nil {
		return nil, err
	}

	y := make([]int, req.Samples.Len())
	for i, label := range req.Samples.Labels {
		compact, ok := classMap.CompactIndex(label)
		if !ok {
			return nil, &ModelTrainingError{Err: fmt.Errorf("label %q missing from class map", label)}
		}
		y[i] = compact
	}

	trainX, trainY := selectRows(X, y, trainIdx)
	testX, testY := selectRows(X, y, testIdx)

	log.Info().
		Int("train_samples", len(trainX)).
		Int("test_samples", len(testX)).
		Int("classes", len(classMap.Present)).
		Str("split", string(req.SplitMethod)).
		Msg("training classifier")

	classifier, err := ml.Train(trainX, trainY, len(classMap.Present), testX, testY, req.Params)
	if err != nil {
		return nil, &ModelTrainingError{Err: err}
	}

	labelEnc := &ml.LabelEncoder{Classes: req.Vocabulary}

	// Evaluate in global index space so the confusion matrix is always
	// vocabulary sized, even when some classes had no polygons this run.
	predCompact := classifier.PredictBatch(testX)
	yTrue := make([]int, len(testIdx))
	yPred := make([]int, len(testIdx))
	for i := range testIdx {
		yTrue[i], _ = classMap.GlobalIndex(testY[i])
		yPred[i], _ = classMap.GlobalIndex(predCompact[i])
	}
	eval := ml.Evaluate(yTrue, yPred, req.Vocabulary, classMap.Present)
	eval.FeatureImportance = classifier.FeatureImportances()

	log.Info().
		Float64("accuracy", eval.Accuracy).
		Int("rounds", len(classifier.Rounds)).
		Msg("trained classifier")

	return &Result{
		Classifier:   classifier,
		ClassMap:     classMap,
		DateEncoder:  dateEnc,
		LabelEncoder: labelEnc,
		Evaluation:   eval,
		BasemapDates: distinctSorted(req.Samples.Dates),
		NumSamples:   req.Samples.Len(),
	}, nil
}

// buildFeatureMatrix appends the temporal codes to each band vector. The
// feature layout is bands first, then date code, then month code, and
// inference must assemble vectors the same way.
func buildFeatureMatrix(s *Samples, dateEnc *ml.DateEncoder) ([][]float64, error) {
	X := make([][]float64, s.Len())
	for i, bands := range s.X {
		dateCode, monthCode, err := dateEnc.Encode(s.Dates[i])
		if err != nil {
			return nil, err
		}
		row := make([]float64, len(bands)+2)
		copy(row, bands)
		row[len(bands)] = float64(dateCode)
		row[len(bands)+1] = float64(monthCode)
		X[i] = row
	}
	return X, nil
}

func selectRows(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	outX := make([][]float64, len(idx))
	outY := make([]int, len(idx))
	for i, r := range idx {
		outX[i] = X[r]
		outY[i] = y[r]
	}
	return outX, outY
}

func distinctSorted(values []string) []string {
	set := map[string]bool{}
	for _, v := range values {
		set[v] = true
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
