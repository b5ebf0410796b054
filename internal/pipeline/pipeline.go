package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/choco-forest-watch/forest-watch-api/internal/geo"
	"github.com/choco-forest-watch/forest-watch-api/internal/imagery"
	"github.com/choco-forest-watch/forest-watch-api/internal/ml"
	"github.com/choco-forest-watch/forest-watch-api/internal/notification"
	"github.com/choco-forest-watch/forest-watch-api/internal/prediction"
	"github.com/choco-forest-watch/forest-watch-api/internal/properties"
	"github.com/choco-forest-watch/forest-watch-api/internal/raster"
	"github.com/choco-forest-watch/forest-watch-api/internal/store"
	"github.com/choco-forest-watch/forest-watch-api/internal/training"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
)

// Pipeline wires the full training and inference flow over one project
// database and imagery cache.
type Pipeline struct {
	Store   *store.Store
	Imagery *imagery.Client
	Tokens  *TokenRegistry
	// Workers bounds how many per date predictions run at once after
	// training. Classification is CPU bound, so a small pool.
	Workers int
}

func New(s *store.Store, client *imagery.Client) *Pipeline {
	return &Pipeline{
		Store:   s,
		Imagery: client,
		Tokens:  NewTokenRegistry(),
		Workers: 2,
	}
}

// TrainRequest parameterizes one training job.
type TrainRequest struct {
	ProjectID    uint
	ModelName    string
	Description  string
	Params       ml.Params
	SplitMethod  training.SplitMethod
	TestFraction float64
}

// Train runs the whole training job: imagery fetch, pixel extraction,
// model fitting, artifact persistence and one land cover prediction per
// training period. Returns the task id immediately usable for polling; the
// job itself runs synchronously in the calling goroutine.
func (p *Pipeline) Train(ctx context.Context, req TrainRequest) (string, error) {
	taskID := uuid.NewString()
	reporter := NewReporter(p.Store, taskID, "training")
	token := p.Tokens.Register(taskID)
	defer p.Tokens.Release(taskID)

	err := p.runTraining(ctx, req, reporter, token)
	switch {
	case err == nil:
		reporter.Complete("model trained and predictions generated")
		if notifyErr := notification.SendDiscordSuccessNotification(
			fmt.Sprintf("Training finished for project %d", req.ProjectID)); notifyErr != nil {
			log.Warn().Err(notifyErr).Msg("failed to send success notification")
		}
	case err == ErrCancelled:
		reporter.Cancelled(0)
	default:
		reporter.Fail(0, err)
		if notifyErr := notification.SendDiscordErrorNotification(err.Error()); notifyErr != nil {
			log.Warn().Err(notifyErr).Msg("failed to send error notification")
		}
	}
	return taskID, err
}

func (p *Pipeline) runTraining(ctx context.Context, req TrainRequest, reporter *Reporter, token *CancelToken) error {
	reporter.Update(0, "loading project", store.TaskRunning)

	project, err := p.Store.GetProject(req.ProjectID)
	if err != nil {
		return err
	}
	vocabulary, err := project.Classes()
	if err != nil {
		return err
	}
	aoi, err := geo.ParseAOI([]byte(project.AOIGeoJSON))
	if err != nil {
		return err
	}

	sets, err := p.Store.ActiveTrainingSets(project.ID)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return training.ErrEmptyTrainingData
	}

	// Imagery fetch and pixel extraction, one pass per training period.
	samples := &training.Samples{}
	tilesByDate := map[string][]*raster.Tile{}
	var setIDs []uint
	for i, set := range sets {
		if token.Cancelled() {
			return ErrCancelled
		}
		progress := 0.05 + float64(i)/float64(len(sets))*0.35
		reporter.Update(progress, fmt.Sprintf("extracting samples for %s", set.BasemapDate), store.TaskRunning)

		tiles, err := p.tilesForDate(ctx, aoi, set.BasemapDate, tilesByDate)
		if err != nil {
			return err
		}

		features, err := geo.ParseTrainingFeatures([]byte(set.PolygonsGeoJSON))
		if err != nil {
			return err
		}

		extracted, err := training.ExtractSamples(tiles, features, set.BasemapDate)
		if err != nil {
			return err
		}
		samples.Append(extracted)
		setIDs = append(setIDs, set.ID)
	}

	exportPath := filepath.Join(properties.RootPath(), "data", "exports", fmt.Sprintf("project_%d_samples.csv", project.ID))
	if err := training.ExportSamplesCSV(samples, exportPath); err != nil {
		log.Warn().Err(err).Msg("failed to export sample table")
	}

	if token.Cancelled() {
		return ErrCancelled
	}
	reporter.Update(0.4, "training classifier", store.TaskRunning)

	result, err := training.TrainModel(training.Request{
		Vocabulary:   vocabulary,
		Samples:      samples,
		Params:       req.Params,
		SplitMethod:  req.SplitMethod,
		TestFraction: req.TestFraction,
	})
	if err != nil {
		return err
	}

	if token.Cancelled() {
		return ErrCancelled
	}
	reporter.Update(0.6, "saving model", store.TaskRunning)

	artifactPath := filepath.Join(properties.RootPath(), "data", "models", fmt.Sprintf("project_%d.json", project.ID))
	if err := training.SaveArtifact(result.Artifact(), artifactPath); err != nil {
		return err
	}

	model, err := p.persistModel(project.ID, req, result, setIDs, artifactPath)
	if err != nil {
		return err
	}

	reporter.Update(0.65, "generating predictions", store.TaskRunning)
	if err := p.predictAllDates(result, model, project, aoi, tilesByDate, reporter, token); err != nil {
		return err
	}
	return nil
}

// tilesForDate fetches and loads the quads of one basemap period, caching
// loaded tiles across training sets that share a period.
func (p *Pipeline) tilesForDate(ctx context.Context, aoi orb.Geometry, basemapDate string, cache map[string][]*raster.Tile) ([]*raster.Tile, error) {
	if tiles, ok := cache[basemapDate]; ok {
		return tiles, nil
	}

	quads, err := p.Imagery.FetchTiles(ctx, aoi.Bound(), basemapDate)
	if err != nil {
		return nil, err
	}

	tiles := make([]*raster.Tile, 0, len(quads))
	for _, quad := range quads {
		tile, err := raster.OpenTile(quad.ID, quad.LocalPath)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, tile)
	}
	cache[basemapDate] = tiles
	return tiles, nil
}

func (p *Pipeline) persistModel(projectID uint, req TrainRequest, result *training.Result, setIDs []uint, artifactPath string) (*store.TrainedModel, error) {
	metricsJSON, err := json.Marshal(result.Evaluation)
	if err != nil {
		return nil, err
	}
	paramsJSON, err := json.Marshal(result.Classifier.Params)
	if err != nil {
		return nil, err
	}
	setIDsJSON, _ := json.Marshal(setIDs)
	datesJSON, _ := json.Marshal(result.BasemapDates)

	name := req.ModelName
	if name == "" {
		name = fmt.Sprintf("project %d model", projectID)
	}
	model := &store.TrainedModel{
		ProjectID:          projectID,
		Name:               name,
		Description:        req.Description,
		ArtifactPath:       artifactPath,
		TrainingSetIDsJSON: string(setIDsJSON),
		BasemapDatesJSON:   string(datesJSON),
		NumSamples:         result.NumSamples,
		ParametersJSON:     string(paramsJSON),
		MetricsJSON:        string(metricsJSON),
	}
	if err := p.Store.SaveTrainedModel(model); err != nil {
		return nil, err
	}
	return model, nil
}

// predictAllDates generates one land cover raster per training period on a
// bounded worker pool. One failed date fails the job but never tears down
// the workers mid task.
func (p *Pipeline) predictAllDates(result *training.Result, model *store.TrainedModel, project *store.Project, aoi orb.Geometry, tilesByDate map[string][]*raster.Tile, reporter *Reporter, token *CancelToken) error {
	vocabulary := result.LabelEncoder.Classes
	artifact := result.Artifact()

	dates := make([]string, 0, len(tilesByDate))
	for date := range tilesByDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	pool := workerpool.New(workers)

	var mu sync.Mutex
	var firstErr error
	done := 0
	for _, date := range dates {
		date := date
		pool.Submit(func() {
			if token.Cancelled() {
				return
			}
			err := p.generatePrediction(artifact, model, project, vocabulary, aoi, date, tilesByDate[date])

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil && firstErr == nil {
				firstErr = err
			}
			progress := 0.65 + float64(done)/float64(len(dates))*0.35
			reporter.Update(progress, fmt.Sprintf("predicted %s", date), store.TaskRunning)
		})
	}
	pool.StopWait()

	if token.Cancelled() {
		return ErrCancelled
	}
	return firstErr
}

func (p *Pipeline) generatePrediction(artifact *training.ModelArtifact, model *store.TrainedModel, project *store.Project, vocabulary []string, aoi orb.Geometry, date string, tiles []*raster.Tile) error {
	grid, err := prediction.Predict(tiles, artifact, aoi, date)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s %s", project.Name, date)
	rasterPath := filepath.Join(properties.RootPath(), "data", "predictions",
		fmt.Sprintf("project_%d_%s_landcover.tif", project.ID, date))
	if err := os.MkdirAll(filepath.Dir(rasterPath), 0755); err != nil {
		return err
	}
	if err := raster.WriteGrid(rasterPath, grid); err != nil {
		return err
	}

	previewPath := rasterPath[:len(rasterPath)-4] + ".png"
	if err := prediction.RenderPNG(grid, vocabulary, previewPath); err != nil {
		log.Warn().Err(err).Str("date", date).Msg("failed to render preview")
		previewPath = ""
	}

	summary := prediction.Summarize(grid, vocabulary, name, date, store.PredictionTypeLandCover)
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	return p.Store.UpsertPrediction(&store.Prediction{
		ProjectID:   project.ID,
		ModelID:     model.ID,
		Type:        store.PredictionTypeLandCover,
		BasemapDate: date,
		Name:        name,
		RasterPath:  rasterPath,
		PreviewPath: previewPath,
		SummaryJSON: string(summaryJSON),
	})
}

// PredictDate generates a land cover raster for a period the model was not
// necessarily trained on, fetching imagery on demand.
func (p *Pipeline) PredictDate(ctx context.Context, projectID uint, basemapDate string) (*store.Prediction, error) {
	project, err := p.Store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	model, err := p.Store.GetTrainedModel(projectID)
	if err != nil {
		return nil, err
	}
	artifact, err := training.LoadArtifact(model.ArtifactPath)
	if err != nil {
		return nil, err
	}
	vocabulary, err := project.Classes()
	if err != nil {
		return nil, err
	}
	aoi, err := geo.ParseAOI([]byte(project.AOIGeoJSON))
	if err != nil {
		return nil, err
	}

	tiles, err := p.tilesForDate(ctx, aoi, basemapDate, map[string][]*raster.Tile{})
	if err != nil {
		return nil, err
	}
	if err := p.generatePrediction(artifact, model, project, vocabulary, aoi, basemapDate, tiles); err != nil {
		return nil, err
	}
	return p.Store.FindPrediction(projectID, model.ID, store.PredictionTypeLandCover, basemapDate, "")
}
