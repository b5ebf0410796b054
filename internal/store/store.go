package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the project database.
type Store struct {
	db *gorm.DB
}

// Open connects to the sqlite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(
		&Project{},
		&TrainingPolygonSet{},
		&TrainedModel{},
		&Prediction{},
		&DeforestationHotspot{},
		&Task{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for queries that need it directly.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// CreateProject stores a new project. Classes are serialized in order; the
// index of a class in the slice is its raster value forever.
func (s *Store) CreateProject(name, description, aoiGeoJSON string, classes []string, aoiAreaHa float64) (*Project, error) {
	classesJSON, err := json.Marshal(classes)
	if err != nil {
		return nil, err
	}
	project := &Project{
		Name:        name,
		Description: description,
		AOIGeoJSON:  aoiGeoJSON,
		ClassesJSON: string(classesJSON),
		AOIAreaHa:   aoiAreaHa,
	}
	if err := s.db.Create(project).Error; err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return project, nil
}

func (s *Store) GetProject(id uint) (*Project, error) {
	var project Project
	if err := s.db.First(&project, id).Error; err != nil {
		return nil, fmt.Errorf("project %d not found: %w", id, err)
	}
	return &project, nil
}

func (s *Store) GetProjectByName(name string) (*Project, error) {
	var project Project
	if err := s.db.Where("name = ?", name).First(&project).Error; err != nil {
		return nil, fmt.Errorf("project %q not found: %w", name, err)
	}
	return &project, nil
}

func (s *Store) ListProjects() ([]Project, error) {
	var projects []Project
	if err := s.db.Order("created_at").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// Classes decodes a project's vocabulary back into its canonical order.
func (p *Project) Classes() ([]string, error) {
	var classes []string
	if err := json.Unmarshal([]byte(p.ClassesJSON), &classes); err != nil {
		return nil, fmt.Errorf("corrupt class list on project %d: %w", p.ID, err)
	}
	return classes, nil
}

// CreateTrainingSet stores an uploaded polygon batch.
func (s *Store) CreateTrainingSet(set *TrainingPolygonSet) error {
	if err := s.db.Create(set).Error; err != nil {
		return fmt.Errorf("failed to store training set: %w", err)
	}
	return nil
}

// ActiveTrainingSets returns the non excluded polygon sets of a project.
func (s *Store) ActiveTrainingSets(projectID uint) ([]TrainingPolygonSet, error) {
	var sets []TrainingPolygonSet
	err := s.db.
		Where("project_id = ? AND excluded = ?", projectID, false).
		Order("basemap_date").
		Find(&sets).Error
	if err != nil {
		return nil, err
	}
	return sets, nil
}

// SetTrainingSetExcluded flips the exclusion flag of one polygon set.
func (s *Store) SetTrainingSetExcluded(id uint, excluded bool) error {
	result := s.db.Model(&TrainingPolygonSet{}).Where("id = ?", id).Update("excluded", excluded)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("training set %d not found", id)
	}
	return nil
}

// SaveTrainedModel stores a model, replacing the project's previous one in
// the same transaction so a project never briefly has two models.
func (s *Store) SaveTrainedModel(model *TrainedModel) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing TrainedModel
		err := tx.Where("project_id = ?", model.ProjectID).First(&existing).Error
		switch {
		case err == nil:
			model.ID = existing.ID
			model.CreatedAt = existing.CreatedAt
			return tx.Save(model).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(model).Error
		default:
			return err
		}
	})
}

func (s *Store) GetTrainedModel(projectID uint) (*TrainedModel, error) {
	var model TrainedModel
	if err := s.db.Where("project_id = ?", projectID).First(&model).Error; err != nil {
		return nil, fmt.Errorf("project %d has no trained model: %w", projectID, err)
	}
	return &model, nil
}

// UpsertPrediction stores a prediction, replacing any previous run of the
// same (project, model, type, period) key. Hotspots derived from a replaced
// deforestation prediction are dropped with it.
func (s *Store) UpsertPrediction(p *Prediction) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing Prediction
		err := tx.Where(
			"project_id = ? AND model_id = ? AND type = ? AND basemap_date = ? AND compared_date = ?",
			p.ProjectID, p.ModelID, p.Type, p.BasemapDate, p.ComparedDate,
		).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Where("prediction_id = ?", existing.ID).Delete(&DeforestationHotspot{}).Error; err != nil {
				return err
			}
			p.ID = existing.ID
			p.CreatedAt = existing.CreatedAt
			return tx.Save(p).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(p).Error
		default:
			return err
		}
	})
}

func (s *Store) GetPrediction(id uint) (*Prediction, error) {
	var p Prediction
	if err := s.db.First(&p, id).Error; err != nil {
		return nil, fmt.Errorf("prediction %d not found: %w", id, err)
	}
	return &p, nil
}

// FindPrediction looks up a prediction by its natural key.
func (s *Store) FindPrediction(projectID, modelID uint, predType, basemapDate, comparedDate string) (*Prediction, error) {
	var p Prediction
	err := s.db.Where(
		"project_id = ? AND model_id = ? AND type = ? AND basemap_date = ? AND compared_date = ?",
		projectID, modelID, predType, basemapDate, comparedDate,
	).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPredictions(projectID uint, predType string) ([]Prediction, error) {
	query := s.db.Where("project_id = ?", projectID)
	if predType != "" {
		query = query.Where("type = ?", predType)
	}
	var predictions []Prediction
	if err := query.Order("basemap_date").Find(&predictions).Error; err != nil {
		return nil, err
	}
	return predictions, nil
}

// ReplaceHotspots swaps the stored hotspot set of a prediction in one
// transaction, used both for first generation and regeneration.
func (s *Store) ReplaceHotspots(predictionID uint, hotspots []DeforestationHotspot) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("prediction_id = ?", predictionID).Delete(&DeforestationHotspot{}).Error; err != nil {
			return err
		}
		if len(hotspots) == 0 {
			return nil
		}
		for i := range hotspots {
			hotspots[i].PredictionID = predictionID
		}
		return tx.CreateInBatches(hotspots, 200).Error
	})
}

func (s *Store) HotspotsForPrediction(predictionID uint) ([]DeforestationHotspot, error) {
	var hotspots []DeforestationHotspot
	err := s.db.
		Where("prediction_id = ?", predictionID).
		Order("area_ha desc").
		Find(&hotspots).Error
	if err != nil {
		return nil, err
	}
	return hotspots, nil
}

// UpdateHotspotVerification sets the manual review status of one hotspot.
func (s *Store) UpdateHotspotVerification(id uint, status string) error {
	switch status {
	case VerificationVerified, VerificationRejected, VerificationUnsure:
	default:
		return fmt.Errorf("invalid verification status %q", status)
	}
	result := s.db.Model(&DeforestationHotspot{}).Where("id = ?", id).Update("verification_status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("hotspot %d not found", id)
	}
	return nil
}

// UpsertTask writes a task progress record, creating it on first update.
func (s *Store) UpsertTask(task *Task) error {
	err := s.db.Save(task).Error
	if err != nil {
		log.Error().Err(err).Str("task", task.TaskID).Msg("failed to store task progress")
	}
	return err
}

func (s *Store) GetTask(taskID string) (*Task, error) {
	var task Task
	if err := s.db.First(&task, "task_id = ?", taskID).Error; err != nil {
		return nil, fmt.Errorf("task %s not found: %w", taskID, err)
	}
	return &task, nil
}
