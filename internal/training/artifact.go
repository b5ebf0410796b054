package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/choco-forest-watch/forest-watch-api/internal/ml"
)

// ModelArtifact is the on disk form of a trained model: the ensemble plus
// every mapping table inference needs. Plain JSON throughout, so artifacts
// stay inspectable and survive library upgrades.
type ModelArtifact struct {
	Version      int              `json:"version"`
	Classifier   *ml.Classifier   `json:"classifier"`
	ClassMap     *ml.ClassMap     `json:"class_map"`
	DateEncoder  *ml.DateEncoder  `json:"date_encoder"`
	LabelEncoder *ml.LabelEncoder `json:"label_encoder"`
	BasemapDates []string         `json:"basemap_dates"`
}

const artifactVersion = 1

// Artifact packages a training result for persistence.
func (r *Result) Artifact() *ModelArtifact {
	return &ModelArtifact{
		Version:      artifactVersion,
		Classifier:   r.Classifier,
		ClassMap:     r.ClassMap,
		DateEncoder:  r.DateEncoder,
		LabelEncoder: r.LabelEncoder,
		BasemapDates: r.BasemapDates,
	}
}

// SaveArtifact writes the model artifact atomically. The previous artifact
// at the path stays intact until the new one is fully on disk.
func SaveArtifact(a *ModelArtifact, path string) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode model artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write model artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace model artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads a model artifact back from disk.
func LoadArtifact(path string) (*ModelArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}
	var a ModelArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact %s: %w", path, err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("unsupported model artifact version %d in %s", a.Version, path)
	}
	return &a, nil
}
