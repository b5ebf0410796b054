package geo

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// TrainingFeature is one user digitized polygon with its land cover label.
type TrainingFeature struct {
	ID         string
	ClassLabel string
	Geometry   orb.Geometry
}

// ParseAOI decodes an area of interest from GeoJSON. Accepts a bare
// geometry, a Feature or a FeatureCollection with a single feature.
func ParseAOI(data []byte) (orb.Geometry, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		return fc.Features[0].Geometry, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil {
		return f.Geometry, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AOI GeoJSON: %w", err)
	}
	return g.Geometry(), nil
}

// ParseTrainingFeatures decodes a labeled polygon FeatureCollection. Every
// feature must carry a classLabel property and a stable id.
func ParseTrainingFeatures(data []byte) ([]TrainingFeature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse training polygons: %w", err)
	}

	features := make([]TrainingFeature, 0, len(fc.Features))
	for i, f := range fc.Features {
		label, ok := f.Properties["classLabel"].(string)
		if !ok || label == "" {
			return nil, fmt.Errorf("feature %d has no classLabel property", i)
		}

		id := fmt.Sprintf("%v", f.ID)
		if f.ID == nil {
			id = fmt.Sprintf("%d", i)
		}

		features = append(features, TrainingFeature{
			ID:         id,
			ClassLabel: label,
			Geometry:   f.Geometry,
		})
	}
	return features, nil
}

// LoadTrainingFeatures reads a training polygon set from a GeoJSON file.
func LoadTrainingFeatures(path string) ([]TrainingFeature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseTrainingFeatures(data)
}

// MarshalGeometry encodes a geometry back to GeoJSON bytes.
func MarshalGeometry(g orb.Geometry) ([]byte, error) {
	return geojson.NewGeometry(g).MarshalJSON()
}
