package deforestation

import (
	"fmt"

	"github.com/choco-forest-watch/forest-watch-api/internal/geo"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection serializes a hotspot set to GeoJSON with aggregate
// metadata in the collection's extra members. Geometry goes out in WGS84
// per the GeoJSON convention.
func FeatureCollection(hotspots []Hotspot, minAreaHa float64) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for i, h := range hotspots {
		feature := geojson.NewFeature(geo.ToWGS84(h.Geometry))
		feature.ID = i
		feature.Properties["area_ha"] = h.AreaHa
		feature.Properties["perimeter_m"] = h.PerimeterM
		feature.Properties["compactness"] = h.Compactness
		feature.Properties["edge_density"] = h.EdgeDensity
		feature.Properties["centroid_lon"] = h.CentroidLon
		feature.Properties["centroid_lat"] = h.CentroidLat
		feature.Properties["source"] = h.Source
		feature.Properties["verification_status"] = h.VerificationStatus
		if h.Confidence != nil {
			feature.Properties["confidence"] = *h.Confidence
		}
		fc.Append(feature)
	}

	total, bySource := Statistics(hotspots)
	sourceMeta := map[string]interface{}{}
	for source, stats := range bySource {
		sourceMeta[source] = map[string]interface{}{
			"count":         stats.Count,
			"total_area_ha": stats.TotalAreaHa,
		}
	}
	fc.ExtraMembers = geojson.Properties{
		"metadata": map[string]interface{}{
			"total_hotspots": total.Count,
			"total_area_ha":  total.TotalAreaHa,
			"min_area_ha":    minAreaHa,
			"by_source":      sourceMeta,
		},
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode hotspot collection: %w", err)
	}
	return data, nil
}
