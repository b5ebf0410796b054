package deforestation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// hotspotRow is the CSV shape of one hotspot. Geometry is reduced to the
// WGS84 centroid; the full polygons live in the GeoJSON export.
type hotspotRow struct {
	Rank        int     `csv:"rank"`
	Source      string  `csv:"source"`
	AreaHa      float64 `csv:"area_ha"`
	PerimeterM  float64 `csv:"perimeter_m"`
	Compactness float64 `csv:"compactness"`
	EdgeDensity float64 `csv:"edge_density"`
	CentroidLon float64 `csv:"centroid_lon"`
	CentroidLat float64 `csv:"centroid_lat"`
	Confidence  string  `csv:"confidence"`
}

// ExportHotspotsCSV writes a hotspot table for spreadsheet review, ranked
// in the order given (largest first when coming from FilterHotspots).
func ExportHotspotsCSV(hotspots []Hotspot, path string) error {
	rows := make([]*hotspotRow, 0, len(hotspots))
	for i, h := range hotspots {
		row := &hotspotRow{
			Rank:        i + 1,
			Source:      h.Source,
			AreaHa:      h.AreaHa,
			PerimeterM:  h.PerimeterM,
			Compactness: h.Compactness,
			EdgeDensity: h.EdgeDensity,
			CentroidLon: h.CentroidLon,
			CentroidLat: h.CentroidLat,
		}
		if h.Confidence != nil {
			row.Confidence = fmt.Sprintf("%d", *h.Confidence)
		}
		rows = append(rows, row)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create hotspot export %s: %w", path, err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("failed to write hotspot export: %w", err)
	}
	return nil
}
