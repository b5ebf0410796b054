package training

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// sampleRow is the CSV shape of one extracted pixel. Band names follow the
// provider's analytic band order.
type sampleRow struct {
	FeatureID   string  `csv:"feature_id"`
	ClassLabel  string  `csv:"class_label"`
	BasemapDate string  `csv:"basemap_date"`
	Blue        float64 `csv:"blue"`
	Green       float64 `csv:"green"`
	Red         float64 `csv:"red"`
	NIR         float64 `csv:"nir"`
}

// ExportSamplesCSV dumps the extracted sample table for offline inspection.
func ExportSamplesCSV(s *Samples, path string) error {
	rows := make([]*sampleRow, 0, s.Len())
	for i, bands := range s.X {
		if len(bands) < 4 {
			return fmt.Errorf("sample %d has %d bands, expected 4", i, len(bands))
		}
		rows = append(rows, &sampleRow{
			FeatureID:   s.FeatureIDs[i],
			ClassLabel:  s.Labels[i],
			BasemapDate: s.Dates[i],
			Blue:        bands[0],
			Green:       bands[1],
			Red:         bands[2],
			NIR:         bands[3],
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sample export %s: %w", path, err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("failed to write sample export: %w", err)
	}
	return nil
}
