package prediction

import (
	"github.com/choco-forest-watch/forest-watch-api/internal/raster"
)

// ClassStatistics are the per class area figures for one prediction.
type ClassStatistics struct {
	AreaHa     float64 `json:"area_ha"`
	Percentage float64 `json:"percentage"`
}

// Summary holds the stored statistics of one land cover prediction. Nodata
// pixels count toward neither the class areas nor the total.
type Summary struct {
	Name        string                     `json:"prediction_name"`
	BasemapDate string                     `json:"basemap_date"`
	Type        string                     `json:"type"`
	TotalAreaHa float64                    `json:"total_area_ha"`
	Classes     map[string]ClassStatistics `json:"class_statistics"`
}

// Summarize computes per class areas and percentages over a classified grid.
func Summarize(g *raster.Grid, vocabulary []string, name, basemapDate, predType string) Summary {
	pixelArea := g.Transform.PixelAreaHa()
	counts := make([]int, len(vocabulary))
	valid := 0
	for _, v := range g.Data {
		if v == raster.NoData {
			continue
		}
		valid++
		if int(v) < len(counts) {
			counts[v]++
		}
	}

	summary := Summary{
		Name:        name,
		BasemapDate: basemapDate,
		Type:        predType,
		TotalAreaHa: float64(valid) * pixelArea,
		Classes:     make(map[string]ClassStatistics, len(vocabulary)),
	}
	for i, class := range vocabulary {
		stats := ClassStatistics{AreaHa: float64(counts[i]) * pixelArea}
		if valid > 0 {
			stats.Percentage = float64(counts[i]) / float64(valid) * 100
		}
		summary.Classes[class] = stats
	}
	return summary
}
