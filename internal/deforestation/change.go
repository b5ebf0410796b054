package deforestation

import (
	"errors"
	"fmt"
	"math"

	"github.com/choco-forest-watch/forest-watch-api/internal/geo"
	"github.com/choco-forest-watch/forest-watch-api/internal/raster"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
)

// ErrPredictionsNotComparable means the two land cover rasters do not share
// extent, resolution or class vocabulary and cannot be differenced.
var ErrPredictionsNotComparable = errors.New("predictions are not comparable")

// ChangeSieveSize is the minimum pixel count a change patch must reach to
// survive the denoise filter. Smaller patches at ~5m resolution are almost
// always classifier speckle.
const ChangeSieveSize = 10

// Change raster values. Everything else is the nodata sentinel.
const (
	ChangeNone          uint8 = 0
	ChangeDeforestation uint8 = 1
)

// ChangeReport carries the statistics of one change analysis between two
// classified rasters of the same area.
type ChangeReport struct {
	ClassNames             []string           `json:"class_names"`
	AreasPeriod1           map[string]float64 `json:"areas_period1_ha"`
	AreasPeriod2           map[string]float64 `json:"areas_period2_ha"`
	PercentagesPeriod1     map[string]float64 `json:"percentages_period1"`
	PercentagesPeriod2     map[string]float64 `json:"percentages_period2"`
	NetChanges             map[string]float64 `json:"net_changes_ha"`
	TotalAreaHa            float64            `json:"total_area_ha"`
	TotalChangeHa          float64            `json:"total_change_ha"`
	ChangeRatePercent      float64            `json:"change_rate_percent"`
	InitialForestAreaHa    float64            `json:"initial_forest_area_ha"`
	DeforestedAreaHa       float64            `json:"deforested_area_ha"`
	DeforestationRate      float64            `json:"deforestation_rate_percent"`
	ConfusionMatrix        [][]int            `json:"confusion_matrix"`
	ConfusionMatrixPercent [][]float64        `json:"confusion_matrix_percent"`
}

// AnalyzeChange compares two land cover rasters of the same AOI and returns
// the binary deforestation raster plus the full change report. g1 is the
// earlier period. The vocabulary must be the shared class list of both
// rasters; callers are responsible for verifying both predictions came from
// the same project vocabulary before calling.
//
// A pixel counts as deforestation only when it is Forest in the first
// period, anything but Forest in the second, and neither period classified
// it as Cloud or Shadow. Obscured pixels are excluded rather than guessed.
func AnalyzeChange(g1, g2 *raster.Grid, vocabulary []string, aoi orb.Geometry) (*raster.Grid, *ChangeReport, error) {
	if !g1.SameShape(g2) {
		return nil, nil, fmt.Errorf("%w: rasters differ in extent or resolution", ErrPredictionsNotComparable)
	}

	forestIdx := -1
	obscured := map[uint8]bool{}
	for i, class := range vocabulary {
		switch class {
		case "Forest":
			forestIdx = i
		case "Cloud", "Shadow":
			obscured[uint8(i)] = true
		}
	}
	if forestIdx < 0 {
		return nil, nil, fmt.Errorf("%w: vocabulary has no Forest class", ErrPredictionsNotComparable)
	}
	forest := uint8(forestIdx)

	change := raster.NewGrid(g1.Width, g1.Height, g1.Transform, g1.EPSG)
	for i := range g1.Data {
		v1, v2 := g1.Data[i], g2.Data[i]
		if v1 == raster.NoData || v2 == raster.NoData {
			continue
		}
		if obscured[v1] || obscured[v2] {
			continue
		}
		if v1 == forest && v2 != forest {
			change.Data[i] = ChangeDeforestation
		} else {
			change.Data[i] = ChangeNone
		}
	}

	change = raster.Sieve(change, ChangeSieveSize)

	clipGeom := aoi
	if change.EPSG == raster.WebMercatorEPSG {
		clipGeom = geo.ToMercator(aoi)
	}
	change = raster.ClipToGeometry(change, clipGeom)

	report := buildReport(g1, g2, change, vocabulary, forest)
	log.Info().
		Float64("deforested_ha", report.DeforestedAreaHa).
		Float64("deforestation_rate", report.DeforestationRate).
		Msg("analyzed land cover change")
	return change, report, nil
}

func buildReport(g1, g2, change *raster.Grid, vocabulary []string, forest uint8) *ChangeReport {
	n := len(vocabulary)
	pixelArea := g1.Transform.PixelAreaHa()

	counts1 := make([]int, n)
	counts2 := make([]int, n)
	matrix := make([][]int, n)
	for i := range matrix {
		matrix[i] = make([]int, n)
	}

	// Validity follows the first raster: its classified footprint is the
	// analysis area. Nodata in the second raster only thins the period 2
	// counts and the transition matrix.
	valid := 0
	for i := range g1.Data {
		v1, v2 := g1.Data[i], g2.Data[i]
		if v1 == raster.NoData {
			continue
		}
		valid++
		if int(v1) < n {
			counts1[v1]++
		}
		if v2 == raster.NoData {
			continue
		}
		if int(v2) < n {
			counts2[v2]++
		}
		if int(v1) < n && int(v2) < n {
			matrix[v1][v2]++
		}
	}

	report := &ChangeReport{
		ClassNames:         vocabulary,
		AreasPeriod1:       map[string]float64{},
		AreasPeriod2:       map[string]float64{},
		PercentagesPeriod1: map[string]float64{},
		PercentagesPeriod2: map[string]float64{},
		NetChanges:         map[string]float64{},
		TotalAreaHa:        float64(valid) * pixelArea,
		ConfusionMatrix:    matrix,
	}

	totalShift := 0.0
	for i, class := range vocabulary {
		area1 := float64(counts1[i]) * pixelArea
		area2 := float64(counts2[i]) * pixelArea
		report.AreasPeriod1[class] = area1
		report.AreasPeriod2[class] = area2
		if valid > 0 {
			report.PercentagesPeriod1[class] = float64(counts1[i]) / float64(valid) * 100
			report.PercentagesPeriod2[class] = float64(counts2[i]) / float64(valid) * 100
		}
		report.NetChanges[class] = area2 - area1
		totalShift += math.Abs(area2 - area1)
	}
	// Every hectare that changed class is counted once as a loss and once
	// as a gain, so the summed absolute shift is halved.
	report.TotalChangeHa = totalShift / 2
	if report.TotalAreaHa > 0 {
		report.ChangeRatePercent = report.TotalChangeHa / report.TotalAreaHa * 100
	}

	matrixTotal := 0
	for i := range matrix {
		for j := range matrix[i] {
			matrixTotal += matrix[i][j]
		}
	}
	report.ConfusionMatrixPercent = make([][]float64, n)
	for i := range matrix {
		report.ConfusionMatrixPercent[i] = make([]float64, n)
		for j := range matrix[i] {
			if matrixTotal > 0 {
				report.ConfusionMatrixPercent[i][j] = float64(matrix[i][j]) / float64(matrixTotal) * 100
			}
		}
	}

	report.InitialForestAreaHa = float64(counts1[forest]) * pixelArea
	report.DeforestedAreaHa = float64(change.CountValue(ChangeDeforestation)) * pixelArea
	if report.InitialForestAreaHa > 0 {
		report.DeforestationRate = report.DeforestedAreaHa / report.InitialForestAreaHa * 100
	}
	return report
}
