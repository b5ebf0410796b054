package prediction

import (
	"fmt"
	"sort"

	"github.com/choco-forest-watch/forest-watch-api/internal/geo"
	"github.com/choco-forest-watch/forest-watch-api/internal/ml"
	"github.com/choco-forest-watch/forest-watch-api/internal/raster"
	"github.com/choco-forest-watch/forest-watch-api/internal/training"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// PredictionError wraps any failure inside the inference stage.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// Predict classifies every tile for one basemap period and assembles a
// single AOI wide land cover raster. Pixel values are global vocabulary
// indices, 255 is nodata. The AOI geometry is WGS84.
//
// Tiles are classified independently, remapped from the model's dense class
// ids to global indices, mosaicked in tile id order, optionally sieved, and
// finally clipped to the AOI.
func Predict(tiles []*raster.Tile, artifact *training.ModelArtifact, aoi orb.Geometry, basemapDate string) (*raster.Grid, error) {
	if len(tiles) == 0 {
		return nil, &PredictionError{Err: fmt.Errorf("no tiles to classify")}
	}

	dateCode, monthCode, err := artifact.DateEncoder.Encode(basemapDate)
	if err != nil {
		return nil, &PredictionError{Err: err}
	}

	sorted := make([]*raster.Tile, len(tiles))
	copy(sorted, tiles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	grids := make([]*raster.Grid, 0, len(sorted))
	bar := progressbar.Default(int64(len(sorted)), fmt.Sprintf("classifying tiles %s", basemapDate))
	for _, tile := range sorted {
		grid, err := classifyTile(tile, artifact, float64(dateCode), float64(monthCode))
		if err != nil {
			return nil, &PredictionError{Err: fmt.Errorf("tile %s: %w", tile.ID, err)}
		}
		grids = append(grids, grid)
		bar.Add(1)
	}
	bar.Finish()

	mosaic, err := raster.Mosaic(grids)
	if err != nil {
		return nil, &PredictionError{Err: err}
	}

	if size := artifact.Classifier.Params.SieveSize; size > 1 {
		mosaic = raster.Sieve(mosaic, size)
	}

	clipGeom := aoi
	if mosaic.EPSG == raster.WebMercatorEPSG {
		clipGeom = geo.ToMercator(aoi)
	}
	result := raster.ClipToGeometry(mosaic, clipGeom)

	log.Info().
		Str("basemap_date", basemapDate).
		Int("tiles", len(sorted)).
		Int("valid_pixels", result.CountValid()).
		Msg("generated land cover prediction")
	return result, nil
}

func classifyTile(tile *raster.Tile, artifact *training.ModelArtifact, dateCode, monthCode float64) (*raster.Grid, error) {
	numBands := len(tile.Bands)
	if numBands+2 != artifact.Classifier.NumFeatures {
		return nil, fmt.Errorf("tile has %d bands but model expects %d features", numBands, artifact.Classifier.NumFeatures)
	}

	grid := raster.NewGrid(tile.Width, tile.Height, tile.Transform, tile.EPSG)
	vector := make([]float64, numBands+2)
	vector[numBands] = dateCode
	vector[numBands+1] = monthCode

	for y := 0; y < tile.Height; y++ {
		for x := 0; x < tile.Width; x++ {
			if tile.IsNoData(x, y) {
				continue
			}
			idx := y*tile.Width + x
			for b, band := range tile.Bands {
				vector[b] = float64(band[idx])
			}
			compact := artifact.Classifier.Predict(vector)
			global, ok := artifact.ClassMap.GlobalIndex(compact)
			if !ok {
				return nil, fmt.Errorf("class id %d has no global mapping", compact)
			}
			grid.Set(x, y, uint8(global))
		}
	}
	return grid, nil
}
