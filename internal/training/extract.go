package training

import (
	"errors"
	"fmt"

	"github.com/choco-forest-watch/forest-watch-api/internal/geo"
	"github.com/choco-forest-watch/forest-watch-api/internal/raster"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// ErrEmptyTrainingData means extraction walked every polygon over every tile
// and came back with zero usable pixels.
var ErrEmptyTrainingData = errors.New("no valid pixels found in training polygons")

// Samples is the flat pixel sample table produced by extraction. Rows stay
// parallel across all slices. FeatureIDs let the splitter keep pixels from
// one polygon on one side of the train/test divide.
type Samples struct {
	X          [][]float64
	Labels     []string
	FeatureIDs []string
	Dates      []string
}

func (s *Samples) Len() int {
	return len(s.Labels)
}

// Append merges another sample set into this one.
func (s *Samples) Append(other *Samples) {
	s.X = append(s.X, other.X...)
	s.Labels = append(s.Labels, other.Labels...)
	s.FeatureIDs = append(s.FeatureIDs, other.FeatureIDs...)
	s.Dates = append(s.Dates, other.Dates...)
}

// ExtractSamples collects labeled pixel samples from every (tile, polygon)
// pair that overlaps. Polygon geometry is WGS84 and gets reprojected to the
// tile CRS. Rasterization includes every pixel the polygon touches, not just
// pixels whose center is covered, so thin or small polygons still yield
// samples. Nodata pixels are skipped. A failure on one pair is logged and
// absorbed; only an empty overall result is an error.
func ExtractSamples(tiles []*raster.Tile, features []geo.TrainingFeature, basemapDate string) (*Samples, error) {
	samples := &Samples{}

	bar := progressbar.Default(int64(len(tiles)*len(features)), fmt.Sprintf("extracting samples %s", basemapDate))
	for _, tile := range tiles {
		tileBounds := tile.Bounds()
		for _, feature := range features {
			bar.Add(1)

			geom := feature.Geometry
			if tile.EPSG == raster.WebMercatorEPSG {
				geom = geo.ToMercator(geom)
			}
			if !geom.Bound().Intersects(tileBounds) {
				continue
			}

			n, err := extractPair(samples, tile, geom, feature.ClassLabel, feature.ID, basemapDate)
			if err != nil {
				log.Warn().
					Err(err).
					Str("tile", tile.ID).
					Str("feature", feature.ID).
					Msg("skipping polygon on tile")
				continue
			}
			if n == 0 {
				log.Debug().
					Str("tile", tile.ID).
					Str("feature", feature.ID).
					Msg("polygon produced no valid pixels on tile")
			}
		}
	}
	bar.Finish()

	if samples.Len() == 0 {
		return nil, ErrEmptyTrainingData
	}
	log.Info().
		Int("samples", samples.Len()).
		Int("polygons", len(features)).
		Str("basemap_date", basemapDate).
		Msg("extracted training samples")
	return samples, nil
}

func extractPair(samples *Samples, tile *raster.Tile, geom orb.Geometry, label, featureID, basemapDate string) (int, error) {
	if len(tile.Bands) == 0 {
		return 0, fmt.Errorf("tile %s has no bands", tile.ID)
	}

	mask := raster.RasterizeMask(geom, tile.Transform, tile.Width, tile.Height, true)

	count := 0
	for y := 0; y < tile.Height; y++ {
		for x := 0; x < tile.Width; x++ {
			if !mask[y*tile.Width+x] || tile.IsNoData(x, y) {
				continue
			}
			samples.X = append(samples.X, tile.PixelVector(x, y))
			samples.Labels = append(samples.Labels, label)
			samples.FeatureIDs = append(samples.FeatureIDs, featureID)
			samples.Dates = append(samples.Dates, basemapDate)
			count++
		}
	}
	return count, nil
}
