package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/choco-forest-watch/forest-watch-api/internal/deforestation"
	"github.com/choco-forest-watch/forest-watch-api/internal/geo"
	"github.com/choco-forest-watch/forest-watch-api/internal/properties"
	"github.com/choco-forest-watch/forest-watch-api/internal/raster"
	"github.com/choco-forest-watch/forest-watch-api/internal/store"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// AnalyzeDeforestation differences the land cover predictions of two
// periods, persists the binary change raster as a deforestation prediction
// and returns the change report. Both predictions must exist and come from
// the project's current model.
func (p *Pipeline) AnalyzeDeforestation(projectID uint, date1, date2 string) (*store.Prediction, *deforestation.ChangeReport, error) {
	project, err := p.Store.GetProject(projectID)
	if err != nil {
		return nil, nil, err
	}
	model, err := p.Store.GetTrainedModel(projectID)
	if err != nil {
		return nil, nil, err
	}
	vocabulary, err := project.Classes()
	if err != nil {
		return nil, nil, err
	}
	aoi, err := geo.ParseAOI([]byte(project.AOIGeoJSON))
	if err != nil {
		return nil, nil, err
	}

	pred1, err := p.Store.FindPrediction(projectID, model.ID, store.PredictionTypeLandCover, date1, "")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: no prediction for %s from the current model", deforestation.ErrPredictionsNotComparable, date1)
	}
	pred2, err := p.Store.FindPrediction(projectID, model.ID, store.PredictionTypeLandCover, date2, "")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: no prediction for %s from the current model", deforestation.ErrPredictionsNotComparable, date2)
	}

	g1, err := raster.ReadGrid(pred1.RasterPath)
	if err != nil {
		return nil, nil, err
	}
	g2, err := raster.ReadGrid(pred2.RasterPath)
	if err != nil {
		return nil, nil, err
	}

	change, report, err := deforestation.AnalyzeChange(g1, g2, vocabulary, aoi)
	if err != nil {
		return nil, nil, err
	}

	rasterPath := filepath.Join(properties.RootPath(), "data", "predictions",
		fmt.Sprintf("project_%d_%s_%s_deforestation.tif", projectID, date1, date2))
	if err := os.MkdirAll(filepath.Dir(rasterPath), 0755); err != nil {
		return nil, nil, err
	}
	if err := raster.WriteGrid(rasterPath, change); err != nil {
		return nil, nil, err
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, nil, err
	}

	record := &store.Prediction{
		ProjectID:    projectID,
		ModelID:      model.ID,
		Type:         store.PredictionTypeDeforestation,
		BasemapDate:  date1,
		ComparedDate: date2,
		Name:         fmt.Sprintf("%s deforestation %s to %s", project.Name, date1, date2),
		RasterPath:   rasterPath,
		SummaryJSON:  string(reportJSON),
	}
	if err := p.Store.UpsertPrediction(record); err != nil {
		return nil, nil, err
	}

	stored, err := p.Store.FindPrediction(projectID, model.ID, store.PredictionTypeDeforestation, date1, date2)
	if err != nil {
		return nil, nil, err
	}
	return stored, report, nil
}

// HotspotRequest parameterizes hotspot generation over one deforestation
// prediction.
type HotspotRequest struct {
	PredictionID  uint
	MinAreaHa     float64
	Source        string // "ml", "gfw" or "all"
	IncludeAlerts bool
	// Regenerate forces recomputation even when hotspots are already
	// stored for the prediction.
	Regenerate bool
}

// Hotspots returns the filtered hotspot set of a deforestation prediction
// together with its GeoJSON FeatureCollection, computing and persisting the
// full set on first call and serving it from the database afterwards.
func (p *Pipeline) Hotspots(ctx context.Context, req HotspotRequest) ([]deforestation.Hotspot, []byte, error) {
	pred, err := p.Store.GetPrediction(req.PredictionID)
	if err != nil {
		return nil, nil, err
	}
	if pred.Type != store.PredictionTypeDeforestation {
		return nil, nil, fmt.Errorf("prediction %d is not a deforestation raster", pred.ID)
	}

	stored, err := p.Store.HotspotsForPrediction(pred.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(stored) == 0 || req.Regenerate {
		hotspots, err := p.computeHotspots(ctx, pred, req.IncludeAlerts)
		if err != nil {
			return nil, nil, err
		}
		if err := p.Store.ReplaceHotspots(pred.ID, toRecords(hotspots)); err != nil {
			return nil, nil, err
		}
		stored, err = p.Store.HotspotsForPrediction(pred.ID)
		if err != nil {
			return nil, nil, err
		}
	}

	hotspots, err := fromRecords(stored)
	if err != nil {
		return nil, nil, err
	}
	filtered := deforestation.FilterHotspots(hotspots, req.MinAreaHa, req.Source)
	collection, err := deforestation.FeatureCollection(filtered, req.MinAreaHa)
	if err != nil {
		return nil, nil, err
	}
	return filtered, collection, nil
}

func (p *Pipeline) computeHotspots(ctx context.Context, pred *store.Prediction, includeAlerts bool) ([]deforestation.Hotspot, error) {
	change, err := raster.ReadGrid(pred.RasterPath)
	if err != nil {
		return nil, err
	}
	hotspots := deforestation.LocalHotspots(change)

	if includeAlerts {
		alertHotspots, err := p.alertHotspots(ctx, pred)
		if err != nil {
			log.Warn().Err(err).Msg("failed to include alert hotspots")
		} else {
			hotspots = append(hotspots, alertHotspots...)
		}
	}
	return hotspots, nil
}

// alertHotspots pulls external alert tiles for the prediction's AOI and
// decodes alerts inside the compared date window.
func (p *Pipeline) alertHotspots(ctx context.Context, pred *store.Prediction) ([]deforestation.Hotspot, error) {
	project, err := p.Store.GetProject(pred.ProjectID)
	if err != nil {
		return nil, err
	}
	aoi, err := geo.ParseAOI([]byte(project.AOIGeoJSON))
	if err != nil {
		return nil, err
	}

	start, end, err := periodWindow(pred.BasemapDate, pred.ComparedDate)
	if err != nil {
		return nil, err
	}

	client := deforestation.NewAlertClient()
	grids, err := client.FetchAlertGrids(ctx, aoi.Bound())
	if err != nil {
		return nil, err
	}

	var hotspots []deforestation.Hotspot
	for _, grid := range grids {
		hotspots = append(hotspots, deforestation.AlertHotspots(grid, aoi, start, end)...)
	}
	return hotspots, nil
}

// periodWindow expands a pair of basemap periods to the calendar window
// from the first day of the first to the last day of the second.
func periodWindow(date1, date2 string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", date1)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid basemap date %q: %w", date1, err)
	}
	second, err := time.Parse("2006-01", date2)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid basemap date %q: %w", date2, err)
	}
	end := second.AddDate(0, 1, -1)
	return start, end, nil
}

func toRecords(hotspots []deforestation.Hotspot) []store.DeforestationHotspot {
	records := make([]store.DeforestationHotspot, 0, len(hotspots))
	for _, h := range hotspots {
		geomJSON, err := geo.MarshalGeometry(h.Geometry)
		if err != nil {
			log.Warn().Err(err).Msg("skipping hotspot with unserializable geometry")
			continue
		}
		records = append(records, store.DeforestationHotspot{
			GeometryGeoJSON:    string(geomJSON),
			AreaHa:             h.AreaHa,
			PerimeterM:         h.PerimeterM,
			Compactness:        h.Compactness,
			EdgeDensity:        h.EdgeDensity,
			CentroidLon:        h.CentroidLon,
			CentroidLat:        h.CentroidLat,
			Source:             h.Source,
			Confidence:         h.Confidence,
			VerificationStatus: h.VerificationStatus,
		})
	}
	return records
}

func fromRecords(records []store.DeforestationHotspot) ([]deforestation.Hotspot, error) {
	hotspots := make([]deforestation.Hotspot, 0, len(records))
	for _, r := range records {
		g, err := geojson.UnmarshalGeometry([]byte(r.GeometryGeoJSON))
		if err != nil {
			return nil, fmt.Errorf("corrupt geometry on hotspot %d: %w", r.ID, err)
		}
		polygon, ok := g.Geometry().(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("hotspot %d geometry is not a polygon", r.ID)
		}
		hotspots = append(hotspots, deforestation.Hotspot{
			Geometry:           polygon,
			AreaHa:             r.AreaHa,
			PerimeterM:         r.PerimeterM,
			Compactness:        r.Compactness,
			EdgeDensity:        r.EdgeDensity,
			CentroidLon:        r.CentroidLon,
			CentroidLat:        r.CentroidLat,
			Source:             r.Source,
			Confidence:         r.Confidence,
			VerificationStatus: r.VerificationStatus,
		})
	}
	return hotspots, nil
}
