package deforestation

import (
	"sort"

	"github.com/choco-forest-watch/forest-watch-api/internal/geo"
	"github.com/choco-forest-watch/forest-watch-api/internal/raster"
	"github.com/paulmach/orb"
)

// Hotspot sources.
const (
	SourceML  = "ml"  // patches vectorized from the change raster
	SourceGFW = "gfw" // patches decoded from external alert tiles
)

// Hotspot is one contiguous deforestation patch with its shape descriptors.
// Geometry is Web Mercator so area and perimeter are in meters; the
// centroid is kept in lat/lon for display.
type Hotspot struct {
	Geometry    orb.Polygon
	AreaHa      float64
	PerimeterM  float64
	Compactness float64
	EdgeDensity float64
	CentroidLon float64
	CentroidLat float64
	Source      string
	Confidence  *int
	// VerificationStatus is nil until a reviewer has looked at the
	// patch, then "verified", "rejected" or "unsure".
	VerificationStatus *string
}

// LocalHotspots vectorizes the deforestation patches of a binary change
// raster into polygons with shape metrics. The raster is expected in Web
// Mercator, the projection change rasters are written in.
func LocalHotspots(change *raster.Grid) []Hotspot {
	regions := raster.Vectorize(change, ChangeDeforestation)

	hotspots := make([]Hotspot, 0, len(regions))
	for _, region := range regions {
		hotspots = append(hotspots, fromPolygon(region.Polygon, SourceML, nil))
	}
	return hotspots
}

func fromPolygon(polygon orb.Polygon, source string, confidence *int) Hotspot {
	area := geo.AreaM2(polygon)
	perimeter := geo.PerimeterM(polygon)
	centroid := geo.ToWGS84(geo.Centroid(polygon)).(orb.Point)
	return Hotspot{
		Geometry:    polygon,
		AreaHa:      area / 10000,
		PerimeterM:  perimeter,
		Compactness: geo.Compactness(area, perimeter),
		EdgeDensity: geo.EdgeDensity(perimeter, area),
		CentroidLon: centroid[0],
		CentroidLat: centroid[1],
		Source:      source,
		Confidence:  confidence,
	}
}

// FilterHotspots keeps patches of at least minAreaHa hectares from the
// given source ("all" or empty keeps every source), largest first.
func FilterHotspots(hotspots []Hotspot, minAreaHa float64, source string) []Hotspot {
	out := make([]Hotspot, 0, len(hotspots))
	for _, h := range hotspots {
		if h.AreaHa < minAreaHa {
			continue
		}
		if source != "" && source != "all" && h.Source != source {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AreaHa > out[j].AreaHa })
	return out
}

// SourceStatistics summarize the patches contributed by one alert source.
type SourceStatistics struct {
	Count       int     `json:"count"`
	TotalAreaHa float64 `json:"total_area_ha"`
}

// Statistics aggregates a hotspot set overall and per source.
func Statistics(hotspots []Hotspot) (total SourceStatistics, bySource map[string]SourceStatistics) {
	bySource = map[string]SourceStatistics{}
	for _, h := range hotspots {
		total.Count++
		total.TotalAreaHa += h.AreaHa

		s := bySource[h.Source]
		s.Count++
		s.TotalAreaHa += h.AreaHa
		bySource[h.Source] = s
	}
	return total, bySource
}
