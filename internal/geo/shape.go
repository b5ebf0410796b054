package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// ToMercator reprojects a WGS84 geometry to Web Mercator, the projected CRS
// used for all stored hotspot geometry and area math.
func ToMercator(g orb.Geometry) orb.Geometry {
	return project.Geometry(orb.Clone(g), project.WGS84.ToMercator)
}

// ToWGS84 reprojects a Web Mercator geometry back to geographic lat/lon.
func ToWGS84(g orb.Geometry) orb.Geometry {
	return project.Geometry(orb.Clone(g), project.Mercator.ToWGS84)
}

// AreaM2 returns the planar area of a geometry. Units of the active CRS are
// assumed to be meters.
func AreaM2(g orb.Geometry) float64 {
	return math.Abs(planar.Area(g))
}

// AreaHa returns the planar area in hectares.
func AreaHa(g orb.Geometry) float64 {
	return AreaM2(g) / 10000
}

// PerimeterM returns the boundary length of a polygon in meters, outer ring
// plus any holes.
func PerimeterM(g orb.Geometry) float64 {
	return planar.Length(g)
}

// Compactness is the Polsby-Popper score 4*pi*area/perimeter^2. A perfect
// circle scores 1.0, every other shape strictly less.
func Compactness(areaM2, perimeterM float64) float64 {
	if perimeterM == 0 {
		return 0
	}
	return 4 * math.Pi * areaM2 / (perimeterM * perimeterM)
}

// EdgeDensity is the perimeter to area ratio in 1/m.
func EdgeDensity(perimeterM, areaM2 float64) float64 {
	if areaM2 == 0 {
		return 0
	}
	return perimeterM / areaM2
}

// Centroid returns the area-weighted centroid of a geometry.
func Centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}

// BoundsIntersect reports whether the bounding boxes of two geometries
// overlap. Cheap pre-test before any per-pixel masking.
func BoundsIntersect(a, b orb.Geometry) bool {
	return a.Bound().Intersects(b.Bound())
}
