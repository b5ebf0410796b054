package raster

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// geometryContains tests point membership for polygons and multipolygons.
func geometryContains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	case orb.Bound:
		return geom.Contains(pt)
	default:
		return false
	}
}

func geometryRings(g orb.Geometry) []orb.Ring {
	switch geom := g.(type) {
	case orb.Polygon:
		return geom
	case orb.MultiPolygon:
		var rings []orb.Ring
		for _, poly := range geom {
			rings = append(rings, poly...)
		}
		return rings
	default:
		return nil
	}
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d := func(a, b, c orb.Point) float64 {
		return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	}
	d1 := d(q1, q2, p1)
	d2 := d(q1, q2, p2)
	d3 := d(p1, p2, q1)
	d4 := d(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	on := func(a, b, c orb.Point) bool {
		return d(a, b, c) == 0 &&
			c[0] >= min(a[0], b[0]) && c[0] <= max(a[0], b[0]) &&
			c[1] >= min(a[1], b[1]) && c[1] <= max(a[1], b[1])
	}
	return on(q1, q2, p1) || on(q1, q2, p2) || on(p1, p2, q1) || on(p1, p2, q2)
}

// cellTouches reports whether a pixel cell box intersects the geometry at
// all: cell corners or center inside, a geometry vertex inside the cell, or
// a boundary edge crossing a cell edge.
func cellTouches(g orb.Geometry, cell orb.Bound) bool {
	center := orb.Point{(cell.Min[0] + cell.Max[0]) / 2, (cell.Min[1] + cell.Max[1]) / 2}
	corners := []orb.Point{
		cell.Min,
		{cell.Max[0], cell.Min[1]},
		cell.Max,
		{cell.Min[0], cell.Max[1]},
	}
	if geometryContains(g, center) {
		return true
	}
	for _, c := range corners {
		if geometryContains(g, c) {
			return true
		}
	}

	cellEdges := [4][2]orb.Point{
		{corners[0], corners[1]},
		{corners[1], corners[2]},
		{corners[2], corners[3]},
		{corners[3], corners[0]},
	}
	for _, ring := range geometryRings(g) {
		for i := 0; i < len(ring)-1; i++ {
			if cell.Contains(ring[i]) {
				return true
			}
			for _, e := range cellEdges {
				if segmentsIntersect(ring[i], ring[i+1], e[0], e[1]) {
					return true
				}
			}
		}
	}
	return false
}

// RasterizeMask burns a geometry into a boolean mask over a raster of the
// given shape. With allTouched every pixel any part of which falls inside
// the boundary is included; otherwise only pixels whose center is inside.
func RasterizeMask(g orb.Geometry, transform Transform, width, height int, allTouched bool) []bool {
	mask := make([]bool, width*height)
	bound := g.Bound()

	// Restrict the scan to the pixel window covering the geometry.
	x0, y0 := transform.GeoToPixel(bound.Min[0], bound.Max[1])
	x1, y1 := transform.GeoToPixel(bound.Max[0], bound.Min[1])
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	x0 = max(x0-1, 0)
	y0 = max(y0-1, 0)
	x1 = min(x1+1, width-1)
	y1 = min(y1+1, height-1)

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if allTouched {
				cx0, cy0 := transform.PixelToGeo(float64(x), float64(y))
				cx1, cy1 := transform.PixelToGeo(float64(x+1), float64(y+1))
				cell := orb.Bound{
					Min: orb.Point{min(cx0, cx1), min(cy0, cy1)},
					Max: orb.Point{max(cx0, cx1), max(cy0, cy1)},
				}
				if cellTouches(g, cell) {
					mask[y*width+x] = true
				}
			} else {
				cx, cy := transform.PixelCenter(x, y)
				if geometryContains(g, orb.Point{cx, cy}) {
					mask[y*width+x] = true
				}
			}
		}
	}
	return mask
}

// ClipToGeometry sets every pixel whose center falls outside the geometry
// to the nodata sentinel and crops the grid to the geometry's pixel window.
func ClipToGeometry(g *Grid, geom orb.Geometry) *Grid {
	mask := RasterizeMask(geom, g.Transform, g.Width, g.Height, false)

	bound := geom.Bound()
	x0, y0 := g.Transform.GeoToPixel(bound.Min[0], bound.Max[1])
	x1, y1 := g.Transform.GeoToPixel(bound.Max[0], bound.Min[1])
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	x0 = max(x0, 0)
	y0 = max(y0, 0)
	x1 = min(x1, g.Width-1)
	y1 = min(y1, g.Height-1)
	if x1 < x0 || y1 < y0 {
		return NewGrid(0, 0, g.Transform, g.EPSG)
	}

	ox, oy := g.Transform.PixelToGeo(float64(x0), float64(y0))
	transform := g.Transform
	transform[0] = ox
	transform[3] = oy

	out := NewGrid(x1-x0+1, y1-y0+1, transform, g.EPSG)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if mask[y*g.Width+x] {
				out.Set(x-x0, y-y0, g.At(x, y))
			}
		}
	}
	return out
}
