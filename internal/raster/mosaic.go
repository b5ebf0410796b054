package raster

import (
	"errors"
	"fmt"
	"math"
)

// Mosaic merges per tile grids into one covering raster. Grids are written
// in the order given and earlier grids take precedence where tiles overlap:
// a later grid only fills pixels still holding the nodata sentinel. Callers
// sort tiles by id so the precedence is deterministic run to run.
func Mosaic(grids []*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return nil, errors.New("no grids to mosaic")
	}

	first := grids[0]
	resX, resY := first.Transform.Resolution()
	const eps = 1e-6
	for _, g := range grids[1:] {
		rx, ry := g.Transform.Resolution()
		if math.Abs(rx-resX) > eps || math.Abs(ry-resY) > eps {
			return nil, fmt.Errorf("mosaic resolution mismatch: (%f,%f) vs (%f,%f)", resX, resY, rx, ry)
		}
		if g.EPSG != first.EPSG {
			return nil, fmt.Errorf("mosaic CRS mismatch: EPSG:%d vs EPSG:%d", first.EPSG, g.EPSG)
		}
	}

	bounds := first.Bounds()
	for _, g := range grids[1:] {
		bounds = bounds.Union(g.Bounds())
	}

	transform := first.Transform
	transform[0] = bounds.Min[0]
	transform[3] = bounds.Max[1]

	width := int(math.Round((bounds.Max[0] - bounds.Min[0]) / resX))
	height := int(math.Round((bounds.Max[1] - bounds.Min[1]) / resY))
	out := NewGrid(width, height, transform, first.EPSG)

	for _, g := range grids {
		ox, oy := g.Transform.PixelToGeo(0, 0)
		px, py := transform.GeoToPixel(ox+resX/2, oy-resY/2)
		for y := 0; y < g.Height; y++ {
			ty := py + y
			if ty < 0 || ty >= height {
				continue
			}
			for x := 0; x < g.Width; x++ {
				tx := px + x
				if tx < 0 || tx >= width {
					continue
				}
				v := g.At(x, y)
				if v == NoData {
					continue
				}
				if out.At(tx, ty) == NoData {
					out.Set(tx, ty, v)
				}
			}
		}
	}
	return out, nil
}
