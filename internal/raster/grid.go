package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// NoData is the reserved pixel value meaning "outside AOI / not classified".
// The class vocabulary is therefore capped below 255 entries.
const NoData uint8 = 255

// Transform is a GDAL style affine geotransform:
// geoX = t[0] + px*t[1] + py*t[2]
// geoY = t[3] + px*t[4] + py*t[5]
type Transform [6]float64

// PixelToGeo returns the geographic coordinates of a pixel corner.
func (t Transform) PixelToGeo(px, py float64) (float64, float64) {
	x := t[0] + px*t[1] + py*t[2]
	y := t[3] + px*t[4] + py*t[5]
	return x, y
}

// PixelCenter returns the geographic coordinates of a pixel center.
func (t Transform) PixelCenter(px, py int) (float64, float64) {
	return t.PixelToGeo(float64(px)+0.5, float64(py)+0.5)
}

// GeoToPixel inverts the transform for axis aligned rasters.
func (t Transform) GeoToPixel(gx, gy float64) (int, int) {
	px := int(math.Floor((gx - t[0]) / t[1]))
	py := int(math.Floor((gy - t[3]) / t[5]))
	return px, py
}

// PixelAreaHa is the area covered by one pixel in hectares, assuming the
// CRS units are meters.
func (t Transform) PixelAreaHa() float64 {
	return math.Abs(t[1]*t[5]) / 10000
}

// Resolution returns the absolute pixel width and height.
func (t Transform) Resolution() (float64, float64) {
	return math.Abs(t[1]), math.Abs(t[5])
}

// Grid is a single band uint8 raster with georeferencing, the working
// representation for every classified output.
type Grid struct {
	Data      []uint8
	Width     int
	Height    int
	Transform Transform
	EPSG      int
}

// NewGrid allocates a grid filled with the nodata sentinel.
func NewGrid(width, height int, transform Transform, epsg int) *Grid {
	data := make([]uint8, width*height)
	for i := range data {
		data[i] = NoData
	}
	return &Grid{Data: data, Width: width, Height: height, Transform: transform, EPSG: epsg}
}

func (g *Grid) At(x, y int) uint8 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v uint8) {
	g.Data[y*g.Width+x] = v
}

func (g *Grid) Contains(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// Bounds returns the geographic bounding box of the grid.
func (g *Grid) Bounds() orb.Bound {
	x0, y0 := g.Transform.PixelToGeo(0, 0)
	x1, y1 := g.Transform.PixelToGeo(float64(g.Width), float64(g.Height))
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

func (g *Grid) Clone() *Grid {
	data := make([]uint8, len(g.Data))
	copy(data, g.Data)
	return &Grid{Data: data, Width: g.Width, Height: g.Height, Transform: g.Transform, EPSG: g.EPSG}
}

// CountValue returns the number of pixels equal to v.
func (g *Grid) CountValue(v uint8) int {
	count := 0
	for _, p := range g.Data {
		if p == v {
			count++
		}
	}
	return count
}

// CountValid returns the number of pixels not equal to the nodata sentinel.
func (g *Grid) CountValid() int {
	return len(g.Data) - g.CountValue(NoData)
}

// SameShape reports whether two grids share bounds and resolution, the
// precondition for any pixel by pixel comparison.
func (g *Grid) SameShape(other *Grid) bool {
	if g.Width != other.Width || g.Height != other.Height {
		return false
	}
	const eps = 1e-6
	for i := range g.Transform {
		if math.Abs(g.Transform[i]-other.Transform[i]) > eps {
			return false
		}
	}
	return true
}

// Tile is a multi band float32 imagery tile as fetched from the provider.
type Tile struct {
	ID        string
	Path      string
	Bands     [][]float32
	Width     int
	Height    int
	Transform Transform
	EPSG      int
	NoDataVal float64
	HasNoData bool
}

// PixelVector returns the per band values of one pixel as a feature vector
// prefix.
func (t *Tile) PixelVector(x, y int) []float64 {
	v := make([]float64, len(t.Bands))
	idx := y*t.Width + x
	for b, band := range t.Bands {
		v[b] = float64(band[idx])
	}
	return v
}

// IsNoData reports whether a pixel equals the tile nodata value in every
// band.
func (t *Tile) IsNoData(x, y int) bool {
	if !t.HasNoData {
		return false
	}
	idx := y*t.Width + x
	for _, band := range t.Bands {
		if float64(band[idx]) != t.NoDataVal {
			return false
		}
	}
	return true
}

// Bounds returns the geographic bounding box of the tile.
func (t *Tile) Bounds() orb.Bound {
	g := Grid{Width: t.Width, Height: t.Height, Transform: t.Transform}
	return g.Bounds()
}

func (t *Tile) String() string {
	return fmt.Sprintf("tile %s (%dx%d, %d bands)", t.ID, t.Width, t.Height, len(t.Bands))
}
