package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTransform places the origin at (0,100) with 10m pixels, so a 10x10
// grid covers x 0..100, y 0..100.
var testTransform = Transform{0, 10, 0, 100, 0, -10}

func TestTransformRoundTrip(t *testing.T) {
	t.Parallel()

	gx, gy := testTransform.PixelToGeo(3, 4)
	assert.Equal(t, 30.0, gx)
	assert.Equal(t, 60.0, gy)

	px, py := testTransform.GeoToPixel(35, 55)
	assert.Equal(t, 3, px)
	assert.Equal(t, 4, py)

	cx, cy := testTransform.PixelCenter(0, 0)
	assert.Equal(t, 5.0, cx)
	assert.Equal(t, 95.0, cy)
}

func TestTransformPixelAreaHa(t *testing.T) {
	t.Parallel()

	// 10m x 10m pixel is 0.01 ha.
	assert.InDelta(t, 0.01, testTransform.PixelAreaHa(), 1e-12)
}

func TestNewGridStartsAsNoData(t *testing.T) {
	t.Parallel()

	g := NewGrid(4, 4, testTransform, WebMercatorEPSG)
	assert.Equal(t, 16, g.CountValue(NoData))
	assert.Equal(t, 0, g.CountValid())

	g.Set(1, 2, 3)
	assert.Equal(t, uint8(3), g.At(1, 2))
	assert.Equal(t, 1, g.CountValid())
}

func TestGridBounds(t *testing.T) {
	t.Parallel()

	g := NewGrid(10, 10, testTransform, WebMercatorEPSG)
	b := g.Bounds()
	assert.Equal(t, 0.0, b.Min[0])
	assert.Equal(t, 0.0, b.Min[1])
	assert.Equal(t, 100.0, b.Max[0])
	assert.Equal(t, 100.0, b.Max[1])
}

func TestSameShape(t *testing.T) {
	t.Parallel()

	a := NewGrid(5, 5, testTransform, WebMercatorEPSG)
	b := NewGrid(5, 5, testTransform, WebMercatorEPSG)
	require.True(t, a.SameShape(b))

	c := NewGrid(5, 4, testTransform, WebMercatorEPSG)
	assert.False(t, a.SameShape(c))

	shifted := testTransform
	shifted[0] += 10
	d := NewGrid(5, 5, shifted, WebMercatorEPSG)
	assert.False(t, a.SameShape(d))
}

func TestTileNoData(t *testing.T) {
	t.Parallel()

	tile := &Tile{
		ID:        "t1",
		Width:     2,
		Height:    1,
		Transform: testTransform,
		Bands:     [][]float32{{0, 5}, {0, 6}},
		NoDataVal: 0,
		HasNoData: true,
	}
	assert.True(t, tile.IsNoData(0, 0))
	assert.False(t, tile.IsNoData(1, 0))

	v := tile.PixelVector(1, 0)
	assert.Equal(t, []float64{5, 6}, v)
}
