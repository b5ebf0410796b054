package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorizeSingleSquare(t *testing.T) {
	t.Parallel()

	g := NewGrid(4, 4, testTransform, WebMercatorEPSG)
	fillGrid(g, 0)
	// 2x2 block of 1s.
	for y := 1; y <= 2; y++ {
		for x := 1; x <= 2; x++ {
			g.Set(x, y, 1)
		}
	}

	regions := Vectorize(g, 1)
	require.Len(t, regions, 1)
	assert.Equal(t, 4, regions[0].PixelCount())

	// 2x2 pixels at 10m each is a 20x20m square.
	polygon := regions[0].Polygon
	require.Len(t, polygon, 1, "square has no holes")
	assert.InDelta(t, 400, math.Abs(ringArea(polygon[0])), 1e-9)
	// Ring closes on itself.
	assert.Equal(t, polygon[0][0], polygon[0][len(polygon[0])-1])
}

func TestVectorizeSeparateRegions(t *testing.T) {
	t.Parallel()

	g := NewGrid(5, 5, testTransform, WebMercatorEPSG)
	fillGrid(g, 0)
	g.Set(0, 0, 1)
	g.Set(4, 4, 1)
	// Diagonal neighbors are not connected under 4-connectivity.
	g.Set(2, 2, 1)
	g.Set(3, 3, 1)

	regions := Vectorize(g, 1)
	assert.Len(t, regions, 4)
}

func TestVectorizeRegionWithHole(t *testing.T) {
	t.Parallel()

	g := NewGrid(5, 5, testTransform, WebMercatorEPSG)
	fillGrid(g, 0)
	// Ring of 1s around pixel (2,2).
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			if x == 2 && y == 2 {
				continue
			}
			g.Set(x, y, 1)
		}
	}

	regions := Vectorize(g, 1)
	require.Len(t, regions, 1)
	require.Len(t, regions[0].Polygon, 2, "outer shell plus one hole")

	shell := math.Abs(ringArea(regions[0].Polygon[0]))
	hole := math.Abs(ringArea(regions[0].Polygon[1]))
	assert.Greater(t, shell, hole)
	assert.InDelta(t, 900, shell, 1e-9)
	assert.InDelta(t, 100, hole, 1e-9)
}

func TestVectorizeNoMatches(t *testing.T) {
	t.Parallel()

	g := NewGrid(3, 3, testTransform, WebMercatorEPSG)
	fillGrid(g, 0)
	assert.Empty(t, Vectorize(g, 1))
}
