package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillGrid(g *Grid, v uint8) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

func TestSieveRemovesSmallRegions(t *testing.T) {
	t.Parallel()

	g := NewGrid(10, 10, testTransform, WebMercatorEPSG)
	fillGrid(g, 0)
	g.Set(4, 4, 1) // isolated single pixel

	out := Sieve(g, 10)
	assert.Equal(t, uint8(0), out.At(4, 4))
	assert.Equal(t, 0, out.CountValue(1))
}

func TestSieveKeepsLargeRegions(t *testing.T) {
	t.Parallel()

	g := NewGrid(10, 10, testTransform, WebMercatorEPSG)
	fillGrid(g, 0)
	// 3x4 block of class 1, 12 pixels.
	for y := 2; y < 6; y++ {
		for x := 2; x < 5; x++ {
			g.Set(x, y, 1)
		}
	}

	out := Sieve(g, 10)
	assert.Equal(t, 12, out.CountValue(1))
}

func TestSieveAbsorbsIntoMostFrequentNeighbor(t *testing.T) {
	t.Parallel()

	g := NewGrid(3, 3, testTransform, WebMercatorEPSG)
	fillGrid(g, 2)
	g.Set(0, 1, 3)
	g.Set(1, 1, 1) // center pixel bordered by three 2s and one 3

	out := Sieve(g, 2)
	assert.Equal(t, uint8(2), out.At(1, 1))
}

func TestSieveNeverTouchesNoData(t *testing.T) {
	t.Parallel()

	g := NewGrid(5, 5, testTransform, WebMercatorEPSG)
	fillGrid(g, 0)
	g.Set(2, 2, NoData)

	out := Sieve(g, 10)
	assert.Equal(t, NoData, out.At(2, 2))
}

func TestSieveDisabledBelowTwo(t *testing.T) {
	t.Parallel()

	g := NewGrid(3, 3, testTransform, WebMercatorEPSG)
	fillGrid(g, 0)
	g.Set(1, 1, 1)

	out := Sieve(g, 1)
	require.Equal(t, uint8(1), out.At(1, 1))
}
