package raster

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// Region is one connected group of pixels sharing a value, with its
// vectorized outline in geographic coordinates.
type Region struct {
	Polygon orb.Polygon
	Cells   [][2]int
}

// PixelCount returns the number of raster cells composing the region.
func (r Region) PixelCount() int {
	return len(r.Cells)
}

type cornerPoint struct {
	x, y int
}

type edge struct {
	from, to cornerPoint
}

// Vectorize extracts every connected region (4-connectivity) of pixels
// equal to target and traces each region's boundary into polygon rings
// using the grid transform. The ring with the largest area is the outer
// shell, remaining rings are holes.
func Vectorize(g *Grid, target uint8) []Region {
	visited := make([]bool, g.Width*g.Height)
	var regions []Region

	for start := range g.Data {
		if visited[start] || g.Data[start] != target {
			continue
		}

		cells := [][2]int{}
		inRegion := make(map[[2]int]bool)
		queue := []int{start}
		visited[start] = true
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			x, y := idx%g.Width, idx/g.Width
			cells = append(cells, [2]int{x, y})
			inRegion[[2]int{x, y}] = true
			for _, d := range [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}} {
				nx, ny := x+d[0], y+d[1]
				if g.Contains(nx, ny) {
					nidx := ny*g.Width + nx
					if !visited[nidx] && g.Data[nidx] == target {
						visited[nidx] = true
						queue = append(queue, nidx)
					}
				}
			}
		}

		polygon := traceOutline(g, inRegion)
		regions = append(regions, Region{Polygon: polygon, Cells: cells})
	}
	return regions
}

// traceOutline chains the exposed cell edges of a region into closed rings.
// Edges are directed so that walking them keeps the region on a consistent
// side, which makes the chain unambiguous except at checkerboard corners,
// where any continuation still closes a valid ring.
func traceOutline(g *Grid, inRegion map[[2]int]bool) orb.Polygon {
	edgesByStart := make(map[cornerPoint][]edge)
	addEdge := func(from, to cornerPoint) {
		edgesByStart[from] = append(edgesByStart[from], edge{from, to})
	}

	for cell := range inRegion {
		x, y := cell[0], cell[1]
		if !inRegion[[2]int{x, y - 1}] { // north side
			addEdge(cornerPoint{x + 1, y}, cornerPoint{x, y})
		}
		if !inRegion[[2]int{x, y + 1}] { // south side
			addEdge(cornerPoint{x, y + 1}, cornerPoint{x + 1, y + 1})
		}
		if !inRegion[[2]int{x - 1, y}] { // west side
			addEdge(cornerPoint{x, y}, cornerPoint{x, y + 1})
		}
		if !inRegion[[2]int{x + 1, y}] { // east side
			addEdge(cornerPoint{x + 1, y + 1}, cornerPoint{x + 1, y})
		}
	}

	var rings []orb.Ring
	for len(edgesByStart) > 0 {
		var first edge
		for _, list := range edgesByStart {
			first = list[0]
			break
		}

		ring := orb.Ring{cornerToGeo(g, first.from)}
		current := first
		for {
			ring = append(ring, cornerToGeo(g, current.to))
			remaining := edgesByStart[current.from]
			if len(remaining) == 1 {
				delete(edgesByStart, current.from)
			} else {
				for i, e := range remaining {
					if e == current {
						edgesByStart[current.from] = append(remaining[:i], remaining[i+1:]...)
						break
					}
				}
			}
			nextList, ok := edgesByStart[current.to]
			if !ok || current.to == first.from {
				break
			}
			current = nextList[0]
		}
		if len(ring) >= 4 {
			rings = append(rings, ring)
		}
	}

	// Largest ring is the shell, the rest are holes.
	sort.Slice(rings, func(i, j int) bool {
		return math.Abs(ringArea(rings[i])) > math.Abs(ringArea(rings[j]))
	})
	return orb.Polygon(rings)
}

func ringArea(r orb.Ring) float64 {
	area := 0.0
	for i := 0; i < len(r)-1; i++ {
		area += r[i][0]*r[i+1][1] - r[i+1][0]*r[i][1]
	}
	return area / 2
}

func cornerToGeo(g *Grid, c cornerPoint) orb.Point {
	x, y := g.Transform.PixelToGeo(float64(c.x), float64(c.y))
	return orb.Point{x, y}
}
