package raster

// Sieve removes connected regions (4-connectivity) smaller than minSize
// pixels, reassigning them to the most frequent class along their border.
// Ties break toward the lower class index so reruns are deterministic.
// Nodata pixels are never reassigned and never absorb anything.
func Sieve(g *Grid, minSize int) *Grid {
	if minSize <= 1 {
		return g.Clone()
	}

	out := g.Clone()
	labels := make([]int, g.Width*g.Height)
	for i := range labels {
		labels[i] = -1
	}

	next := 0
	for start := range g.Data {
		if labels[start] >= 0 || g.Data[start] == NoData {
			continue
		}

		value := g.Data[start]
		region := []int{start}
		labels[start] = next
		neighborCounts := make(map[uint8]int)

		for i := 0; i < len(region); i++ {
			idx := region[i]
			x, y := idx%g.Width, idx/g.Width
			for _, d := range [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}} {
				nx, ny := x+d[0], y+d[1]
				if !g.Contains(nx, ny) {
					continue
				}
				nidx := ny*g.Width + nx
				nv := g.Data[nidx]
				if nv == value {
					if labels[nidx] < 0 {
						labels[nidx] = next
						region = append(region, nidx)
					}
				} else if nv != NoData {
					neighborCounts[nv]++
				}
			}
		}

		if len(region) < minSize && len(neighborCounts) > 0 {
			best := uint8(0)
			bestCount := -1
			for class, count := range neighborCounts {
				if count > bestCount || (count == bestCount && class < best) {
					best = class
					bestCount = count
				}
			}
			for _, idx := range region {
				out.Data[idx] = best
			}
		}
		next++
	}
	return out
}
