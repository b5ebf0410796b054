package prediction

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/choco-forest-watch/forest-watch-api/internal/properties"
	"github.com/choco-forest-watch/forest-watch-api/internal/raster"
	"github.com/fogleman/gg"
)

// RenderPNG draws a classified grid as a preview image using the class
// color map. Nodata pixels stay transparent.
func RenderPNG(g *raster.Grid, vocabulary []string, path string) error {
	if g.Width == 0 || g.Height == 0 {
		return fmt.Errorf("cannot render empty grid")
	}

	dc := gg.NewContext(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.At(x, y)
			if v == raster.NoData {
				continue
			}

			class := "unknown"
			if int(v) < len(vocabulary) {
				class = vocabulary[v]
			}
			color, ok := properties.ClassColorMap[class]
			if !ok {
				color = properties.ClassColorMap["unknown"]
			}
			dc.SetRGB255(int(color.R), int(color.G), int(color.B))
			dc.SetPixel(x, y)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save preview %s: %w", path, err)
	}
	return nil
}
