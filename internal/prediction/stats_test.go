package prediction

import (
	"testing"

	"github.com/choco-forest-watch/forest-watch-api/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocabulary = []string{"Forest", "Non-Forest", "Cloud", "Shadow", "Water"}

func TestSummarize(t *testing.T) {
	t.Parallel()

	g := raster.NewGrid(10, 10, raster.Transform{0, 10, 0, 100, 0, -10}, raster.WebMercatorEPSG)
	// 60 Forest, 20 Non-Forest, 20 nodata.
	for i := 0; i < 60; i++ {
		g.Data[i] = 0
	}
	for i := 60; i < 80; i++ {
		g.Data[i] = 1
	}

	summary := Summarize(g, vocabulary, "test 2023-01", "2023-01", "landcover")

	assert.Equal(t, "test 2023-01", summary.Name)
	assert.Equal(t, "2023-01", summary.BasemapDate)
	assert.Equal(t, "landcover", summary.Type)

	// 80 valid pixels at 0.01 ha each; nodata contributes nothing.
	assert.InDelta(t, 0.8, summary.TotalAreaHa, 1e-9)

	forest := summary.Classes["Forest"]
	require.NotNil(t, forest)
	assert.InDelta(t, 0.6, forest.AreaHa, 1e-9)
	assert.InDelta(t, 75.0, forest.Percentage, 1e-9)

	nonForest := summary.Classes["Non-Forest"]
	assert.InDelta(t, 0.2, nonForest.AreaHa, 1e-9)
	assert.InDelta(t, 25.0, nonForest.Percentage, 1e-9)

	water := summary.Classes["Water"]
	assert.Zero(t, water.AreaHa)
	assert.Zero(t, water.Percentage)
}

func TestSummarizeEmptyGrid(t *testing.T) {
	t.Parallel()

	g := raster.NewGrid(5, 5, raster.Transform{0, 10, 0, 50, 0, -10}, raster.WebMercatorEPSG)
	summary := Summarize(g, vocabulary, "empty", "2023-01", "landcover")

	assert.Zero(t, summary.TotalAreaHa)
	assert.Zero(t, summary.Classes["Forest"].Percentage)
}
