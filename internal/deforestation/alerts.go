package deforestation

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/choco-forest-watch/forest-watch-api/internal/geo"
	"github.com/choco-forest-watch/forest-watch-api/internal/properties"
	"github.com/choco-forest-watch/forest-watch-api/internal/raster"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
)

// alertEpoch is day zero of the packed alert encoding. Day counts in alert
// pixels are offsets from the end of 2014.
var alertEpoch = time.Date(2014, 12, 31, 0, 0, 0, 0, time.UTC)

// DecodeAlertValue unpacks one alert pixel. The leading decimal digit is
// the confidence level and the remaining digits are days since the epoch.
// Zero means no alert.
func DecodeAlertValue(v uint32) (date time.Time, confidence int, ok bool) {
	if v < 10 {
		return time.Time{}, 0, false
	}
	digits := 1
	for p := v; p >= 10; p /= 10 {
		digits++
	}
	scale := uint32(math.Pow10(digits - 1))
	confidence = int(v / scale)
	days := int(v % scale)
	return alertEpoch.AddDate(0, 0, days), confidence, true
}

// AlertGrid is one decoded alert tile, uint32 packed values in geographic
// coordinates.
type AlertGrid struct {
	Data      []uint32
	Width     int
	Height    int
	Transform raster.Transform
}

// AlertHotspots extracts deforestation patches from an alert tile: pixels
// inside the AOI whose decoded date falls inside [start, end]. Each patch
// carries the rounded mean confidence of its pixels. The AOI is WGS84, same
// CRS as the tile.
func AlertHotspots(tile *AlertGrid, aoi orb.Geometry, start, end time.Time) []Hotspot {
	mask := raster.RasterizeMask(aoi, tile.Transform, tile.Width, tile.Height, false)

	binary := raster.NewGrid(tile.Width, tile.Height, tile.Transform, 4326)
	confidence := make(map[int]int)
	for i, v := range tile.Data {
		if !mask[i] {
			continue
		}
		date, conf, ok := DecodeAlertValue(v)
		if !ok || date.Before(start) || date.After(end) {
			continue
		}
		binary.Data[i] = ChangeDeforestation
		confidence[i] = conf
	}

	regions := raster.Vectorize(binary, ChangeDeforestation)
	hotspots := make([]Hotspot, 0, len(regions))
	for _, region := range regions {
		confSum := 0
		for _, cell := range region.Cells {
			confSum += confidence[cell[1]*tile.Width+cell[0]]
		}
		meanConf := int(math.Round(float64(confSum) / float64(len(region.Cells))))

		// Polygon coordinates are degrees; project to mercator so shape
		// metrics come out in meters like the local patches.
		mercator := geo.ToMercator(region.Polygon).(orb.Polygon)
		hotspots = append(hotspots, fromPolygon(mercator, SourceGFW, &meanConf))
	}
	return hotspots
}

// AlertClient downloads and caches packed alert tiles from the alert data
// API. Tiles cover 10x10 degree cells.
type AlertClient struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	cacheDir string
}

func NewAlertClient() *AlertClient {
	return &AlertClient{
		http:     &http.Client{Timeout: 10 * time.Minute},
		baseURL:  properties.AlertAPIBaseURL(),
		apiKey:   properties.AlertAPIKey(),
		cacheDir: filepath.Join(properties.RootPath(), "data", "alerts"),
	}
}

// AlertTileIDs returns the ids of the 10 degree alert tiles covering a
// WGS84 bounding box. A tile id names its top-left corner, "10N_080W"
// style.
func AlertTileIDs(bounds orb.Bound) []string {
	var ids []string
	minLon := int(math.Floor(bounds.Min[0]/10)) * 10
	maxLon := int(math.Floor(bounds.Max[0]/10)) * 10
	// A tile covers the 10 degrees below its named top latitude.
	minLat := int(math.Ceil(bounds.Min[1]/10)) * 10
	maxLat := int(math.Ceil(bounds.Max[1]/10)) * 10

	for lon := minLon; lon <= maxLon; lon += 10 {
		for lat := minLat; lat <= maxLat; lat += 10 {
			ids = append(ids, formatTileID(lat, lon))
		}
	}
	return ids
}

func formatTileID(lat, lon int) string {
	ns := "N"
	if lat < 0 {
		ns = "S"
		lat = -lat
	}
	ew := "E"
	if lon < 0 {
		ew = "W"
		lon = -lon
	}
	return fmt.Sprintf("%02d%s_%03d%s", lat, ns, lon, ew)
}

// FetchAlertGrids downloads (or reuses cached) alert tiles covering the
// bounds and loads them into memory. A failure on one tile is logged and
// absorbed so partial alert coverage still produces results.
func (c *AlertClient) FetchAlertGrids(ctx context.Context, bounds orb.Bound) ([]*AlertGrid, error) {
	if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
		return nil, err
	}

	var grids []*AlertGrid
	for _, tileID := range AlertTileIDs(bounds) {
		localPath := filepath.Join(c.cacheDir, tileID+".tif")
		if _, err := os.Stat(localPath); err != nil {
			if err := c.downloadTile(ctx, tileID, localPath); err != nil {
				log.Warn().Err(err).Str("tile", tileID).Msg("skipping alert tile")
				continue
			}
		}

		data, width, height, transform, err := raster.ReadPackedAlerts(localPath)
		if err != nil {
			log.Warn().Err(err).Str("tile", tileID).Msg("failed to read alert tile")
			continue
		}
		grids = append(grids, &AlertGrid{Data: data, Width: width, Height: height, Transform: transform})
	}
	return grids, nil
}

func (c *AlertClient) downloadTile(ctx context.Context, tileID, localPath string) error {
	url := fmt.Sprintf("%s/dataset/gfw_integrated_alerts/latest/download/geotiff?grid=10/100000&tile_id=%s&pixel_meaning=date_conf", c.baseURL, tileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alert tile download returned status %d", resp.StatusCode)
	}

	tmpPath := localPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, localPath)
}
