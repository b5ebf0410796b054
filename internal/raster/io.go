package raster

import (
	"fmt"
	"os"
	"sync"

	"github.com/airbusgeo/godal"
)

// WebMercatorEPSG is the projected CRS every classified output is written
// in. Provider quads ship in the same projection.
const WebMercatorEPSG = 3857

var registerDrivers sync.Once

func gdalInit() {
	registerDrivers.Do(godal.RegisterAll)
}

// OpenTile reads every band of an imagery GeoTIFF into memory as float32.
func OpenTile(id, path string) (*Tile, error) {
	gdalInit()

	ds, err := godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open tile %s: %w", path, err)
	}
	defer ds.Close()

	width := ds.Structure().SizeX
	height := ds.Structure().SizeY

	transform, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to get geotransform of %s: %w", path, err)
	}

	tile := &Tile{
		ID:        id,
		Path:      path,
		Width:     width,
		Height:    height,
		Transform: transform,
		EPSG:      WebMercatorEPSG,
	}

	for i, band := range ds.Bands() {
		data := make([]float32, width*height)
		if err := band.Read(0, 0, data, width, height); err != nil {
			return nil, fmt.Errorf("failed to read band %d of %s: %w", i+1, path, err)
		}
		tile.Bands = append(tile.Bands, data)

		if nodata, ok := band.NoData(); ok {
			tile.NoDataVal = nodata
			tile.HasNoData = true
		}
	}

	if len(tile.Bands) == 0 {
		return nil, fmt.Errorf("tile %s has no bands", path)
	}
	return tile, nil
}

// ReadGrid loads a single band uint8 classified raster.
func ReadGrid(path string) (*Grid, error) {
	gdalInit()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster %s: %w", path, err)
	}
	defer ds.Close()

	width := ds.Structure().SizeX
	height := ds.Structure().SizeY

	transform, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to get geotransform of %s: %w", path, err)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("raster %s has no bands", path)
	}

	data := make([]uint8, width*height)
	if err := bands[0].Read(0, 0, data, width, height); err != nil {
		return nil, fmt.Errorf("failed to read raster %s: %w", path, err)
	}

	return &Grid{
		Data:      data,
		Width:     width,
		Height:    height,
		Transform: transform,
		EPSG:      WebMercatorEPSG,
	}, nil
}

// ReadPackedAlerts loads a single band uint32 alert raster. Alert tiles
// ship in geographic coordinates, not the mercator grid of the imagery.
func ReadPackedAlerts(path string) ([]uint32, int, int, Transform, error) {
	gdalInit()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, 0, 0, Transform{}, fmt.Errorf("failed to open alert raster %s: %w", path, err)
	}
	defer ds.Close()

	width := ds.Structure().SizeX
	height := ds.Structure().SizeY

	transform, err := ds.GeoTransform()
	if err != nil {
		return nil, 0, 0, Transform{}, fmt.Errorf("failed to get geotransform of %s: %w", path, err)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, 0, 0, Transform{}, fmt.Errorf("alert raster %s has no bands", path)
	}

	data := make([]uint32, width*height)
	if err := bands[0].Read(0, 0, data, width, height); err != nil {
		return nil, 0, 0, Transform{}, fmt.Errorf("failed to read alert raster %s: %w", path, err)
	}
	return data, width, height, transform, nil
}

// WriteGrid persists a grid as an LZW compressed uint8 GeoTIFF with nodata
// 255. The file is written to a temp path and renamed into place so a
// partial write is never visible to readers.
func WriteGrid(path string, g *Grid) error {
	gdalInit()

	tmpPath := path + ".tmp"
	ds, err := godal.Create(godal.GTiff, tmpPath, 1, godal.Byte, g.Width, g.Height,
		godal.CreationOption("COMPRESS=LZW"))
	if err != nil {
		return fmt.Errorf("failed to create raster %s: %w", tmpPath, err)
	}

	if err := ds.SetGeoTransform(g.Transform); err != nil {
		ds.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set geotransform: %w", err)
	}

	sr, err := godal.NewSpatialRefFromEPSG(g.EPSG)
	if err != nil {
		ds.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to create spatial ref EPSG:%d: %w", g.EPSG, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		ds.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set spatial ref: %w", err)
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(float64(NoData)); err != nil {
		ds.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set nodata: %w", err)
	}
	if err := band.Write(0, 0, g.Data, g.Width, g.Height); err != nil {
		ds.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write raster data: %w", err)
	}
	if err := ds.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush raster %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move raster into place: %w", err)
	}
	return nil
}
