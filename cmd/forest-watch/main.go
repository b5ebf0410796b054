package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/choco-forest-watch/forest-watch-api/internal/deforestation"
	"github.com/choco-forest-watch/forest-watch-api/internal/geo"
	"github.com/choco-forest-watch/forest-watch-api/internal/imagery"
	"github.com/choco-forest-watch/forest-watch-api/internal/ml"
	"github.com/choco-forest-watch/forest-watch-api/internal/notification"
	"github.com/choco-forest-watch/forest-watch-api/internal/pipeline"
	"github.com/choco-forest-watch/forest-watch-api/internal/properties"
	"github.com/choco-forest-watch/forest-watch-api/internal/store"
	"github.com/choco-forest-watch/forest-watch-api/internal/training"
	"github.com/choco-forest-watch/forest-watch-api/internal/ui"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func printBanner() {
	figure1 := figure.NewFigure("Forest", "isometric1", true)
	figure2 := figure.NewFigure("Watch", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(figure2.String())
	fmt.Println()
}

func main() {
	err := godotenv.Load()
	if err != nil {
		fmt.Println("Error loading .env file")
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	db, err := store.Open(properties.DatabasePath())
	if err != nil {
		fmt.Printf("Error opening database: %s\n", err.Error())
		return
	}

	p := pipeline.New(db, imagery.NewClient())
	initCLI(p)
}

func initCLI(p *pipeline.Pipeline) {
	defer func() {
		if r := recover(); r != nil {
			pc, file, line, ok := runtime.Caller(3)
			var location string
			if ok {
				fn := runtime.FuncForPC(pc)
				location = fmt.Sprintf("%s:%d in %s", file, line, fn.Name())
			} else {
				location = "Unknown location"
			}

			fmt.Printf("\n%sPANIC: %v%s\n", ui.ColorRed, r, ui.ColorReset)
			fmt.Printf("%sLocation: %s%s\n", ui.ColorRed, location, ui.ColorReset)
			fmt.Printf("%sExiting...%s\n", ui.ColorRed, ui.ColorReset)

			stack := debug.Stack()
			errMessage := fmt.Sprintf("Forest Watch CLI panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, stack)
			if err := notification.SendDiscordErrorNotification(errMessage); err != nil {
				fmt.Printf("%sFailed to send notification: %s%s\n", ui.ColorRed, err.Error(), ui.ColorReset)
			}
		}
	}()
	printBanner()

	ctx := context.Background()
	for {
		fmt.Println("\033[34m===================\033[0m")
		fmt.Println("\033[34m1. Create a new project\033[0m")
		fmt.Println("\033[34m2. Upload training polygons\033[0m")
		fmt.Println("\033[34m3. Train model and generate predictions\033[0m")
		fmt.Println("\033[34m4. Predict land cover for a new period\033[0m")
		fmt.Println("\033[34m5. Analyze deforestation between two periods\033[0m")
		fmt.Println("\033[34m6. Generate deforestation hotspots\033[0m")
		fmt.Println("\033[34m7. List projects\033[0m")
		fmt.Println("\033[34m8. Exit\033[0m")
		fmt.Println("\033[34mEnter your choice:\033[0m")

		var choice int
		_, err := fmt.Scan(&choice)
		if err != nil {
			ui.PrintError("Invalid input. Please enter a number.")
			fmt.Scanln()
			continue
		}

		switch choice {
		case 1:
			createProject(p)
		case 2:
			uploadTrainingSet(p)
		case 3:
			trainModel(ctx, p)
		case 4:
			predictPeriod(ctx, p)
		case 5:
			analyzeDeforestation(p)
		case 6:
			generateHotspots(ctx, p)
		case 7:
			if err := ui.ListProjects(p.Store); err != nil {
				ui.PrintError(err.Error())
			}
		case 8:
			ui.PrintSuccess("Goodbye!")
			return
		default:
			ui.PrintError("Invalid choice. Please select a valid option.")
		}
	}
}

func createProject(p *pipeline.Pipeline) {
	ui.PrintWarning("The AOI '.geojson' file should be present in the data/geojsons folder.")

	name := ui.ReadString("Enter the project name: ")
	description := ui.ReadString("Enter a description (optional): ")
	aoiFile := ui.ReadString("Enter the AOI geojson file name: ")

	aoiPath := fmt.Sprintf("%s/data/geojsons/%s", properties.RootPath(), aoiFile)
	aoiData, err := os.ReadFile(aoiPath)
	if err != nil {
		ui.PrintError(fmt.Sprintf("Error reading AOI file: %s", err.Error()))
		return
	}
	aoi, err := geo.ParseAOI(aoiData)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	classInput := ui.ReadString("Enter the class list in order (default: Forest,Non-Forest,Cloud,Shadow,Water): ")
	classes := []string{"Forest", "Non-Forest", "Cloud", "Shadow", "Water"}
	if classInput != "" {
		classes = strings.Split(classInput, ",")
		for i := range classes {
			classes[i] = strings.TrimSpace(classes[i])
		}
	}

	areaHa := geo.AreaHa(geo.ToMercator(aoi))
	project, err := p.Store.CreateProject(name, description, string(aoiData), classes, areaHa)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}
	ui.PrintSuccess(fmt.Sprintf("Project %d created (%.1f ha).", project.ID, areaHa))
}

func uploadTrainingSet(p *pipeline.Pipeline) {
	ui.PrintWarning("The polygon '.geojson' file should be present in the data/geojsons folder.\nEach feature needs a classLabel property.")

	project, err := ui.SelectProject(p.Store)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	basemapDate, err := ui.ReadBasemapDate("Enter the basemap period (YYYY-MM): ")
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	fileName := ui.ReadString("Enter the polygon geojson file name: ")
	path := fmt.Sprintf("%s/data/geojsons/%s", properties.RootPath(), fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		ui.PrintError(fmt.Sprintf("Error reading polygon file: %s", err.Error()))
		return
	}

	features, err := geo.ParseTrainingFeatures(data)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	set := &store.TrainingPolygonSet{
		ProjectID:       project.ID,
		Name:            fileName,
		BasemapDate:     basemapDate,
		FeatureCount:    len(features),
		PolygonsGeoJSON: string(data),
	}
	if err := p.Store.CreateTrainingSet(set); err != nil {
		ui.PrintError(err.Error())
		return
	}
	ui.PrintSuccess(fmt.Sprintf("Stored %d polygons for %s.", len(features), basemapDate))
}

func trainModel(ctx context.Context, p *pipeline.Pipeline) {
	project, err := ui.SelectProject(p.Store)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	params := ml.DefaultParams()
	if sieve, err := ui.ReadInt("Enter the sieve size in pixels (0 disables): ", 0, 10000); err == nil {
		params.SieveSize = sieve
	}

	splitMethod := training.SplitByFeature
	if ui.ReadString("Split by pixel instead of polygon? (y/N): ") == "y" {
		splitMethod = training.SplitByPixel
	}

	taskID, err := p.Train(ctx, pipeline.TrainRequest{
		ProjectID:   project.ID,
		Params:      params,
		SplitMethod: splitMethod,
	})
	if err != nil {
		ui.PrintError(fmt.Sprintf("Training failed (task %s): %s", taskID, err.Error()))
		return
	}
	ui.PrintSuccess(fmt.Sprintf("Training finished. Task id: %s", taskID))
}

func predictPeriod(ctx context.Context, p *pipeline.Pipeline) {
	project, err := ui.SelectProject(p.Store)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	basemapDate, err := ui.ReadBasemapDate("Enter the basemap period (YYYY-MM): ")
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	pred, err := p.PredictDate(ctx, project.ID, basemapDate)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}
	ui.PrintSuccess(fmt.Sprintf("Prediction stored.\n Raster: %s\n Preview: %s", pred.RasterPath, pred.PreviewPath))
}

func analyzeDeforestation(p *pipeline.Pipeline) {
	project, err := ui.SelectProject(p.Store)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	date1, err := ui.ReadBasemapDate("Enter the first period (YYYY-MM): ")
	if err != nil {
		ui.PrintError(err.Error())
		return
	}
	date2, err := ui.ReadBasemapDate("Enter the second period (YYYY-MM): ")
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	pred, report, err := p.AnalyzeDeforestation(project.ID, date1, date2)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}
	ui.PrintSuccess(fmt.Sprintf(
		"Analysis stored as prediction %d.\n Deforested area: %.2f ha\n Deforestation rate: %.2f%%\n Raster: %s",
		pred.ID, report.DeforestedAreaHa, report.DeforestationRate, pred.RasterPath))
}

func generateHotspots(ctx context.Context, p *pipeline.Pipeline) {
	project, err := ui.SelectProject(p.Store)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	pred, err := ui.SelectDeforestationPrediction(p.Store, project.ID)
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	minArea, err := ui.ReadFloat("Enter the minimum patch area in hectares: ")
	if err != nil {
		ui.PrintError(err.Error())
		return
	}
	includeAlerts := ui.ReadString("Include external alert data? (y/N): ") == "y"

	source := deforestation.SourceML
	if includeAlerts {
		source = "all"
	}
	hotspots, collection, err := p.Hotspots(ctx, pipeline.HotspotRequest{
		PredictionID:  pred.ID,
		MinAreaHa:     minArea,
		Source:        source,
		IncludeAlerts: includeAlerts,
	})
	if err != nil {
		ui.PrintError(err.Error())
		return
	}

	outputPath := fmt.Sprintf("%s/data/result/hotspots_%d.geojson", properties.RootPath(), pred.ID)
	if err := os.MkdirAll(fmt.Sprintf("%s/data/result", properties.RootPath()), 0755); err != nil {
		ui.PrintError(err.Error())
		return
	}
	if err := os.WriteFile(outputPath, collection, 0644); err != nil {
		ui.PrintError(err.Error())
		return
	}

	csvPath := fmt.Sprintf("%s/data/result/hotspots_%d.csv", properties.RootPath(), pred.ID)
	if err := deforestation.ExportHotspotsCSV(hotspots, csvPath); err != nil {
		ui.PrintError(err.Error())
		return
	}
	ui.PrintSuccess(fmt.Sprintf("%d hotspots written.\n GeoJSON: %s\n CSV: %s", len(hotspots), outputPath, csvPath))
}
