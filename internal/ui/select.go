package ui

import (
	"fmt"

	"github.com/choco-forest-watch/forest-watch-api/internal/store"
)

// ListProjects prints every project with its class vocabulary.
func ListProjects(s *store.Store) error {
	projects, err := s.ListProjects()
	if err != nil {
		return fmt.Errorf("error listing projects: %s", err.Error())
	}
	if len(projects) == 0 {
		return fmt.Errorf("no projects found, create one first")
	}

	fmt.Printf("%s\nAvailable projects:%s\n", ColorGreen, ColorReset)
	for _, p := range projects {
		classes, _ := p.Classes()
		fmt.Printf("%s%d. %s (%.1f ha, classes: %v)%s\n", ColorGreen, p.ID, p.Name, p.AOIAreaHa, classes, ColorReset)
	}
	return nil
}

// SelectProject lists projects and reads the user's choice.
func SelectProject(s *store.Store) (*store.Project, error) {
	if err := ListProjects(s); err != nil {
		return nil, err
	}

	id, err := ReadInt("Enter the project id: ", 1, 1<<30)
	if err != nil {
		return nil, err
	}
	return s.GetProject(uint(id))
}

// SelectDeforestationPrediction lists a project's change rasters and reads
// the user's choice.
func SelectDeforestationPrediction(s *store.Store, projectID uint) (*store.Prediction, error) {
	predictions, err := s.ListPredictions(projectID, store.PredictionTypeDeforestation)
	if err != nil {
		return nil, err
	}
	if len(predictions) == 0 {
		return nil, fmt.Errorf("no deforestation analyses found, run one first")
	}

	fmt.Printf("%s\nAvailable analyses:%s\n", ColorGreen, ColorReset)
	for _, p := range predictions {
		fmt.Printf("%s%d. %s%s\n", ColorGreen, p.ID, p.Name, ColorReset)
	}

	id, err := ReadInt("Enter the analysis id: ", 1, 1<<30)
	if err != nil {
		return nil, err
	}
	return s.GetPrediction(uint(id))
}
