package store

import "time"

// Project is one monitored area with its fixed class vocabulary. The
// vocabulary order defines raster class indices for every artifact the
// project produces, so it is immutable after creation.
type Project struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description string
	AOIGeoJSON  string `gorm:"not null"`
	ClassesJSON string `gorm:"not null"`
	AOIAreaHa   float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TrainingPolygonSet is one uploaded batch of labeled polygons for one
// basemap period. FeatureCount is denormalized at insert time and must
// match the stored GeoJSON. Excluded sets stay on record but are skipped
// by training runs.
type TrainingPolygonSet struct {
	ID              uint   `gorm:"primaryKey"`
	ProjectID       uint   `gorm:"index;not null"`
	Name            string `gorm:"not null"`
	BasemapDate     string `gorm:"size:7;not null"`
	FeatureCount    int    `gorm:"not null"`
	Excluded        bool
	PolygonsGeoJSON string `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TrainedModel is the single active model of a project. Retraining
// replaces the row in place; the unique index on ProjectID enforces one
// model per project.
type TrainedModel struct {
	ID                 uint   `gorm:"primaryKey"`
	ProjectID          uint   `gorm:"uniqueIndex;not null"`
	Name               string `gorm:"not null"`
	Description        string
	ArtifactPath       string `gorm:"not null"`
	TrainingSetIDsJSON string
	BasemapDatesJSON   string
	NumSamples         int
	ParametersJSON     string
	MetricsJSON        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Prediction types.
const (
	PredictionTypeLandCover     = "landcover"
	PredictionTypeDeforestation = "deforestation"
)

// Prediction is one generated raster. The composite unique index makes
// regeneration idempotent: rerunning a period replaces its row instead of
// stacking duplicates. For deforestation rasters ComparedDate holds the
// second period of the pair.
type Prediction struct {
	ID           uint   `gorm:"primaryKey"`
	ProjectID    uint   `gorm:"index;not null;uniqueIndex:idx_prediction_key"`
	ModelID      uint   `gorm:"not null;uniqueIndex:idx_prediction_key"`
	Type         string `gorm:"not null;uniqueIndex:idx_prediction_key"`
	BasemapDate  string `gorm:"size:7;not null;uniqueIndex:idx_prediction_key"`
	ComparedDate string `gorm:"size:7;uniqueIndex:idx_prediction_key"`
	Name         string `gorm:"not null"`
	RasterPath   string `gorm:"not null"`
	PreviewPath  string
	SummaryJSON  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Hotspot verification states. A null status means nobody has reviewed the
// hotspot yet.
const (
	VerificationVerified = "verified"
	VerificationRejected = "rejected"
	VerificationUnsure   = "unsure"
)

// DeforestationHotspot is one stored change patch tied to the
// deforestation prediction it was vectorized from.
type DeforestationHotspot struct {
	ID                 uint   `gorm:"primaryKey"`
	PredictionID       uint   `gorm:"index;not null"`
	GeometryGeoJSON    string `gorm:"not null"`
	AreaHa             float64
	PerimeterM         float64
	Compactness        float64
	EdgeDensity        float64
	CentroidLon        float64
	CentroidLat        float64
	Source             string `gorm:"index;not null"`
	Confidence         *int
	VerificationStatus *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Task statuses.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskCancelled = "cancelled"
)

// Task is the progress record of one background job, polled by clients.
// Progress is a fraction in [0,1].
type Task struct {
	TaskID    string `gorm:"primaryKey"`
	Kind      string
	Status    string  `gorm:"not null"`
	Progress  float64 `gorm:"not null"`
	Message   string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
