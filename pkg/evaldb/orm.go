package evaldb

import "github.com/cyclopcam/dbh"

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// EvalRun is one evaluation of a result file
type EvalRun struct {
	BaseModel
	StartedAt        dbh.IntTime `json:"startedAt"`
	ImageSet         string      `json:"imageSet"`   // eg "val"
	ResultFile       string      `json:"resultFile"` // Name inside the dataset's store
	NumDetections    int         `json:"numDetections"`
	OverlapThreshold float64     `json:"overlapThreshold"`
	MeanAP           float64     `json:"meanAP" gorm:"column:mean_ap"`
}

// EvalClassAP is the score of one class in an EvalRun
type EvalClassAP struct {
	BaseModel
	RunID int64   `json:"runID"`
	Class string  `json:"class"`
	AP    float64 `json:"ap" gorm:"column:ap"`
}
