// Package evaldb keeps a history of evaluation runs in sqlite, so that
// successive runs of a detector can be compared.
package evaldb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/kittimot/pkg/stats"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

type EvalDB struct {
	Log logs.Log
	DB  *gorm.DB
}

// Open or create an evaluation DB
func Open(logger logs.Log, dbFilename string) (*EvalDB, error) {
	os.MkdirAll(filepath.Dir(dbFilename), 0777)
	db, err := dbh.OpenDB(logger, dbh.MakeSqliteConfig(dbFilename), Migrations(logger), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open database %v: %w", dbFilename, err)
	}
	return &EvalDB{
		Log: logger,
		DB:  db,
	}, nil
}

// SaveEvaluation records one run and its per-class AP.
// aps[i] belongs to classes[i+1].
func (e *EvalDB) SaveEvaluation(imageSet, resultFile string, numDetections int, overlapThreshold float64, classes []string, aps []float64) error {
	if len(aps) != len(classes)-1 {
		return fmt.Errorf("Expected %v AP values, but got %v", len(classes)-1, len(aps))
	}
	return e.DB.Transaction(func(tx *gorm.DB) error {
		run := EvalRun{
			StartedAt:        dbh.MakeIntTime(time.Now()),
			ImageSet:         imageSet,
			ResultFile:       resultFile,
			NumDetections:    numDetections,
			OverlapThreshold: overlapThreshold,
			MeanAP:           stats.Mean(aps),
		}
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		for i, ap := range aps {
			if err := tx.Create(&EvalClassAP{RunID: run.ID, Class: classes[i+1], AP: ap}).Error; err != nil {
				return err
			}
		}
		e.Log.Infof("Saved evaluation run %v (%v, mean AP %.4f)", run.ID, imageSet, run.MeanAP)
		return nil
	})
}

// ListRuns returns the most recent runs first.
// If imageSet is empty, runs of all image sets are returned.
func (e *EvalDB) ListRuns(imageSet string, limit int) ([]EvalRun, error) {
	q := e.DB.Order("started_at DESC, id DESC")
	if imageSet != "" {
		q = q.Where("image_set = ?", imageSet)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	runs := []EvalRun{}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// ClassAPs returns the per-class scores of a run, in class order
func (e *EvalDB) ClassAPs(runID int64) ([]EvalClassAP, error) {
	aps := []EvalClassAP{}
	if err := e.DB.Where("run_id = ?", runID).Order("id").Find(&aps).Error; err != nil {
		return nil, err
	}
	return aps, nil
}
