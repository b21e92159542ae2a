// Package apeval scores a detection result file against KITTI ground truth,
// producing the average precision of every class.
package apeval

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/cyclopcam/kittimot/pkg/kitti"
	"github.com/cyclopcam/kittimot/pkg/nn"
	"github.com/cyclopcam/kittimot/pkg/results"
	"github.com/cyclopcam/kittimot/pkg/roicache"
	"github.com/cyclopcam/kittimot/pkg/storage"
	"github.com/cyclopcam/logs"
)

// ErrDuplicateFrame is returned when an evaluation index lists the same frame ID twice.
// Result lines are keyed by frame ID alone, so such detections cannot be attributed.
var ErrDuplicateFrame = errors.New("Duplicate frame ID in evaluation index")

// GroundTruth maps frame ID to the objects in that frame.
// Boxes are exactly as written in the label files.
type GroundTruth map[int][]nn.ObjectDetection

// Evaluator implements kitti.APComputer
type Evaluator struct {
	log       logs.Log
	store     storage.Storage
	cache     *roicache.Cache[GroundTruth]
	labelPath func(imageID string) string
}

// NewEvaluator creates an evaluator that reads result files and indexes from 'store'.
// labelPath maps an image ID from the evaluation index to its label file.
// The ground truth cache is rebuilt whenever the evaluation index changes,
// in addition to whatever 'policy' demands.
func NewEvaluator(log logs.Log, store storage.Storage, policy roicache.Policy, labelPath func(imageID string) string) *Evaluator {
	if policy == nil {
		policy = roicache.UntilDeleted()
	}
	return &Evaluator{
		log:       log,
		store:     store,
		cache:     roicache.New[GroundTruth](log, store, roicache.All(policy, roicache.SourcesUnchanged())),
		labelPath: labelPath,
	}
}

// ComputeAP returns the AP of classes[1:]
func (e *Evaluator) ComputeAP(resultFile, indexFile string, classes []string, annoCache string, overlapThreshold float64) ([]float64, error) {
	start := time.Now()

	rawIndex, err := storage.ReadFile(e.store, indexFile)
	if err != nil {
		return nil, fmt.Errorf("Failed to read evaluation index %v: %w", indexFile, err)
	}
	lines, err := kitti.ParseEvalIndex(bytes.NewReader(rawIndex), indexFile)
	if err != nil {
		return nil, err
	}

	gt, hit, err := e.cache.GetOrBuild(annoCache, roicache.ContentFingerprint(rawIndex), func() (GroundTruth, error) {
		return e.loadGroundTruth(lines, classes)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		e.log.Infof("Loaded annotations of %v frames from %v", len(gt), annoCache)
	} else {
		e.log.Infof("Parsed annotations of %v frames, cached in %v", len(gt), annoCache)
	}

	f, err := e.store.ReadFile(resultFile)
	if err != nil {
		return nil, fmt.Errorf("Failed to read result file %v: %w", resultFile, err)
	}
	rows, err := results.Read(f.Reader)
	f.Reader.Close()
	if err != nil {
		return nil, fmt.Errorf("Failed to parse result file %v: %w", resultFile, err)
	}

	byClass := map[int][]results.Row{}
	ignored := 0
	for _, r := range rows {
		if _, ok := gt[r.FrameID]; !ok {
			ignored++
			continue
		}
		byClass[r.ClassID] = append(byClass[r.ClassID], r)
	}
	if ignored != 0 {
		e.log.Warnf("Ignored %v detections on frames that are not in %v", ignored, indexFile)
	}

	aps := make([]float64, len(classes)-1)
	for cls := 1; cls < len(classes); cls++ {
		ev := EvaluateClass(byClass[cls], gt.Boxes(cls), overlapThreshold)
		aps[cls-1] = ev.AP
		if ev.NumPositives == 0 {
			e.log.Warnf("No ground truth for class %v", classes[cls])
		}
	}
	e.log.Infof("Scored %v detections over %v frames in %.1f seconds", len(rows)-ignored, len(gt), time.Since(start).Seconds())
	return aps, nil
}

func (e *Evaluator) loadGroundTruth(lines []kitti.EvalLine, classes []string) (GroundTruth, error) {
	classToIndex := nn.ClassToIndex(classes)
	gt := GroundTruth{}
	for i, line := range lines {
		if _, ok := gt[line.FrameID]; ok {
			return nil, fmt.Errorf("%w: frame %v (%v, line %v of %v)", ErrDuplicateFrame, line.FrameID, line.ImageID, i+1, len(lines))
		}
		if i%1000 == 0 {
			e.log.Debugf("Reading annotation for %v/%v", i+1, len(lines))
		}
		objects, err := kitti.ReadLabelFile(e.labelPath(line.ImageID))
		if err != nil {
			return nil, err
		}
		dets := make([]nn.ObjectDetection, 0, len(objects))
		for _, obj := range objects {
			// Classes such as DontCare are never scored
			cls, ok := classToIndex[obj.Class]
			if !ok || cls == 0 {
				continue
			}
			dets = append(dets, nn.ObjectDetection{Class: cls, Confidence: 1, Box: obj.Box})
		}
		gt[line.FrameID] = dets
	}
	return gt, nil
}

// Boxes returns the ground truth boxes of one class, for every frame.
// Frames without an object of the class are present with an empty list.
func (g GroundTruth) Boxes(cls int) map[int][]nn.Box {
	boxes := make(map[int][]nn.Box, len(g))
	for frameID, objects := range g {
		var list []nn.Box
		for _, obj := range objects {
			if obj.Class == cls {
				list = append(list, obj.Box)
			}
		}
		boxes[frameID] = list
	}
	return boxes
}
