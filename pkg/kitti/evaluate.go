package kitti

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cyclopcam/kittimot/pkg/results"
	"github.com/cyclopcam/kittimot/pkg/stats"
	"github.com/cyclopcam/kittimot/pkg/storage"
)

// APComputer computes the average precision of every non-background class.
// The file arguments are names inside the dataset's store.
// The returned slice has len(classes)-1 elements.
type APComputer interface {
	ComputeAP(resultFile, indexFile string, classes []string, annoCache string, overlapThreshold float64) ([]float64, error)
}

// SetAP installs the AP evaluator, for evaluators that need the Dataset to exist first
func (d *Dataset) SetAP(ap APComputer) {
	d.ap = ap
}

// ResultFile is the name of the result file inside the store
func (d *Dataset) ResultFile() string {
	return "results/det_" + d.ImageSet + "_all.txt"
}

// EvalIndexFile is the name of the expanded evaluation index inside the store
func (d *Dataset) EvalIndexFile() string {
	return d.ImageSet + "_eval.txt"
}

// AnnotationCacheName is the name of the evaluator's ground truth cache inside the store
func (d *Dataset) AnnotationCacheName() string {
	return "cache/" + d.Name + "_annotations.gob"
}

// WriteResults overwrites the result file with 'dets', which is indexed as [class][image][k],
// where image follows the order of the split index.
func (d *Dataset) WriteResults(dets results.Detections) (int, error) {
	d.log.Infof("Writing %v results file %v", DatasetName, d.ResultFile())
	return d.writeResultFile(func(w io.Writer) (int, error) {
		return results.Write(w, d.Classes, d.Index.FrameIDs(), dets)
	})
}

// WriteResultsMerged overwrites the result file with the output of several workers,
// ordered by frame ID.
func (d *Dataset) WriteResultsMerged(chunks []results.Chunk) (int, error) {
	d.log.Infof("Writing %v results file %v from %v chunks", DatasetName, d.ResultFile(), len(chunks))
	return d.writeResultFile(func(w io.Writer) (int, error) {
		return results.WriteMerged(w, d.Classes, chunks)
	})
}

func (d *Dataset) writeResultFile(write func(w io.Writer) (int, error)) (int, error) {
	f, err := d.store.WriteFile(d.ResultFile())
	if err != nil {
		return 0, err
	}
	n, err := write(f)
	errClose := f.Close()
	if err == nil {
		err = errClose
	}
	if err != nil {
		return 0, fmt.Errorf("Failed to write %v: %w", d.ResultFile(), err)
	}
	d.metrics.DetectionsWritten.Add(float64(n))
	return n, nil
}

// WriteEvalIndex writes the list of frames that the evaluator will score
func (d *Dataset) WriteEvalIndex() error {
	f, err := d.store.WriteFile(d.EvalIndexFile())
	if err != nil {
		return err
	}
	err = WriteEvalLines(f, d.Index.EvalLines())
	errClose := f.Close()
	if err == nil {
		err = errClose
	}
	if err != nil {
		return fmt.Errorf("Failed to write %v: %w", d.EvalIndexFile(), err)
	}
	return nil
}

// EvaluateDetections writes 'dets' to the result file and scores them.
// Returns a human readable summary of per-class and mean AP.
func (d *Dataset) EvaluateDetections(dets results.Detections) (string, error) {
	n, err := d.WriteResults(dets)
	if err != nil {
		return "", err
	}
	return d.evaluate(n)
}

// EvaluateDetectionsMultiprocess is EvaluateDetections for the output of several inference workers
func (d *Dataset) EvaluateDetectionsMultiprocess(chunks []results.Chunk) (string, error) {
	n, err := d.WriteResultsMerged(chunks)
	if err != nil {
		return "", err
	}
	return d.evaluate(n)
}

// EvaluateResultFile scores a result file that is already in the store
func (d *Dataset) EvaluateResultFile() (string, error) {
	raw, err := d.store.ReadFile(d.ResultFile())
	if err != nil {
		return "", err
	}
	rows, err := results.Read(raw.Reader)
	raw.Reader.Close()
	if err != nil {
		return "", fmt.Errorf("Failed to read %v: %w", d.ResultFile(), err)
	}
	return d.evaluate(len(rows))
}

func (d *Dataset) evaluate(numDetections int) (string, error) {
	if d.ap == nil {
		return "", errors.New("No AP evaluator configured")
	}
	if err := d.WriteEvalIndex(); err != nil {
		return "", err
	}
	aps, err := d.ap.ComputeAP(d.ResultFile(), d.EvalIndexFile(), d.Classes, d.AnnotationCacheName(), d.opt.OverlapThreshold)
	if err != nil {
		return "", fmt.Errorf("AP evaluation failed: %w", err)
	}
	if len(aps) != len(d.Classes)-1 {
		return "", fmt.Errorf("AP evaluator returned %v values for %v classes", len(aps), len(d.Classes)-1)
	}

	report := FormatReport(d.Classes, aps, d.opt.OverlapThreshold)
	for _, line := range strings.Split(strings.TrimSpace(report), "\n") {
		d.log.Infof("%v", line)
	}

	for i, ap := range aps {
		d.metrics.ClassAP.WithLabelValues(d.Classes[i+1]).Set(ap)
	}
	d.metrics.MeanAP.Set(stats.Mean(aps))
	d.metrics.EvaluationRuns.Inc()
	d.metrics.LastEvaluationTime.Set(float64(time.Now().Unix()))

	if d.history != nil {
		if err := d.history.SaveEvaluation(d.ImageSet, d.ResultFile(), numDetections, d.opt.OverlapThreshold, d.Classes, aps); err != nil {
			return "", fmt.Errorf("Failed to record evaluation run: %w", err)
		}
	}
	return report, nil
}

// FormatReport renders per-class AP and mean AP.
// aps[i] belongs to classes[i+1], because the background class is never scored.
func FormatReport(classes []string, aps []float64, overlapThreshold float64) string {
	s := strings.Builder{}
	for i, ap := range aps {
		fmt.Fprintf(&s, "AP for %v = %.4f\n", classes[i+1], ap)
	}
	fmt.Fprintf(&s, "Mean AP@%v = %.4f\n\n", overlapThreshold, stats.Mean(aps))
	return s.String()
}

// ReadEvalIndex loads an evaluation index file from a store
func ReadEvalIndex(store storage.Storage, name string) ([]EvalLine, error) {
	f, err := store.ReadFile(name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return ParseEvalIndex(f.Reader, name)
}

// ParseEvalIndex parses the "image_id frame_id" lines of an evaluation index
func ParseEvalIndex(r io.Reader, name string) ([]EvalLine, error) {
	ix, err := ParseIndex(r, name, IndexFormatPaired)
	if err != nil {
		return nil, err
	}
	lines := make([]EvalLine, len(ix.Entries))
	for i, e := range ix.Entries {
		lines[i] = EvalLine{ImageID: e.ImageID, FrameID: e.FrameID}
	}
	return lines, nil
}
