// Package results reads and writes the KITTI MOT detection result format.
// Every line is "frame_id class_id confidence x1 y1 x2 y2".
package results

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cyclopcam/kittimot/pkg/nn"
)

var ErrShape = errors.New("Detections do not match the class table or frame list")

// Detection is one box output by a model, for an implied class and frame
type Detection struct {
	Box   nn.Box
	Score float32
}

// Detections holds all detections of a run, indexed as [class][image][k].
// Class 0 (background) is never written, and may be nil.
type Detections [][][]Detection

// Chunk is the output of one inference worker: detections for the frames
// in FrameIDs, indexed as [class][i][k], where i indexes FrameIDs.
type Chunk struct {
	Detections Detections
	FrameIDs   []int
}

// Row is a single decoded line of a result file
type Row struct {
	FrameID    int
	ClassID    int
	Confidence float32
	Box        nn.Box
}

// FormatRow renders a row with 4 decimals for the confidence and 2 for the coordinates
func FormatRow(r Row) string {
	return fmt.Sprintf("%d %d %.4f %.2f %.2f %.2f %.2f", r.FrameID, r.ClassID, r.Confidence, r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2)
}

func ParseRow(line string) (Row, error) {
	f := strings.Fields(line)
	if len(f) != 7 {
		return Row{}, fmt.Errorf("Expected 7 fields, but found %v in '%v'", len(f), line)
	}
	frameID, err := strconv.Atoi(f[0])
	if err != nil {
		return Row{}, fmt.Errorf("Invalid frame id '%v': %w", f[0], err)
	}
	classID, err := strconv.Atoi(f[1])
	if err != nil {
		return Row{}, fmt.Errorf("Invalid class id '%v': %w", f[1], err)
	}
	var v [5]float32
	for i := range v {
		x, err := strconv.ParseFloat(f[2+i], 32)
		if err != nil {
			return Row{}, fmt.Errorf("Invalid number '%v': %w", f[2+i], err)
		}
		v[i] = float32(x)
	}
	return Row{
		FrameID:    frameID,
		ClassID:    classID,
		Confidence: v[0],
		Box:        nn.Box{X1: v[1], Y1: v[2], X2: v[3], Y2: v[4]},
	}, nil
}

// Read decodes every non-blank line of a result file
func Read(r io.Reader) ([]Row, error) {
	rows := []Row{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		row, err := ParseRow(line)
		if err != nil {
			return nil, fmt.Errorf("Line %v: %w", lineNo, err)
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

// Rows flattens detections in class-then-image order, skipping the background class
func Rows(classes []string, frameIDs []int, dets Detections) ([]Row, error) {
	if len(dets) != len(classes) {
		return nil, fmt.Errorf("%w: %v classes, but detections for %v", ErrShape, len(classes), len(dets))
	}
	rows := []Row{}
	for cls := 1; cls < len(classes); cls++ {
		if len(dets[cls]) != len(frameIDs) {
			return nil, fmt.Errorf("%w: %v frames, but class %v has detections for %v", ErrShape, len(frameIDs), classes[cls], len(dets[cls]))
		}
		for im, frameID := range frameIDs {
			for _, d := range dets[cls][im] {
				rows = append(rows, Row{
					FrameID:    frameID,
					ClassID:    cls,
					Confidence: d.Score,
					Box:        d.Box,
				})
			}
		}
	}
	return rows, nil
}

// Write emits all detections in class-then-image order, and returns the number of lines written
func Write(w io.Writer, classes []string, frameIDs []int, dets Detections) (int, error) {
	rows, err := Rows(classes, frameIDs, dets)
	if err != nil {
		return 0, err
	}
	return WriteRows(w, rows)
}

// MergeChunks combines the output of several workers into one list, ordered by frame ID.
// Rows of one frame are ordered by class, and ties keep their chunk order and then their
// detection order, so the result does not depend on the order in which workers finished.
func MergeChunks(classes []string, chunks []Chunk) ([]Row, error) {
	all := []Row{}
	for i, c := range chunks {
		rows, err := Rows(classes, c.FrameIDs, c.Detections)
		if err != nil {
			return nil, fmt.Errorf("Chunk %v: %w", i, err)
		}
		all = append(all, rows...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].FrameID != all[j].FrameID {
			return all[i].FrameID < all[j].FrameID
		}
		return all[i].ClassID < all[j].ClassID
	})
	return all, nil
}

// WriteMerged writes the detections of several workers, ordered by frame ID
func WriteMerged(w io.Writer, classes []string, chunks []Chunk) (int, error) {
	rows, err := MergeChunks(classes, chunks)
	if err != nil {
		return 0, err
	}
	return WriteRows(w, rows)
}

func WriteRows(w io.Writer, rows []Row) (int, error) {
	bw := bufio.NewWriter(w)
	for i, r := range rows {
		if _, err := bw.WriteString(FormatRow(r) + "\n"); err != nil {
			return i, err
		}
	}
	return len(rows), bw.Flush()
}
